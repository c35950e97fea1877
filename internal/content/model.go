// Package content models chronomap content and keeps it fresh.
package content

import (
	"sort"
	"time"
)

// MediaType tags how an item is rendered.
type MediaType string

const (
	MediaAudio     MediaType = "audio"
	MediaVideo     MediaType = "video"
	MediaImage     MediaType = "image"
	MediaTwitter   MediaType = "twitter"
	MediaInstagram MediaType = "instagram"
	MediaWikipedia MediaType = "wikipedia"
	MediaNews      MediaType = "news"
	MediaNote      MediaType = "note"
)

// Author statuses.
const (
	AuthorPending     = "Pending"
	AuthorEditor      = "Editor"
	AuthorContributor = "Contributor"
)

// StatusPublished is the only status that reaches the timeline.
const StatusPublished = "Published"

// Author is a content contributor.
type Author struct {
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Status string `json:"status"`
}

// ContentItem is one entry of a chronomap.
type ContentItem struct {
	ID               int       `json:"id"`
	Title            string    `json:"title"`
	Content          string    `json:"content,omitempty"`
	Type             MediaType `json:"type"`
	Status           string    `json:"status"`
	PostTimestamp    time.Time `json:"post_timestamp"`
	AltPostTimestamp time.Time `json:"alt_post_timestamp"`
	Geo              string    `json:"geo,omitempty"`
	MapLayers        []string  `json:"map_layers"`
	OffMapLayers     []string  `json:"off_map_layers"`
	RelatedIDs       []int     `json:"related_ids,omitempty"`
	Authors          []Author  `json:"authors"`
	Tags             []string  `json:"tags"`

	YoutubeVideoID string `json:"youtube_video_id,omitempty"`
	Image          string `json:"image,omitempty"`
	Audio          string `json:"audio,omitempty"`
	Name           string `json:"name,omitempty"`
	Username       string `json:"username,omitempty"`
	ProfileImage   string `json:"profile_image,omitempty"`
	LikeCount      int    `json:"like_count,omitempty"`
	CommentCount   int    `json:"comment_count,omitempty"`
	LinkTitle      string `json:"link_title,omitempty"`
	LinkDomain     string `json:"link_domain,omitempty"`
	Nonce          string `json:"nonce,omitempty"`

	// Related is resolved from RelatedIDs once every item exists.
	Related []*ContentItem `json:"-"`
}

// Timestamp returns the post timestamp, or the alternate one when the post
// timestamp is missing.
func (c *ContentItem) Timestamp() (time.Time, bool) {
	if !c.PostTimestamp.IsZero() {
		return c.PostTimestamp, true
	}
	if !c.AltPostTimestamp.IsZero() {
		return c.AltPostTimestamp, true
	}
	return time.Time{}, false
}

// ResolveRelated links RelatedIDs to items in the same list. Unknown ids are
// dropped.
func ResolveRelated(items []*ContentItem) {
	byID := make(map[int]*ContentItem, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	for _, it := range items {
		it.Related = it.Related[:0]
		for _, id := range it.RelatedIDs {
			if rel, ok := byID[id]; ok {
				it.Related = append(it.Related, rel)
			}
		}
	}
}

// TimelineItem is a ContentItem placed on the timeline. The layout fields
// are written only by the timeline engine.
type TimelineItem struct {
	*ContentItem
	Index int
	Time  time.Time
	Prev  *TimelineItem
	Next  *TimelineItem

	X               float64
	CX, CY          float64
	CenterTimestamp time.Time
	K               float64
	Clustered       int
	Indexes         []int
}

// BuildTimeline orders items with a usable timestamp and links them.
func BuildTimeline(items []*ContentItem) []*TimelineItem {
	out := make([]*TimelineItem, 0, len(items))
	for _, it := range items {
		ts, ok := it.Timestamp()
		if !ok {
			continue
		}
		out = append(out, &TimelineItem{ContentItem: it, Time: ts, Clustered: 1})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	for i, it := range out {
		it.Index = i
		it.Indexes = []int{i}
		if i > 0 {
			it.Prev = out[i-1]
			out[i-1].Next = it
		}
	}
	return out
}

// DateRange returns the span the timeline should cover: the items' range
// padded by a tenth on each side, or a day either way for a single instant.
func DateRange(items []*TimelineItem) (time.Time, time.Time, bool) {
	if len(items) == 0 {
		return time.Time{}, time.Time{}, false
	}
	first, last := items[0].Time, items[len(items)-1].Time
	pad := last.Sub(first) / 10
	if pad <= 0 {
		pad = 24 * time.Hour
	}
	return first.Add(-pad), last.Add(pad), true
}

// Settings is the per-chronomap configuration table.
type Settings struct {
	Title              string `json:"title"`
	Subtitle           string `json:"subtitle"`
	InfobarTitle       string `json:"infobar_title"`
	InfobarSubtitle    string `json:"infobar_subtitle"`
	InfobarContent     string `json:"infobar_content,omitempty"`
	ContributeMessage  string `json:"contribute_message,omitempty"`
	MapView            string `json:"map_view,omitempty"`
	Logo               string `json:"logo,omitempty"`
	Thumbnail          string `json:"thumbnail,omitempty"`
	ParentLink         string `json:"parent_link"`
	MapStyle           string `json:"map_style,omitempty"`
	BackgroundMapStyle string `json:"background_map_style,omitempty"`
	MapboxKey          string `json:"mapbox_key,omitempty"`
	ShowTooltips       bool   `json:"show_tooltips"`
	AltTimestampLabel  string `json:"alt_timestamp_label,omitempty"`
	PostDateFormat     string `json:"post_date_format,omitempty"`
	AltDateFormat      string `json:"alt_date_format,omitempty"`
	PrimaryColor       string `json:"primary_color,omitempty"`
	SecondaryColor     string `json:"secondary_color,omitempty"`
	MapBackground      string `json:"map_bg,omitempty"`
	MapBackgroundBound string `json:"map_bg_bounds,omitempty"`
}

// Snapshot is one complete fetch of a chronomap.
type Snapshot struct {
	Settings  Settings       `json:"settings"`
	Layers    []string       `json:"layers"`
	Items     []*ContentItem `json:"items"`
	FetchedAt time.Time      `json:"fetched_at"`
}
