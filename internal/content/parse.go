package content

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joeblew999/chronomaps/internal/baserow"
)

// ParseSettings reads the Key/Value/Image rows of a Settings table.
func ParseSettings(rows []baserow.Row) Settings {
	values := map[string]string{}
	images := map[string]string{}
	for _, r := range rows {
		key := text(r["Key"])
		if key == "" {
			continue
		}
		values[key] = text(r["Value"])
		images[key] = firstURL(r["Image"])
	}

	s := Settings{
		Title:              values["Title"],
		Subtitle:           values["Subtitle"],
		InfobarTitle:       or(values["Infobar_Title"], values["Title"]),
		InfobarSubtitle:    or(values["Infobar_Subtitle"], values["Subtitle"]),
		InfobarContent:     values["Infobar_Content"],
		ContributeMessage:  values["Contribute_Message"],
		MapView:            values["Default_Map_View"],
		Logo:               images["Logo"],
		Thumbnail:          images["Thumbnail"],
		ParentLink:         or(values["Parent_Link"], ".."),
		MapStyle:           values["Map_Style"],
		BackgroundMapStyle: values["Background_Map_Style"],
		MapboxKey:          values["Mapbox_Key"],
		ShowTooltips:       values["Show_Tooltips"] == "true",
		AltTimestampLabel:  values["Alt_Timestamp_Label"],
		PostDateFormat:     values["Post_Date_Format"],
		AltDateFormat:      values["Alt_Date_Format"],
		PrimaryColor:       values["Primary_Color"],
		SecondaryColor:     values["Secondary_Color"],
		MapBackground:      or(images["Map_BG"], values["Map_BG"]),
		MapBackgroundBound: values["Map_BG_Bounds"],
	}
	return s
}

// ParseItems builds the published content list from the MapLayers, Authors
// and Content tables. It returns the items sorted by post timestamp and the
// union of all layer names.
func ParseItems(layerRows, authorRows, contentRows []baserow.Row) ([]*ContentItem, []string) {
	var allLayers []string
	seen := map[string]bool{}
	groups := map[string][]string{}
	for _, r := range layerRows {
		on := linkValues(r["On_Layers"])
		for _, l := range on {
			if !seen[l] {
				seen[l] = true
				allLayers = append(allLayers, l)
			}
		}
		groups[text(r["Name"])] = on
	}

	authors := map[string]Author{}
	for _, r := range authorRows {
		name := text(r["Name"])
		authors[name] = Author{Name: name, Email: text(r["Email"]), Status: text(r["Status"])}
	}

	var items []*ContentItem
	for _, r := range contentRows {
		it := &ContentItem{
			ID:             integer(r["id"]),
			Title:          text(r["Title"]),
			PostTimestamp:  timestamp(r["Post_Timestamp"]),
			Status:         text(r["Status"]),
			Type:           MediaType(text(r["Type"])),
			YoutubeVideoID: text(r["Youtube_Video_Id"]),
			Content:        text(r["Content"]),
			Image:          firstURL(r["Image"]),
			Audio:          firstURL(r["Audio"]),
			Name:           text(r["Name"]),
			Username:       text(r["Username"]),
			ProfileImage:   firstURL(r["Profile_Image"]),
			LikeCount:      integer(r["Like_Count"]),
			CommentCount:   integer(r["Comment_Count"]),
			LinkTitle:      text(r["Link_Title"]),
			LinkDomain:     text(r["Link_Domain"]),
			Geo:            text(r["Geo"]),
			Nonce:          text(r["Nonce"]),
			Tags:           linkValues(r["Tags"]),
			RelatedIDs:     linkIDs(r["Related"]),
			MapLayers:      []string{},
			OffMapLayers:   []string{},
		}
		it.AltPostTimestamp = timestamp(r["Alt_Post_Timestamp"])
		if it.AltPostTimestamp.IsZero() {
			it.AltPostTimestamp = it.PostTimestamp
		}
		for _, name := range linkValues(r["Authors"]) {
			if a, ok := authors[name]; ok {
				it.Authors = append(it.Authors, a)
			}
		}

		on := map[string]bool{}
		for _, group := range linkValues(r["Map_Layer"]) {
			for _, l := range groups[group] {
				if !on[l] {
					on[l] = true
					it.MapLayers = append(it.MapLayers, l)
				}
			}
		}
		for _, l := range allLayers {
			if !on[l] {
				it.OffMapLayers = append(it.OffMapLayers, l)
			}
		}

		if it.Status == StatusPublished && hasActiveAuthor(it.Authors) {
			items = append(items, it)
		}
	}

	ResolveRelated(items)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].PostTimestamp.Before(items[j].PostTimestamp)
	})
	return items, allLayers
}

// DirectoryEntry is a row of the admin Chronomaps table.
type DirectoryEntry struct {
	Title         string
	Slug          string
	DatabaseToken string
	DatabaseID    int
	EditorName    string
	EditorEmail   string
	Pitch         string
}

// ParseDirectory reads the admin Chronomaps table.
func ParseDirectory(rows []baserow.Row) []DirectoryEntry {
	out := make([]DirectoryEntry, 0, len(rows))
	for _, r := range rows {
		e := DirectoryEntry{
			Title:         text(r["Title"]),
			Slug:          text(r["URL_Slug"]),
			DatabaseToken: text(r["Database_Token"]),
			DatabaseID:    integer(r["Database_ID"]),
			EditorName:    text(r["Editor_Name"]),
			EditorEmail:   text(r["Editor_Email"]),
			Pitch:         text(r["Pitch"]),
		}
		if e.Slug == "" || e.DatabaseID == 0 {
			continue
		}
		out = append(out, e)
	}
	return out
}

func hasActiveAuthor(authors []Author) bool {
	for _, a := range authors {
		if a.Status == AuthorEditor || a.Status == AuthorContributor {
			return true
		}
	}
	return false
}

// text reads plain fields and single-select options ({"value": ...}).
func text(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case map[string]any:
		return text(t["value"])
	}
	return ""
}

func integer(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(t))
		return n
	}
	return 0
}

// linkValues reads link-row and multi-select fields ([{"id":..,"value":..}]).
func linkValues(v any) []string {
	list, _ := v.([]any)
	out := make([]string, 0, len(list))
	for _, e := range list {
		if s := text(e); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func linkIDs(v any) []int {
	list, _ := v.([]any)
	var out []int
	for _, e := range list {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		if id := integer(m["id"]); id != 0 {
			out = append(out, id)
		}
	}
	return out
}

// firstURL reads the first file of a file field.
func firstURL(v any) string {
	list, _ := v.([]any)
	if len(list) == 0 {
		return ""
	}
	m, _ := list[0].(map[string]any)
	return text(m["url"])
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	"2006-01",
	"2006",
}

func timestamp(v any) time.Time {
	s := strings.TrimSpace(text(v))
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func or(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
