package templates

import (
	"encoding/json"
	"html/template"

	"github.com/joeblew999/chronomaps/internal/chronomap"
	"github.com/joeblew999/chronomaps/internal/content"
	"github.com/joeblew999/chronomaps/internal/selection"
)

// Card is one item in the strip under the timeline.
type Card struct {
	ElementID string
	ItemID    int
	Title     string
	Type      content.MediaType
	Date      string
	Image     string
}

// Zone is a watched region of the content pane.
type Zone struct {
	ElementID string
	Name      selection.Zone
}

// PageData is everything the page shell needs before the stream connects.
type PageData struct {
	Slug     string
	ViewID   string
	Settings content.Settings
	Cards    []Card
	Zones    []Zone
	// Signals is the initial Datastar signal object as JSON.
	Signals template.JS
}

// DefaultDateFormat formats card dates when the chronomap sets none.
const DefaultDateFormat = "2 Jan 2006"

// Cards lays out the strip for items.
func Cards(items []*content.TimelineItem, format string) []Card {
	if format == "" {
		format = DefaultDateFormat
	}
	cards := make([]Card, 0, len(items))
	for _, it := range items {
		cards = append(cards, Card{
			ElementID: chronomap.CardID(it.ID),
			ItemID:    it.ID,
			Title:     it.Title,
			Type:      it.Type,
			Date:      it.Time.Format(format),
			Image:     it.Image,
		})
	}
	return cards
}

// NewPageData lays out the shell of view id over snap.
func NewPageData(slug, id string, snap content.Snapshot) (PageData, error) {
	cards := Cards(content.BuildTimeline(snap.Items), snap.Settings.PostDateFormat)
	zones := make([]Zone, 0, len(selection.Zones))
	for _, z := range selection.Zones {
		zones = append(zones, Zone{ElementID: chronomap.ZoneID(z), Name: z})
	}
	signals, err := json.Marshal(chronomap.Signals{MapMode: string(selection.ModeMedia)})
	if err != nil {
		return PageData{}, err
	}
	return PageData{
		Slug:     slug,
		ViewID:   id,
		Settings: snap.Settings,
		Cards:    cards,
		Zones:    zones,
		Signals:  template.JS(signals),
	}, nil
}

// Strip renders the card strip, for patching after the items change.
func (r *Renderer) Strip(s chronomap.Strip) (string, error) {
	return r.Render("strip", struct{ Cards []Card }{Cards(s.Items, s.DateFormat)})
}

// Page renders the full page.
func (r *Renderer) Page(data PageData) (string, error) {
	return r.Render("page", data)
}
