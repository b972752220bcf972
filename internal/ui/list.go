package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/tdx/internal/formatter"
	"github.com/desertthunder/tdx/internal/models"
)

var _ list.DefaultItem = trackItem{}

// trackItem wraps [models.TrackDescriptor] to implement [list.DefaultItem].
type trackItem struct {
	track models.TrackDescriptor
}

func (i trackItem) FilterValue() string {
	return i.track.Title + " " + i.track.MainArtist()
}

func (i trackItem) Title() string {
	if !i.track.AllowStreaming {
		return i.track.Title + " [unavailable]"
	}
	return i.track.Title
}

func (i trackItem) Description() string {
	artists := i.track.MainArtist()
	if featured := i.track.FeaturedArtists(); len(featured) > 0 {
		artists += " ft. " + strings.Join(featured, ", ")
	}

	desc := fmt.Sprintf("%s • %s", artists, formatter.FormatDuration(models.NewTrack(i.track, "").Duration))
	if i.track.Album.Title != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.track.Album.Title)
	}
	return desc
}

func trackItems(tracks []models.TrackDescriptor) []list.Item {
	items := make([]list.Item, len(tracks))
	for i, t := range tracks {
		items[i] = trackItem{track: t}
	}
	return items
}
