package models

import (
	"strconv"
	"time"
)

// ArtistRef is an artist credit on a track.
type ArtistRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// AlbumRef is the album a track belongs to.
type AlbumRef struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// TrackDescriptor is a track match from the search endpoint.
type TrackDescriptor struct {
	ID             int64       `json:"id"`
	Title          string      `json:"title"`
	Version        string      `json:"version"`
	Duration       int         `json:"duration"` // seconds
	AllowStreaming bool        `json:"allowStreaming"`
	StreamReady    bool        `json:"streamReady"`
	Explicit       bool        `json:"explicit"`
	ISRC           string      `json:"isrc"`
	Artists        []ArtistRef `json:"artists"`
	Album          AlbumRef    `json:"album"`
}

// Key returns the track id as used for cache keys and catalog lookups.
func (d TrackDescriptor) Key() string {
	return strconv.FormatInt(d.ID, 10)
}

// MainArtist returns the first credited artist.
func (d TrackDescriptor) MainArtist() string {
	if len(d.Artists) == 0 {
		return ""
	}
	return d.Artists[0].Name
}

// FeaturedArtists returns every credited artist after the first.
func (d TrackDescriptor) FeaturedArtists() []string {
	if len(d.Artists) < 2 {
		return nil
	}
	out := make([]string, 0, len(d.Artists)-1)
	for _, a := range d.Artists[1:] {
		out = append(out, a.Name)
	}
	return out
}

// Track is a resolved, playable track. StreamURL is short-lived and never persisted.
type Track struct {
	ID              string
	Title           string
	Artist          string
	FeaturedArtists []string
	Album           string
	Duration        time.Duration
	StreamURL       string
}

// NewTrack builds a Track from a search match and its resolved stream URL.
func NewTrack(d TrackDescriptor, streamURL string) Track {
	return Track{
		ID:              d.Key(),
		Title:           d.Title,
		Artist:          d.MainArtist(),
		FeaturedArtists: d.FeaturedArtists(),
		Album:           d.Album.Title,
		Duration:        time.Duration(d.Duration) * time.Second,
		StreamURL:       streamURL,
	}
}
