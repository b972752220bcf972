package models

import (
	"fmt"
	"strings"
	"time"
)

// CachedTrack is the catalog record for a track stored in the content cache.
type CachedTrack struct {
	id              string
	sequence        int
	trackID         string
	title           string
	artist          string
	featuredArtists []string
	album           string
	duration        time.Duration
	filePath        string
	size            int64
	playCount       int
	createdAt       time.Time
	updatedAt       time.Time
}

// NewCachedTrack creates a catalog record for t stored at filePath.
func NewCachedTrack(sequence int, t Track, filePath string, size int64) *CachedTrack {
	now := time.Now()
	return &CachedTrack{
		sequence:        sequence,
		trackID:         t.ID,
		title:           t.Title,
		artist:          t.Artist,
		featuredArtists: t.FeaturedArtists,
		album:           t.Album,
		duration:        t.Duration,
		filePath:        filePath,
		size:            size,
		createdAt:       now,
		updatedAt:       now,
	}
}

func (c *CachedTrack) ID() string                { return c.id }
func (c *CachedTrack) Sequence() int             { return c.sequence }
func (c *CachedTrack) TrackID() string           { return c.trackID }
func (c *CachedTrack) Title() string             { return c.title }
func (c *CachedTrack) Artist() string            { return c.artist }
func (c *CachedTrack) FeaturedArtists() []string { return c.featuredArtists }
func (c *CachedTrack) Album() string             { return c.album }
func (c *CachedTrack) Duration() time.Duration   { return c.duration }
func (c *CachedTrack) FilePath() string          { return c.filePath }
func (c *CachedTrack) Size() int64               { return c.size }
func (c *CachedTrack) PlayCount() int            { return c.playCount }
func (c *CachedTrack) CreatedAt() time.Time      { return c.createdAt }
func (c *CachedTrack) UpdatedAt() time.Time      { return c.updatedAt }

func (c *CachedTrack) SetID(id string)              { c.id = id }
func (c *CachedTrack) SetSequence(seq int)          { c.sequence = seq }
func (c *CachedTrack) SetUpdatedAt(t time.Time)     { c.updatedAt = t }
func (c *CachedTrack) SetCreatedAt(t time.Time)     { c.createdAt = t }
func (c *CachedTrack) SetPlayCount(n int)           { c.playCount = n }
func (c *CachedTrack) SetFile(path string, n int64) { c.filePath, c.size = path, n }

// Track returns the catalog record as a Track without a stream URL.
func (c *CachedTrack) Track() Track {
	return Track{
		ID:              c.trackID,
		Title:           c.title,
		Artist:          c.artist,
		FeaturedArtists: c.featuredArtists,
		Album:           c.album,
		Duration:        c.duration,
	}
}

// Validate checks required fields.
func (c *CachedTrack) Validate() error {
	switch {
	case c.trackID == "":
		return fmt.Errorf("track id is required")
	case c.title == "":
		return fmt.Errorf("title is required")
	case c.filePath == "":
		return fmt.Errorf("file path is required")
	case c.size < 0:
		return fmt.Errorf("size must not be negative")
	}
	return nil
}

// JoinArtists encodes featured artists for storage.
func JoinArtists(names []string) string {
	return strings.Join(names, "\x1f")
}

// SplitArtists decodes featured artists from storage.
func SplitArtists(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\x1f")
}
