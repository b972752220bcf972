// package formatter renders tracks and catalog listings as text, CSV, Markdown or JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/tdx/internal/models"
	"github.com/desertthunder/tdx/internal/shared"
	"github.com/dustin/go-humanize"
)

// Format names an export format.
type Format string

const (
	FormatText     Format = "text"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// ParseFormat accepts a format name or common alias ("txt", "md").
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "text", "txt":
		return FormatText, nil
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, name)
}

// FormatDuration renders d as mm:ss, or hh:mm:ss from one hour up.
func FormatDuration(d time.Duration) string {
	total := int64(d / time.Second)
	if total < 0 {
		total = 0
	}
	hours, minutes, seconds := total/3600, (total%3600)/60, total%60
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

// TrackLine renders "Artist - Title ft. A, B (mm:ss)". Featured artists are left out when the title
// already credits them.
func TrackLine(t models.Track) string {
	var b strings.Builder
	b.WriteString(t.Artist)
	b.WriteString(" - ")
	b.WriteString(t.Title)

	if len(t.FeaturedArtists) > 0 && !creditsFeatures(t.Title) {
		b.WriteString(" ft. ")
		b.WriteString(strings.Join(t.FeaturedArtists, ", "))
	}

	fmt.Fprintf(&b, " (%s)", FormatDuration(t.Duration))
	return b.String()
}

// DescriptorLine renders a search match the same way as [TrackLine], marking matches that cannot be streamed.
func DescriptorLine(d models.TrackDescriptor) string {
	line := TrackLine(models.NewTrack(d, ""))
	if !d.AllowStreaming {
		line += " [unavailable]"
	}
	return line
}

func creditsFeatures(title string) bool {
	lower := strings.ToLower(title)
	return strings.Contains(lower, "feat.") || strings.Contains(lower, "ft.")
}

// ExportToCSV converts catalog rows to CSV with columns: #, TrackID, Title, Artist, Featured, Album, Duration, Size, Plays, Path
func ExportToCSV(tracks []*models.CachedTrack) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"#", "TrackID", "Title", "Artist", "Featured", "Album", "Duration", "Size", "Plays", "Path"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range tracks {
		record := []string{
			strconv.Itoa(track.Sequence()),
			track.TrackID(),
			track.Title(),
			track.Artist(),
			strings.Join(track.FeaturedArtists(), "; "),
			track.Album(),
			FormatDuration(track.Duration()),
			strconv.FormatInt(track.Size(), 10),
			strconv.Itoa(track.PlayCount()),
			track.FilePath(),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts catalog rows to a Markdown list.
func ExportToMarkdown(tracks []*models.CachedTrack) ([]byte, error) {
	var buf bytes.Buffer

	var total int64
	for _, track := range tracks {
		total += track.Size()
	}

	buf.WriteString("# Cached tracks\n\n")
	fmt.Fprintf(&buf, "**Tracks**: %d\n", len(tracks))
	fmt.Fprintf(&buf, "**Size**: %s\n\n", humanize.Bytes(uint64(total)))

	for _, track := range tracks {
		albumPart := ""
		if track.Album() != "" {
			albumPart = fmt.Sprintf(" _%s_", track.Album())
		}
		fmt.Fprintf(&buf, "%d. %s%s `%s`\n", track.Sequence(), TrackLine(track.Track()), albumPart, track.TrackID())
	}

	return buf.Bytes(), nil
}

// ExportToText converts catalog rows to one line per track.
func ExportToText(tracks []*models.CachedTrack) ([]byte, error) {
	var buf bytes.Buffer

	for _, track := range tracks {
		fmt.Fprintf(&buf, "#%d %s [%s, %d plays]\n",
			track.Sequence(), TrackLine(track.Track()), humanize.Bytes(uint64(track.Size())), track.PlayCount())
	}

	return buf.Bytes(), nil
}

type trackJSON struct {
	Sequence        int      `json:"sequence"`
	TrackID         string   `json:"track_id"`
	Title           string   `json:"title"`
	Artist          string   `json:"artist"`
	FeaturedArtists []string `json:"featured_artists,omitempty"`
	Album           string   `json:"album,omitempty"`
	Duration        int64    `json:"duration"`
	Size            int64    `json:"size"`
	PlayCount       int      `json:"play_count"`
	Path            string   `json:"path"`
}

// ExportToJSON converts catalog rows to an indented JSON array.
func ExportToJSON(tracks []*models.CachedTrack) ([]byte, error) {
	out := make([]trackJSON, 0, len(tracks))
	for _, track := range tracks {
		out = append(out, trackJSON{
			Sequence:        track.Sequence(),
			TrackID:         track.TrackID(),
			Title:           track.Title(),
			Artist:          track.Artist(),
			FeaturedArtists: track.FeaturedArtists(),
			Album:           track.Album(),
			Duration:        int64(track.Duration() / time.Second),
			Size:            track.Size(),
			PlayCount:       track.PlayCount(),
			Path:            track.FilePath(),
		})
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// Export renders tracks in format.
func Export(tracks []*models.CachedTrack, format Format) ([]byte, error) {
	switch format {
	case FormatCSV:
		return ExportToCSV(tracks)
	case FormatMarkdown:
		return ExportToMarkdown(tracks)
	case FormatJSON:
		return ExportToJSON(tracks)
	case FormatText, "":
		return ExportToText(tracks)
	}
	return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, format)
}

// WriteExport renders tracks in format and writes them to path.
func WriteExport(tracks []*models.CachedTrack, format Format, path string) error {
	data, err := Export(tracks, format)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
