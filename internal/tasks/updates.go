package tasks

import (
	"fmt"

	"github.com/desertthunder/tdx/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	Lookup Phase = iota
	CacheHit
	Resolve
	Download
	Storing
	Done
	Failed
)

func (p Phase) String() string {
	switch p {
	case Lookup:
		return "lookup"
	case CacheHit:
		return "cache_hit"
	case Resolve:
		return "resolve"
	case Download:
		return "download"
	case Storing:
		return "store"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return ""
	}
}

func lookupUpdate(step, total int, req Request) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Lookup,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Looking up %s", req),
		Data:    req,
	}
}

func cacheHitUpdate(step, total int, d models.TrackDescriptor) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CacheHit,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Already cached: %s", d.Title),
		Data:    d,
	}
}

func resolveUpdate(step, total int, d models.TrackDescriptor) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Resolve,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Resolving stream for %s", d.Title),
		Data:    d,
	}
}

func downloadUpdate(step, total int, t models.Track) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Download,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Downloading %s", t.Title),
		Data:    t,
	}
}

func storeUpdate(step, total int, t models.Track, size int64) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Storing,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Stored %s (%d bytes)", t.Title, size),
		Data:    t,
	}
}

func doneUpdate(step, total int, res *FetchResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Done,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("✓ %s", res.Track.Title),
		Data:    res,
	}
}

func failedUpdate(step, total int, req Request, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Failed,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("✗ %s: %v", req, err),
		Data:    err,
	}
}
