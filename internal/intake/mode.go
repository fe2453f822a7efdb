package intake

import "strings"

// Mode selects where the pipeline runs for a submission.
type Mode string

const (
	// ModeSync runs every step inside the request.
	ModeSync Mode = "sync"
	// ModeAsync returns the id at once and runs in a background goroutine.
	ModeAsync Mode = "async"
	// ModeQueue uploads the document, then hands the rest to a worker.
	ModeQueue Mode = "queue"
)

// ParseMode maps the mode query parameter; empty means sync.
func ParseMode(raw string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeSync:
		return ModeSync, true
	case ModeAsync:
		return ModeAsync, true
	case ModeQueue:
		return ModeQueue, true
	default:
		return "", false
	}
}
