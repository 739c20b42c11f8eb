package protocol

import (
	"math"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// now is swapped in tests.
var now = time.Now

// ParseID maps a wire shape id to its numeric form. Integer text maps to
// itself and decimal text is truncated. Anything else falls back to the
// current Unix time in milliseconds, so two unparseable ids decoded within
// the same millisecond collide.
func ParseID(s string) int64 {
	s = strings.TrimSpace(s)
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return id
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) &&
		f >= math.MinInt64 && f < math.MaxInt64 {
		return int64(f)
	}
	return now().UnixMilli()
}

// FormatID is the inverse of ParseID for numeric ids.
func FormatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// lastShapeID backs NewShapeID. It is shared by every caller in the process.
var lastShapeID atomic.Int64

// NewShapeID returns an id for a locally created shape. Ids are taken from
// the millisecond clock and are strictly increasing within the process.
func NewShapeID() int64 {
	for {
		prev := lastShapeID.Load()
		next := now().UnixMilli()
		if next <= prev {
			next = prev + 1
		}
		if lastShapeID.CompareAndSwap(prev, next) {
			return next
		}
	}
}

// NewDraftID returns a fresh, time-sortable draft identifier (UUIDv7).
func NewDraftID() string {
	return uuid.Must(uuid.NewV7()).String()
}
