package segment

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	// ErrInvalidRange rejects bounds outside [0, duration] or end <= start.
	ErrInvalidRange = errors.New("invalid segment range")
	// ErrTooShort rejects degenerate segments below MinDuration.
	ErrTooShort = errors.New("segment too short")
)

// MinDuration is the smallest segment the engine will cut, in seconds.
const MinDuration = 0.05

// Source is the probed snapshot of a media file. Fields change only by
// re-probing the file.
type Source struct {
	Path       string
	Duration   float64
	Format     string
	Codec      string
	SampleRate int
	Channels   int
	BitRate    int64
}

// Segment is a marked time range on a Source. Index is the stable creation
// identifier, independent of chronological position.
type Segment struct {
	Start float64
	End   float64
	Index int
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Order selects how segments are sequenced for output numbering and
// concatenation. It never affects validity.
type Order string

const (
	// OrderChronological sorts segments by start time.
	OrderChronological Order = "chronological"
	// OrderIndex keeps creation order.
	OrderIndex Order = "index"
)

// ParseOrder converts a string into a known Order.
func ParseOrder(value string) (Order, bool) {
	switch Order(value) {
	case OrderChronological:
		return OrderChronological, true
	case OrderIndex, "":
		return OrderIndex, true
	default:
		return "", false
	}
}

// List owns the segments marked on one source, in insertion order.
type List struct {
	source   Source
	segments []Segment
	next     int
}

// NewList creates an empty segment list for a source.
func NewList(source Source) *List {
	return &List{source: source}
}

// Source returns the source the list belongs to.
func (l *List) Source() Source {
	return l.source
}

// Add validates and appends a segment. Overlaps with existing segments are
// permitted: each marked range is an independent cut.
func (l *List) Add(start, end float64) (Segment, error) {
	if math.IsNaN(start) || math.IsNaN(end) || math.IsInf(start, 0) || math.IsInf(end, 0) {
		return Segment{}, fmt.Errorf("%w: non-finite bounds (%v, %v)", ErrInvalidRange, start, end)
	}
	if end <= start {
		return Segment{}, fmt.Errorf("%w: end %.3f must be after start %.3f", ErrInvalidRange, end, start)
	}
	if start < 0 || end > l.source.Duration {
		return Segment{}, fmt.Errorf("%w: (%.3f, %.3f) outside [0, %.3f]", ErrInvalidRange, start, end, l.source.Duration)
	}
	if end-start < MinDuration {
		return Segment{}, fmt.Errorf("%w: %.3fs is below the %.2fs minimum", ErrTooShort, end-start, MinDuration)
	}

	seg := Segment{Start: start, End: end, Index: l.next}
	l.next++
	l.segments = append(l.segments, seg)
	return seg, nil
}

// Remove deletes the segment with the given index. Under index ordering the
// remaining segments are renumbered to stay contiguous; under chronological
// ordering indices are stable identifiers and keep their values.
func (l *List) Remove(index int, mode Order) bool {
	pos := -1
	for i, seg := range l.segments {
		if seg.Index == index {
			pos = i
			break
		}
	}
	if pos < 0 {
		return false
	}
	l.segments = append(l.segments[:pos], l.segments[pos+1:]...)
	if mode == OrderIndex {
		for i := range l.segments {
			l.segments[i].Index = i
		}
		l.next = len(l.segments)
	}
	return true
}

// Len returns the number of marked segments.
func (l *List) Len() int {
	return len(l.segments)
}

// Segments returns a copy of the stored segments in insertion order.
func (l *List) Segments() []Segment {
	cp := make([]Segment, len(l.segments))
	copy(cp, l.segments)
	return cp
}

// Normalize returns the segments ordered for the given mode without mutating
// stored order. Chronological sorts by start (stable, so equal starts keep
// insertion order); index returns insertion order. Normalizing the result
// again with the same mode yields identical output.
func (l *List) Normalize(mode Order) []Segment {
	out := l.Segments()
	if mode == OrderChronological {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Start < out[j].Start
		})
	}
	return out
}

// NormalizeSegments applies Normalize ordering to a free-standing slice.
func NormalizeSegments(segments []Segment, mode Order) []Segment {
	out := make([]Segment, len(segments))
	copy(out, segments)
	if mode == OrderChronological {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Start < out[j].Start
		})
	}
	return out
}

// TotalDuration sums segment durations.
func TotalDuration(segments []Segment) float64 {
	var total float64
	for _, seg := range segments {
		total += seg.Duration()
	}
	return total
}
