// Package fastcopy decides whether a job can cut by stream copy instead of
// re-encoding, and adjusts segment boundaries to legal seek points when it
// can.
package fastcopy

import (
	"fmt"
	"math"
	"strings"

	"clipforge/internal/enhance"
	"clipforge/internal/segment"
)

// Mode selects the execution strategy for a job.
type Mode string

const (
	// FastCopy remuxes the stream without decoding.
	FastCopy Mode = "fastcopy"
	// ReEncode decodes and encodes the stream.
	ReEncode Mode = "reencode"
)

// Decision is the analyzer's verdict for one job.
type Decision struct {
	Mode Mode
	// Adjusted holds the segments with boundaries snapped to seek points.
	// Equal to the input segments when Mode is ReEncode.
	Adjusted []segment.Segment
	// Notes records every boundary the analyzer moved and why fast copy
	// was rejected, for the batch report.
	Notes []string
}

// Analyzer holds the tunables for feasibility checks.
type Analyzer struct {
	// Enabled gates the whole analysis. When false every decision is
	// ReEncode.
	Enabled bool
	// Slack is the maximum seconds a boundary may drift when snapping.
	Slack float64
	// Policy maps a source codec to the output containers it may be
	// copied into.
	Policy map[string][]string
}

// DefaultPolicy returns the stream-copy compatibility table used when the
// configuration does not override it. Keys are codec names as reported by
// the prober, values are legal output formats.
func DefaultPolicy() map[string][]string {
	return map[string][]string{
		"mp3":       {"mp3"},
		"aac":       {"aac", "m4a", "mp4", "mov"},
		"flac":      {"flac"},
		"opus":      {"opus", "ogg"},
		"vorbis":    {"ogg"},
		"pcm_s16le": {"wav"},
		"pcm_s24le": {"wav"},
		"pcm_f32le": {"wav"},
	}
}

// samplesPerFrame models the seek granularity of codecs that pack samples
// into fixed frames. Codecs absent from the table seek exactly.
var samplesPerFrame = map[string]int{
	"mp3":    1152,
	"aac":    1024,
	"opus":   960,
	"vorbis": 1024,
	"flac":   4096,
}

// Analyze decides whether the given cut can run as a stream copy. All three
// conditions must hold: the enhancement settings are neutral, the policy
// permits copying the source codec into the target format, and every segment
// boundary lies within Slack of a modeled seek point.
func (a Analyzer) Analyze(src segment.Source, segs []segment.Segment, targetFormat string, settings enhance.Settings) Decision {
	reencode := func(reason string) Decision {
		return Decision{Mode: ReEncode, Adjusted: append([]segment.Segment(nil), segs...), Notes: []string{reason}}
	}

	if !a.Enabled {
		return reencode("fast copy disabled by configuration")
	}
	if !settings.IsNeutral() {
		return reencode("enhancements require decoding")
	}

	codec := strings.ToLower(src.Codec)
	target := strings.ToLower(targetFormat)
	containers, ok := a.Policy[codec]
	if !ok {
		return reencode(fmt.Sprintf("no copy policy for codec %q", codec))
	}
	allowed := false
	for _, c := range containers {
		if c == target {
			allowed = true
			break
		}
	}
	if !allowed {
		return reencode(fmt.Sprintf("codec %q cannot be copied into %q", codec, target))
	}

	grid := frameDuration(codec, src.SampleRate)
	adjusted := make([]segment.Segment, 0, len(segs))
	var notes []string
	for _, seg := range segs {
		start, startDrift := snap(seg.Start, grid)
		end, endDrift := snap(seg.End, grid)
		if startDrift > a.Slack || endDrift > a.Slack {
			return reencode(fmt.Sprintf(
				"segment %d boundary drift %.3fs exceeds slack %.3fs",
				seg.Index, math.Max(startDrift, endDrift), a.Slack))
		}
		if startDrift > 0 {
			notes = append(notes, fmt.Sprintf("segment %d start moved %.3fs to %.3f", seg.Index, startDrift, start))
		}
		if endDrift > 0 {
			notes = append(notes, fmt.Sprintf("segment %d end moved %.3fs to %.3f", seg.Index, endDrift, end))
		}
		seg.Start = start
		seg.End = end
		adjusted = append(adjusted, seg)
	}
	return Decision{Mode: FastCopy, Adjusted: adjusted, Notes: notes}
}

// frameDuration returns the seek grid spacing in seconds, or 0 when the
// codec seeks exactly.
func frameDuration(codec string, sampleRate int) float64 {
	samples, ok := samplesPerFrame[codec]
	if !ok || sampleRate <= 0 {
		return 0
	}
	return float64(samples) / float64(sampleRate)
}

// snap moves t back to the nearest preceding grid point and reports the
// drift. Stream copy can only begin and end on a frame boundary, and seeking
// lands at or before the requested time, never after.
func snap(t, grid float64) (float64, float64) {
	if grid <= 0 {
		return t, 0
	}
	// The epsilon keeps a boundary already on the grid from dropping a
	// whole frame to float error.
	snapped := math.Floor(t/grid+1e-9) * grid
	if snapped < 0 {
		snapped = 0
	}
	return snapped, math.Abs(snapped - t)
}
