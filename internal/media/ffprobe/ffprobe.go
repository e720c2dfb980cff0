package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"clipforge/internal/segment"
	"clipforge/internal/services"
)

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index      int    `json:"index"`
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"`
	Duration   string `json:"duration"`
	BitRate    string `json:"bit_rate"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string `json:"filename"`
	NBStreams  int    `json:"nb_streams"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
	FormatName string `json:"format_name"`
}

// Inspect executes ffprobe against the provided path and decodes the JSON response.
func Inspect(ctx context.Context, binary string, path string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.CombinedOutput()
	if err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return Result{}, services.Wrap(services.ErrToolUnavailable, "ffprobe", "inspect", binary, err)
		}
		return Result{}, fmt.Errorf("ffprobe inspect: %w: %s", err, strings.TrimSpace(string(output)))
	}

	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// Probe inspects a file and builds the source snapshot the segment model and
// planner work against. Files without an audio stream are rejected.
func Probe(ctx context.Context, binary string, path string) (segment.Source, error) {
	result, err := Inspect(ctx, binary, path)
	if err != nil {
		return segment.Source{}, err
	}

	audio, ok := result.PrimaryAudio()
	if !ok {
		return segment.Source{}, services.Wrap(services.ErrValidation, "ffprobe", "probe", fmt.Sprintf("no audio stream in %s", path), nil)
	}

	duration := result.DurationSeconds()
	if duration <= 0 {
		duration = parseFloat(audio.Duration)
	}
	if duration <= 0 || math.IsNaN(duration) {
		return segment.Source{}, services.Wrap(services.ErrValidation, "ffprobe", "probe", fmt.Sprintf("no usable duration for %s", path), nil)
	}

	return segment.Source{
		Path:       path,
		Duration:   duration,
		Format:     primaryFormatName(result.Format.FormatName),
		Codec:      strings.ToLower(audio.CodecName),
		SampleRate: int(parseFloat(audio.SampleRate)),
		Channels:   audio.Channels,
		BitRate:    result.BitRate(),
	}, nil
}

// PrimaryAudio returns the first audio stream, which ffmpeg's default stream
// selection would also pick for audio-only outputs.
func (r Result) PrimaryAudio() (Stream, bool) {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "audio") {
			return stream, true
		}
	}
	return Stream{}, false
}

// AudioStreamCount returns the number of audio streams discovered.
func (r Result) AudioStreamCount() int {
	count := 0
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "audio") {
			count++
		}
	}
	return count
}

// HasVideo reports whether the container carries a video stream, meaning the
// audio must be extracted rather than remuxed as-is.
func (r Result) HasVideo() bool {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") {
			return true
		}
	}
	return false
}

// DurationSeconds returns the container duration in seconds, or 0 when unavailable.
func (r Result) DurationSeconds() float64 {
	d := parseFloat(r.Format.Duration)
	if math.IsNaN(d) {
		return 0
	}
	return d
}

// BitRate returns the container bitrate in bits per second, or 0 when unavailable.
func (r Result) BitRate() int64 {
	rate := parseFloat(r.Format.BitRate)
	if math.IsNaN(rate) || rate < 0 {
		return 0
	}
	return int64(rate)
}

// primaryFormatName collapses ffprobe's comma-joined demuxer aliases
// ("mov,mp4,m4a,3gp,3g2,mj2") to the first name.
func primaryFormatName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if idx := strings.IndexByte(name, ','); idx >= 0 {
		name = name[:idx]
	}
	return name
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}
