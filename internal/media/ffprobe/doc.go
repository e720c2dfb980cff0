// Package ffprobe provides a typed wrapper around ffprobe JSON output,
// focused on the audio-stream metadata the planner needs.
//
// Primary entry points:
//   - Inspect: executes ffprobe and returns the parsed Result
//   - Probe: builds the segment.Source snapshot for a file
package ffprobe
