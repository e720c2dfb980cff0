// Package ffmpegcli mediates access to the ffmpeg CLI used for cutting and
// converting audio.
//
// It builds deterministic argument lists from job plans, parses elapsed-time
// progress markers from ffmpeg's diagnostic stream, keeps a bounded stderr
// tail for failure reports, and exposes a testable executor seam.
//
// Prefer this package over ad-hoc exec.Command usage when invoking ffmpeg so
// progress reporting, cancellation, and timeout handling remain consistent.
package ffmpegcli
