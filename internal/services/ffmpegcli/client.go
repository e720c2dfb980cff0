package ffmpegcli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"clipforge/internal/fastcopy"
	"clipforge/internal/fileutil"
	"clipforge/internal/plan"
	"clipforge/internal/segment"
	"clipforge/internal/services"
)

// Update captures one progress marker from the tool's diagnostic stream.
type Update struct {
	// Fraction is the completed share of the expected output, in [0,1].
	Fraction float64
	// Speed is the tool's reported processing speed multiplier, 0 when
	// the marker carried none.
	Speed float64
}

// Result describes a finished process run.
type Result struct {
	ExitCode   int
	StderrTail []string
	OutputPath string
}

// Runner defines the behaviour required by the scheduler.
type Runner interface {
	Run(ctx context.Context, job plan.JobPlan, progress func(Update)) (Result, error)
	Available() error
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onStderr func(string)) error
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithStagingDir sets where merge intermediates are written.
func WithStagingDir(dir string) Option {
	return func(c *Client) {
		if dir != "" {
			c.stagingDir = dir
		}
	}
}

// WithNoiseModel sets the RNNoise model path used by the denoise filter.
func WithNoiseModel(path string) Option {
	return func(c *Client) {
		c.noiseModel = path
	}
}

// stderrTailLines bounds the diagnostic tail kept per run.
const stderrTailLines = 20

// Client wraps ffmpeg CLI interactions.
type Client struct {
	binary     string
	timeout    time.Duration
	stagingDir string
	noiseModel string
	exec       Executor
}

// New constructs an ffmpeg client. jobTimeoutSeconds of zero disables the
// per-job timeout.
func New(binary string, jobTimeoutSeconds int, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("ffmpeg binary required")
	}
	client := &Client{
		binary:     binary,
		timeout:    time.Duration(jobTimeoutSeconds) * time.Second,
		stagingDir: os.TempDir(),
		exec:       commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Available reports whether the configured binary can be launched.
func (c *Client) Available() error {
	if _, err := exec.LookPath(c.binary); err != nil {
		return services.Wrap(services.ErrToolUnavailable, "ffmpeg", "lookup",
			fmt.Sprintf("binary %q not found", c.binary), err)
	}
	return nil
}

// Run executes the conversion described by job. Progress markers parsed from
// stderr are delivered through the callback as completion fractions. The
// child is killed when ctx is cancelled and Run returns only after it has
// exited.
func (c *Client) Run(ctx context.Context, job plan.JobPlan, progress func(Update)) (Result, error) {
	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	run := &jobRun{client: c, job: job, progress: progress, total: job.ExpectedDuration()}

	// Render into the staging area and only move the file to its final
	// name once it has been verified, so a killed run never leaves a
	// truncated file at the destination.
	staged := filepath.Join(c.stagingDir,
		fmt.Sprintf("stage-%s%s", job.ID, filepath.Ext(job.OutputPath)))
	defer os.Remove(staged)

	var err error
	if job.Merge() {
		err = run.executeMerge(runCtx, staged)
	} else {
		err = run.executeSingle(runCtx, staged)
	}

	result := Result{ExitCode: run.exitCode, StderrTail: run.tail.lines(), OutputPath: job.OutputPath}
	if err != nil {
		return result, c.classify(runCtx, err, result)
	}

	info, statErr := os.Stat(staged)
	if statErr != nil || info.Size() == 0 {
		return result, services.Wrap(services.ErrProcess, "ffmpeg", "verify output",
			fmt.Sprintf("no valid output at %s", job.OutputPath), statErr)
	}
	if err := finalizeOutput(staged, job.OutputPath); err != nil {
		return result, services.Wrap(services.ErrProcess, "ffmpeg", "finalize output",
			job.OutputPath, err)
	}
	return result, nil
}

// CommandPreview returns the argv lists Run would issue for job, one per
// ffmpeg invocation. Staging paths are shown as bare part names since none
// exist yet. Used by dry runs.
func (c *Client) CommandPreview(job plan.JobPlan) [][]string {
	dest := job.OutputPath
	if !job.Merge() {
		var seg *segment.Segment
		if len(job.Segments) == 1 {
			seg = &job.Segments[0]
		}
		return [][]string{c.buildArgs(job, seg, dest)}
	}

	ext := filepath.Ext(dest)
	cmds := make([][]string, 0, len(job.Segments)+1)
	for i := range job.Segments {
		seg := job.Segments[i]
		part := fmt.Sprintf("part-%03d%s", i, ext)
		cmds = append(cmds, c.buildArgs(job, &seg, part))
	}
	concat := []string{
		"-hide_banner", "-nostdin", "-y",
		"-f", "concat", "-safe", "0",
		"-i", "concat.txt",
		"-c", "copy",
	}
	concat = appendContainerArgs(concat, job.Output.Format)
	concat = append(concat, dest)
	return append(cmds, concat)
}

// finalizeOutput moves the staged file into place. Rename fails when staging
// and destination sit on different filesystems, so it falls back to a
// checksummed copy.
func finalizeOutput(staged, dest string) error {
	if err := os.Rename(staged, dest); err == nil {
		return nil
	}
	if err := fileutil.CopyFileVerified(staged, dest); err != nil {
		return err
	}
	return os.Remove(staged)
}

func (c *Client) classify(ctx context.Context, err error, result Result) error {
	var execErr *exec.Error
	switch {
	case errors.As(err, &execErr), errors.Is(err, os.ErrPermission):
		return services.Wrap(services.ErrToolUnavailable, "ffmpeg", "spawn",
			"cannot launch "+c.binary, err)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, "ffmpeg", "run", "job timeout exceeded", err)
	case errors.Is(ctx.Err(), context.Canceled):
		return context.Canceled
	default:
		detail := strings.Join(result.StderrTail, "\n")
		if detail == "" {
			detail = err.Error()
		}
		return services.Wrap(services.ErrProcess, "ffmpeg", "run",
			fmt.Sprintf("exit code %d: %s", result.ExitCode, detail), err)
	}
}

// jobRun carries the mutable state of one Run invocation.
type jobRun struct {
	client   *Client
	job      plan.JobPlan
	progress func(Update)
	total    float64

	tail     tailBuffer
	exitCode int
	// done is the output seconds completed by earlier phases of a merge.
	done float64
	// best keeps reported fractions monotonic across phases.
	best float64
}

func (r *jobRun) executeSingle(ctx context.Context, dest string) error {
	var seg *segment.Segment
	if len(r.job.Segments) == 1 {
		seg = &r.job.Segments[0]
	}
	return r.invoke(ctx, r.client.buildArgs(r.job, seg, dest))
}

// executeMerge extracts every segment into a staging directory, then joins
// the parts with the concat demuxer without re-encoding them a second time.
func (r *jobRun) executeMerge(ctx context.Context, dest string) error {
	workDir, err := os.MkdirTemp(r.client.stagingDir, "clipforge-merge-")
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	ext := filepath.Ext(dest)
	parts := make([]string, 0, len(r.job.Segments))
	for i := range r.job.Segments {
		seg := r.job.Segments[i]
		part := filepath.Join(workDir, fmt.Sprintf("part-%03d%s", i, ext))
		if err := r.invoke(ctx, r.client.buildArgs(r.job, &seg, part)); err != nil {
			return fmt.Errorf("extract segment %d: %w", i, err)
		}
		parts = append(parts, part)
		r.done += seg.Duration() / speedFactor(r.job)
	}

	listPath := filepath.Join(workDir, "concat.txt")
	if err := writeConcatList(listPath, parts); err != nil {
		return err
	}
	args := []string{
		"-hide_banner", "-nostdin", "-y",
		"-f", "concat", "-safe", "0",
		"-i", listPath,
		"-c", "copy",
	}
	args = appendContainerArgs(args, r.job.Output.Format)
	args = append(args, dest)
	// Concat rewrites the whole output, so its own time markers restart
	// at zero. done is reset and best keeps the fraction from regressing.
	r.done = 0
	return r.invoke(ctx, args)
}

func (r *jobRun) invoke(ctx context.Context, args []string) error {
	err := r.client.exec.Run(ctx, r.client.binary, args, func(line string) {
		r.tail.add(line)
		seconds, speed, ok := parseProgress(line)
		if !ok || r.progress == nil || r.total <= 0 {
			return
		}
		fraction := (r.done + seconds) / r.total
		if fraction > 1 {
			fraction = 1
		}
		if fraction > r.best {
			r.best = fraction
			r.progress(Update{Fraction: fraction, Speed: speed})
		}
	})
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		r.exitCode = exitErr.ExitCode()
	}
	return err
}

// buildArgs assembles the argument list for one extraction or conversion.
// Seeking uses -ss before -i with -t for the duration, which is fast and,
// combined with re-encoding, accurate.
func (c *Client) buildArgs(job plan.JobPlan, seg *segment.Segment, output string) []string {
	args := []string{"-hide_banner", "-nostdin", "-y"}
	if seg != nil {
		args = append(args, "-ss", formatSeconds(seg.Start))
	}
	args = append(args, "-i", job.Source.Path)
	if seg != nil {
		args = append(args, "-t", formatSeconds(seg.Duration()))
	}
	args = append(args, "-vn")

	if job.Mode == fastcopy.FastCopy {
		args = append(args, "-c:a", "copy")
	} else {
		if chain, _ := job.Enhance.FilterChain(c.noiseModel); chain != "" {
			args = append(args, "-af", chain)
		}
		args = append(args, "-c:a", codecFor(job.Output.Format))
		if !job.Output.Lossless && !isLosslessFormat(job.Output.Format) {
			args = append(args, "-b:a", strconv.Itoa(job.Output.Bitrate)+"k")
		}
	}
	args = appendContainerArgs(args, job.Output.Format)
	return append(args, output)
}

// appendContainerArgs adds format flags that ffmpeg cannot infer from the
// output extension. Raw aac streams need the adts muxer.
func appendContainerArgs(args []string, format string) []string {
	if strings.EqualFold(format, "aac") {
		return append(args, "-f", "adts")
	}
	return args
}

func codecFor(format string) string {
	switch strings.ToLower(format) {
	case "mp3":
		return "libmp3lame"
	case "aac", "m4a", "mp4", "mov":
		return "aac"
	case "ogg":
		return "libvorbis"
	case "opus":
		return "libopus"
	case "flac":
		return "flac"
	case "wav":
		return "pcm_s16le"
	default:
		return strings.ToLower(format)
	}
}

func isLosslessFormat(format string) bool {
	switch strings.ToLower(format) {
	case "flac", "wav":
		return true
	default:
		return false
	}
}

func speedFactor(job plan.JobPlan) float64 {
	if job.Enhance.Speed > 0 {
		return job.Enhance.Speed
	}
	return 1
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func writeConcatList(path string, parts []string) error {
	var b strings.Builder
	for _, part := range parts {
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(part, "'", `'\''`))
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	return nil
}

// parseProgress extracts the elapsed output time and speed multiplier from
// an ffmpeg status line such as
// "size=512kB time=00:01:23.45 bitrate=128.0kbits/s speed=8.21x".
func parseProgress(line string) (seconds, speed float64, ok bool) {
	idx := strings.Index(line, "time=")
	if idx < 0 {
		return 0, 0, false
	}
	rest := line[idx+len("time="):]
	if end := strings.IndexByte(rest, ' '); end >= 0 {
		rest = rest[:end]
	}
	seconds, err := parseClock(strings.TrimSpace(rest))
	if err != nil {
		return 0, 0, false
	}
	if sIdx := strings.Index(line, "speed="); sIdx >= 0 {
		raw := line[sIdx+len("speed="):]
		if end := strings.IndexByte(raw, ' '); end >= 0 {
			raw = raw[:end]
		}
		raw = strings.TrimSuffix(strings.TrimSpace(raw), "x")
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			speed = v
		}
	}
	return seconds, speed, true
}

func parseClock(value string) (float64, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("malformed clock %q", value)
	}
	hours, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, err
	}
	minutes, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, err
	}
	secs, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, err
	}
	return hours*3600 + minutes*60 + secs, nil
}

// tailBuffer keeps the last stderrTailLines lines seen.
type tailBuffer struct {
	buf   [stderrTailLines]string
	next  int
	count int
}

func (t *tailBuffer) add(line string) {
	t.buf[t.next] = line
	t.next = (t.next + 1) % stderrTailLines
	if t.count < stderrTailLines {
		t.count++
	}
}

func (t *tailBuffer) lines() []string {
	out := make([]string, 0, t.count)
	start := t.next - t.count
	if start < 0 {
		start += stderrTailLines
	}
	for i := 0; i < t.count; i++ {
		out = append(out, t.buf[(start+i)%stderrTailLines])
	}
	return out
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onStderr func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	cmd.Stdout = nil
	if err := cmd.Start(); err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		// ffmpeg rewrites its status line with carriage returns.
		scanner.Split(scanLinesCR)
		for scanner.Scan() {
			if onStderr != nil {
				onStderr(scanner.Text())
			}
		}
	}()

	wg.Wait()
	return cmd.Wait()
}

// scanLinesCR splits on both newline and bare carriage return.
func scanLinesCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	for i, b := range data {
		if b == '\n' || b == '\r' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
