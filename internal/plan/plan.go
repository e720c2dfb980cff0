// Package plan resolves a user conversion request into dispatchable job
// plans.
package plan

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"clipforge/internal/enhance"
	"clipforge/internal/fastcopy"
	"clipforge/internal/naming"
	"clipforge/internal/segment"
	"clipforge/internal/services"
)

// CutMode selects how marked segments map onto output files.
type CutMode string

const (
	// CutMerge joins all segments into a single output file.
	CutMerge CutMode = "merge"
	// CutSeparate writes one output file per segment.
	CutSeparate CutMode = "separate"
)

// ParseCutMode validates a user supplied cut mode string.
func ParseCutMode(value string) (CutMode, error) {
	switch CutMode(strings.ToLower(strings.TrimSpace(value))) {
	case CutMerge, "":
		return CutMerge, nil
	case CutSeparate:
		return CutSeparate, nil
	default:
		return "", services.Wrap(services.ErrValidation, "plan", "parse cut mode",
			fmt.Sprintf("unknown cut mode %q", value), nil)
	}
}

// Lossless output formats that carry no bitrate setting.
var losslessFormats = map[string]bool{
	"flac": true,
	"wav":  true,
}

// OutputSpec describes the destination of a conversion.
type OutputSpec struct {
	// Format is the target container extension without a dot.
	Format string
	// Bitrate is the target bitrate in kbit/s. Ignored for lossless
	// formats.
	Bitrate int
	// Lossless marks formats that take no bitrate.
	Lossless bool
	// Dir is the destination directory.
	Dir string
	// Template names output files, see the naming package for tokens.
	Template string
	// Overwrite replaces existing files instead of picking a unique name.
	Overwrite bool
}

// JobPlan is the fully resolved description of one conversion, immutable
// once built.
type JobPlan struct {
	ID      string
	BatchID string

	Source   segment.Source
	Segments []segment.Segment
	Output   OutputSpec
	Enhance  enhance.Settings
	CutMode  CutMode

	Mode       fastcopy.Mode
	OutputPath string
	// BoundaryNotes records fast-copy boundary adjustments for the report.
	BoundaryNotes []string
}

// Merge reports whether this plan joins several segments into one output.
func (p JobPlan) Merge() bool {
	return len(p.Segments) > 1
}

// ExpectedDuration estimates the output duration in seconds, used to turn
// elapsed-time progress markers into a completion fraction.
func (p JobPlan) ExpectedDuration() float64 {
	base := p.Source.Duration
	if len(p.Segments) > 0 {
		base = segment.TotalDuration(p.Segments)
	}
	if p.Enhance.Speed > 0 {
		base /= p.Enhance.Speed
	}
	return base
}

// Request collects everything the builder needs for one source file.
type Request struct {
	Source   segment.Source
	Segments *segment.List
	Output   OutputSpec
	Enhance  enhance.Settings
	CutMode  CutMode
	Order    segment.Order
	// BatchID groups plans from several requests into one batch. When empty
	// the builder assigns a fresh one.
	BatchID string
}

// Builder turns requests into job plans.
type Builder struct {
	Analyzer fastcopy.Analyzer
}

// Build resolves a request into job plans sharing one batch ID. No segments
// yields exactly one whole-file plan. Merge yields one plan carrying the
// normalized segments. Separate yields one plan per segment. Validation
// failures surface before anything is queued.
func (b Builder) Build(req Request) ([]JobPlan, error) {
	if err := validateOutput(req.Output); err != nil {
		return nil, err
	}
	if err := req.Enhance.Validate(); err != nil {
		return nil, err
	}
	if req.Source.Path == "" || req.Source.Duration <= 0 {
		return nil, services.Wrap(services.ErrConfiguration, "plan", "build",
			"source has not been probed", nil)
	}

	batchID := req.BatchID
	if batchID == "" {
		batchID = uuid.New().String()
	}
	fields := naming.FieldsForSource(req.Source.Path)
	fields.Format = req.Output.Format

	var segs []segment.Segment
	if req.Segments != nil {
		segs = req.Segments.Normalize(req.Order)
	}

	var plans []JobPlan
	switch {
	case len(segs) == 0:
		plans = append(plans, b.newPlan(batchID, req, nil, outputPath(req.Output, fields, false)))
	case req.CutMode == CutSeparate:
		for i, seg := range segs {
			f := fields
			f.Index = i
			f.Position = i + 1
			f.Start = seg.Start
			f.End = seg.End
			plans = append(plans, b.newPlan(batchID, req, []segment.Segment{seg}, outputPath(req.Output, f, true)))
		}
	default:
		plans = append(plans, b.newPlan(batchID, req, segs, outputPath(req.Output, fields, false)))
	}

	for i := range plans {
		if plans[i].OutputPath == plans[i].Source.Path {
			base := naming.ConvertedName(filepath.Base(plans[i].OutputPath))
			plans[i].OutputPath = filepath.Join(filepath.Dir(plans[i].OutputPath), base)
		}
		if !req.Output.Overwrite {
			plans[i].OutputPath = naming.EnsureUnique(plans[i].OutputPath)
		}
	}
	return plans, nil
}

func (b Builder) newPlan(batchID string, req Request, segs []segment.Segment, output string) JobPlan {
	decision := b.Analyzer.Analyze(req.Source, segs, req.Output.Format, req.Enhance)
	return JobPlan{
		ID:            uuid.New().String(),
		BatchID:       batchID,
		Source:        req.Source,
		Segments:      decision.Adjusted,
		Output:        req.Output,
		Enhance:       req.Enhance,
		CutMode:       req.CutMode,
		Mode:          decision.Mode,
		OutputPath:    output,
		BoundaryNotes: decision.Notes,
	}
}

// outputPath renders the output file name for one plan. Single-output plans
// drop the position token of the default template so a lone file is not
// named "-1".
func outputPath(spec OutputSpec, fields naming.Fields, multi bool) string {
	template := spec.Template
	if !multi && (template == "" || template == naming.DefaultTemplate) {
		template = "{name}.{format}"
	}
	return filepath.Join(spec.Dir, naming.Expand(template, fields))
}

func validateOutput(spec OutputSpec) error {
	if strings.TrimSpace(spec.Format) == "" {
		return services.Wrap(services.ErrConfiguration, "plan", "validate output",
			"output format is not set", nil)
	}
	if !spec.Lossless && !losslessFormats[strings.ToLower(spec.Format)] {
		if spec.Bitrate < 64 || spec.Bitrate > 320 {
			return services.Wrap(services.ErrConfiguration, "plan", "validate output",
				fmt.Sprintf("bitrate %d outside 64-320 kbit/s", spec.Bitrate), nil)
		}
	}
	if spec.Dir == "" {
		return services.Wrap(services.ErrConfiguration, "plan", "validate output",
			"destination directory is not set", nil)
	}
	if err := ensureWritable(spec.Dir); err != nil {
		return services.Wrap(services.ErrConfiguration, "plan", "validate output",
			fmt.Sprintf("destination %s is not writable", spec.Dir), err)
	}
	return nil
}

func ensureWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	probe, err := os.CreateTemp(dir, ".clipforge-*")
	if err != nil {
		return err
	}
	name := probe.Name()
	probe.Close()
	return os.Remove(name)
}
