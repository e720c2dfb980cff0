package fastcopy

import (
	"math"
	"math/rand"
	"strings"
	"testing"

	"clipforge/internal/enhance"
	"clipforge/internal/segment"
)

func analyzer() Analyzer {
	return Analyzer{Enabled: true, Slack: 0.5, Policy: DefaultPolicy()}
}

func mp3Source() segment.Source {
	return segment.Source{Path: "in.mp3", Duration: 300, Format: "mp3", Codec: "mp3", SampleRate: 44100}
}

func TestAnalyzeFastCopyRemux(t *testing.T) {
	segs := []segment.Segment{{Start: 10, End: 20, Index: 0}}
	d := analyzer().Analyze(mp3Source(), segs, "mp3", enhance.Neutral())
	if d.Mode != FastCopy {
		t.Fatalf("expected FastCopy, got %s with notes %v", d.Mode, d.Notes)
	}
	grid := 1152.0 / 44100.0
	for _, seg := range d.Adjusted {
		for _, bound := range []float64{seg.Start, seg.End} {
			frames := bound / grid
			if math.Abs(frames-math.Round(frames)) > 1e-9 {
				t.Fatalf("boundary %v not on frame grid", bound)
			}
		}
	}
}

func TestAnalyzeRecordsBoundaryAdjustment(t *testing.T) {
	src := mp3Source()
	segs := []segment.Segment{{Start: 10.01, End: 20.02, Index: 0}}
	d := analyzer().Analyze(src, segs, "mp3", enhance.Neutral())
	if d.Mode != FastCopy {
		t.Fatalf("expected FastCopy, got %s", d.Mode)
	}
	if len(d.Notes) == 0 {
		t.Fatal("moved boundaries must be noted")
	}
	for _, n := range d.Notes {
		if !strings.Contains(n, "moved") {
			t.Fatalf("unexpected note %q", n)
		}
	}
}

func TestAnalyzeEnhancementForcesReEncode(t *testing.T) {
	s := enhance.Neutral()
	s.Volume = 1.5
	d := analyzer().Analyze(mp3Source(), []segment.Segment{{Start: 0, End: 10}}, "mp3", s)
	if d.Mode != ReEncode {
		t.Fatalf("expected ReEncode, got %s", d.Mode)
	}
}

func TestAnalyzeCodecPolicy(t *testing.T) {
	cases := []struct {
		codec, format string
		want          Mode
	}{
		{"aac", "m4a", FastCopy},
		{"aac", "mp4", FastCopy},
		{"flac", "mp3", ReEncode},
		{"mp3", "wav", ReEncode},
		{"pcm_s16le", "wav", FastCopy},
		{"unknowncodec", "mp3", ReEncode},
	}
	for _, tc := range cases {
		src := mp3Source()
		src.Codec = tc.codec
		d := analyzer().Analyze(src, []segment.Segment{{Start: 5, End: 15}}, tc.format, enhance.Neutral())
		if d.Mode != tc.want {
			t.Errorf("%s -> %s: got %s, want %s (%v)", tc.codec, tc.format, d.Mode, tc.want, d.Notes)
		}
	}
}

func TestAnalyzePCMSeeksExactly(t *testing.T) {
	src := segment.Source{Path: "in.wav", Duration: 60, Format: "wav", Codec: "pcm_s16le", SampleRate: 48000}
	segs := []segment.Segment{{Start: 1.2345, End: 9.8765}}
	d := analyzer().Analyze(src, segs, "wav", enhance.Neutral())
	if d.Mode != FastCopy {
		t.Fatalf("expected FastCopy, got %s", d.Mode)
	}
	if d.Adjusted[0] != segs[0] {
		t.Fatalf("pcm boundaries must not move: %+v", d.Adjusted[0])
	}
	if len(d.Notes) != 0 {
		t.Fatalf("unexpected notes: %v", d.Notes)
	}
}

func TestAnalyzeSlackExceeded(t *testing.T) {
	a := analyzer()
	a.Slack = 0.001
	src := mp3Source()
	// Grid spacing is ~26ms, so a boundary 10ms off the grid cannot snap
	// within a 1ms slack.
	segs := []segment.Segment{{Start: 10.010, End: 20}}
	d := a.Analyze(src, segs, "mp3", enhance.Neutral())
	if d.Mode != ReEncode {
		t.Fatalf("expected ReEncode, got %s", d.Mode)
	}
	if len(d.Notes) == 0 || !strings.Contains(d.Notes[0], "drift") {
		t.Fatalf("expected drift note, got %v", d.Notes)
	}
}

func TestAnalyzeDisabled(t *testing.T) {
	a := analyzer()
	a.Enabled = false
	d := a.Analyze(mp3Source(), []segment.Segment{{Start: 0, End: 10}}, "mp3", enhance.Neutral())
	if d.Mode != ReEncode {
		t.Fatalf("expected ReEncode, got %s", d.Mode)
	}
}

func TestRandomizedEnhancementsNeverFastCopy(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	a := analyzer()
	src := mp3Source()
	segs := []segment.Segment{{Start: 10, End: 20}}
	for i := 0; i < 1000; i++ {
		s := enhance.Neutral()
		switch rng.Intn(4) {
		case 0:
			s.Volume = 1.0 + 0.01 + rng.Float64()*0.9
		case 1:
			s.EQGains[rng.Intn(enhance.BandCount)] = 0.5 + rng.Float64()*10
		case 2:
			s.NoiseReduction = true
		case 3:
			s.Speed = 1.0 + 0.01 + rng.Float64()
		}
		if d := a.Analyze(src, segs, "mp3", s); d.Mode == FastCopy {
			t.Fatalf("fast copy selected with active enhancement %+v", s)
		}
	}
}
