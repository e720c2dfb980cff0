package main

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"clipforge/internal/enhance"
	"clipforge/internal/services"
	"clipforge/internal/testsupport"
)

func TestParseSegmentSpec(t *testing.T) {
	cases := []struct {
		spec       string
		start, end float64
	}{
		{"90-120", 90, 120},
		{"0-12.5", 0, 12.5},
		{"1:30-2:45.5", 90, 165.5},
		{"0:01:02-1:02:03", 62, 3723},
	}
	for _, tc := range cases {
		start, end, err := parseSegmentSpec(tc.spec)
		if err != nil {
			t.Fatalf("parseSegmentSpec(%q): %v", tc.spec, err)
		}
		if math.Abs(start-tc.start) > 1e-9 || math.Abs(end-tc.end) > 1e-9 {
			t.Fatalf("parseSegmentSpec(%q) = %v, %v; want %v, %v", tc.spec, start, end, tc.start, tc.end)
		}
	}

	for _, spec := range []string{"", "90", "90-", "-90", "abc-5", "5-abc", "1:2:3:4-5"} {
		if _, _, err := parseSegmentSpec(spec); err == nil {
			t.Fatalf("parseSegmentSpec(%q) should fail", spec)
		}
	}
}

func TestParseEQGains(t *testing.T) {
	gains, err := parseEQGains("3, -6, 0, 1.5")
	if err != nil {
		t.Fatalf("parseEQGains: %v", err)
	}
	want := [enhance.BandCount]float64{3, -6, 0, 1.5}
	if gains != want {
		t.Fatalf("gains = %v, want %v", gains, want)
	}

	if _, err := parseEQGains("1,2,3,4,5,6,7,8,9,10,11"); err == nil {
		t.Fatal("expected error for too many gains")
	}
	if _, err := parseEQGains("1,abc"); err == nil {
		t.Fatal("expected error for non-numeric gain")
	}
}

func TestBuildEnhanceSettingsValidates(t *testing.T) {
	settings, err := buildEnhanceSettings(1.0, "", false, 1.0, false)
	if err != nil {
		t.Fatalf("neutral settings: %v", err)
	}
	if !settings.IsNeutral() {
		t.Fatalf("expected neutral settings, got %+v", settings)
	}

	if _, err := buildEnhanceSettings(3.0, "", false, 1.0, false); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("volume out of range should be a validation error, got %v", err)
	}
	if _, err := buildEnhanceSettings(1.0, "", false, 10.0, false); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("speed out of range should be a validation error, got %v", err)
	}
}

const probeStubJSON = `{
  "streams": [
    {"index": 0, "codec_name": "mp3", "codec_type": "audio", "duration": "300.0",
     "bit_rate": "192000", "sample_rate": "44100", "channels": 2}
  ],
  "format": {"format_name": "mp3", "duration": "300.000000", "bit_rate": "192000"}
}`

func writeProbeStub(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	stub := filepath.Join(dir, "ffprobe")
	script := "#!/bin/sh\ncat <<'EOF'\n" + probeStubJSON + "\nEOF\n"
	if err := os.WriteFile(stub, []byte(script), 0o755); err != nil {
		t.Fatalf("write probe stub: %v", err)
	}
	return stub
}

func TestConvertDryRunShowsPlan(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.FFmpeg.FFprobeBinary = writeProbeStub(t)

	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	input := filepath.Join(testsupport.BaseDir(cfg), "album.mp3")
	if err := os.WriteFile(input, []byte("x"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	out, _, err := runCLI(t, []string{
		"convert", "--dry-run",
		"--segment", "10-30",
		"--segment", "50-70",
		"--format", "mp3",
		input,
	}, configPath)
	if err != nil {
		t.Fatalf("convert --dry-run: %v", err)
	}
	requireContains(t, out, "10.0-30.0")
	requireContains(t, out, "50.0-70.0")
	requireContains(t, out, ".mp3")
	requireContains(t, out, "Commands:")
	requireContains(t, out, "-hide_banner")
}

func TestConvertDryRunMultipleInputs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.FFmpeg.FFprobeBinary = writeProbeStub(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	first := filepath.Join(testsupport.BaseDir(cfg), "first.mp3")
	second := filepath.Join(testsupport.BaseDir(cfg), "second.mp3")
	for _, path := range []string{first, second} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write input: %v", err)
		}
	}

	out, _, err := runCLI(t, []string{
		"convert", "--dry-run", "--format", "opus", first, second,
	}, configPath)
	if err != nil {
		t.Fatalf("convert --dry-run: %v", err)
	}
	requireContains(t, out, "first.opus")
	requireContains(t, out, "second.opus")
}

func TestConvertRejectsSegmentsWithMultipleInputs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.FFmpeg.FFprobeBinary = writeProbeStub(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	_, _, err := runCLI(t, []string{
		"convert", "--dry-run", "--segment", "10-30", "a.mp3", "b.mp3",
	}, configPath)
	if err == nil || !strings.Contains(err.Error(), "single input") {
		t.Fatalf("expected single-input error, got %v", err)
	}
}

func TestConvertRejectsMalformedSegment(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.FFmpeg.FFprobeBinary = writeProbeStub(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	_, _, err := runCLI(t, []string{
		"convert", "--dry-run", "--segment", "oops", "input.mp3",
	}, configPath)
	if err == nil {
		t.Fatal("expected malformed segment to fail")
	}
}
