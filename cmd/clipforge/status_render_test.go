package main

import (
	"strings"
	"testing"
)

func TestRenderStatusLinePlain(t *testing.T) {
	line := renderStatusLine("FFmpeg", statusOK, "/usr/bin/ffmpeg", false)
	if !strings.Contains(line, "FFmpeg:") || !strings.Contains(line, "[OK] /usr/bin/ffmpeg") {
		t.Fatalf("unexpected line %q", line)
	}
	if strings.Contains(line, "\x1b[") {
		t.Fatalf("plain rendering must not carry ANSI codes: %q", line)
	}
}

func TestRenderStatusLineColorized(t *testing.T) {
	line := renderStatusLine("Staging dir", statusError, "not writable", true)
	if !strings.HasPrefix(line, ansiRed) || !strings.HasSuffix(line, ansiReset) {
		t.Fatalf("expected red wrapping, got %q", line)
	}
}

func TestRenderTableAlignment(t *testing.T) {
	out := renderTable(
		[]string{"Name", "Count"},
		[][]string{{"alpha", "1"}, {"beta", "22"}},
		[]columnAlignment{alignLeft, alignRight},
	)
	if !strings.Contains(out, "alpha") || !strings.Contains(out, "22") {
		t.Fatalf("table missing rows:\n%s", out)
	}
	if !strings.Contains(out, "Name") {
		t.Fatalf("table missing header:\n%s", out)
	}
}
