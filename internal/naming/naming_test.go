package naming

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDisplayTitle(t *testing.T) {
	cases := map[string]string{
		"/music/my_great.album-track01.flac": "My Great Album Track01",
		"podcast episode 12.mp3":             "Podcast Episode 12",
		"":                                   "Untitled",
		"___.wav":                            "Untitled",
	}
	for in, want := range cases {
		if got := DisplayTitle(in); got != want {
			t.Errorf("DisplayTitle(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExpandTokens(t *testing.T) {
	fields := Fields{
		Name:     "show",
		Title:    "Show",
		Index:    2,
		Position: 3,
		Start:    65.7,
		End:      3725.2,
		Format:   "mp3",
	}
	got := Expand("{name}_{index}_{position}_{start}_{end}.{format}", fields)
	want := "show_2_3_1m05s_1h02m05s.mp3"
	if got != want {
		t.Fatalf("Expand = %q, want %q", got, want)
	}
}

func TestExpandDefaultsAndSanitizes(t *testing.T) {
	fields := Fields{Name: "a/b", Position: 1, Format: "wav"}
	got := Expand("", fields)
	if got != "a-b-1.wav" {
		t.Fatalf("Expand with empty template = %q", got)
	}
	if leftover := Expand("{bogus}.{format}", fields); !strings.Contains(leftover, "{bogus}") {
		t.Fatalf("unknown token should remain visible, got %q", leftover)
	}
}

func TestConvertedName(t *testing.T) {
	if got := ConvertedName("track.mp3"); got != "track-converted.mp3" {
		t.Fatalf("ConvertedName = %q", got)
	}
}

func TestEnsureUnique(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.mp3")

	if got := EnsureUnique(path); got != path {
		t.Fatalf("free path should pass through, got %q", got)
	}

	mustTouch(t, path)
	first := EnsureUnique(path)
	if first != filepath.Join(dir, "out-1.mp3") {
		t.Fatalf("first collision = %q", first)
	}

	mustTouch(t, first)
	second := EnsureUnique(path)
	if second != filepath.Join(dir, "out-2.mp3") {
		t.Fatalf("second collision = %q", second)
	}
}

func mustTouch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
}
