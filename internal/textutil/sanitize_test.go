package textutil

import "testing"

func TestSanitizeFileName(t *testing.T) {
	cases := map[string]string{
		"plain.mp3":        "plain.mp3",
		"a/b\\c:d":         "a-b-c-d",
		"what?.mp3":        "what.mp3",
		"  padded  ":       "padded",
		"pipe|quote\"name": "pipequotename",
		"":                 "",
	}
	for in, want := range cases {
		if got := SanitizeFileName(in); got != want {
			t.Errorf("SanitizeFileName(%q) = %q, want %q", in, got, want)
		}
	}
}
