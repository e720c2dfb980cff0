// Package textutil sanitizes user-derived names before they reach the
// filesystem.
package textutil

import "strings"

// unsafeReplacer maps filesystem-unsafe characters to safe alternatives.
// Separators and wildcards become dashes, quoting and redirection characters
// are dropped.
var unsafeReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

// SanitizeFileName replaces filesystem-unsafe characters in a filename and
// trims surrounding whitespace.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return strings.TrimSpace(unsafeReplacer.Replace(name))
}
