// Package naming builds output file names from user templates and keeps them
// collision free on disk.
package naming

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"clipforge/internal/textutil"
)

// DefaultTemplate is used when the configuration does not set one.
const DefaultTemplate = "{name}-{position}.{format}"

// Fields carries the values substituted into a file name template.
type Fields struct {
	// Name is the source file's base name without extension, sanitized.
	Name string
	// Title is a human readable rendering of Name.
	Title string
	// Index is the zero-based segment index.
	Index int
	// Position is the one-based segment position.
	Position int
	// Start and End are the segment bounds in seconds.
	Start float64
	End   float64
	// Format is the output container extension without a dot.
	Format string
}

// FieldsForSource derives Name and Title from a source path.
func FieldsForSource(sourcePath string) Fields {
	base := filepath.Base(sourcePath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return Fields{
		Name:  textutil.SanitizeFileName(base),
		Title: DisplayTitle(sourcePath),
	}
}

// DisplayTitle converts a source path into a presentable title. Separator
// runs collapse to single spaces and words are title cased.
func DisplayTitle(sourcePath string) string {
	if sourcePath == "" {
		return "Untitled"
	}
	base := filepath.Base(sourcePath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	cleaned := strings.Builder{}
	prevSpace := false
	for _, r := range base {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			cleaned.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '.':
			if !prevSpace {
				cleaned.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	title := strings.TrimSpace(cleaned.String())
	if title == "" {
		return "Untitled"
	}
	return cases.Title(language.Und).String(title)
}

// Expand substitutes the template tokens and sanitizes the result. Unknown
// tokens are left in place so mistakes stay visible in the output name.
func Expand(template string, fields Fields) string {
	if strings.TrimSpace(template) == "" {
		template = DefaultTemplate
	}
	replacer := strings.NewReplacer(
		"{name}", fields.Name,
		"{title}", fields.Title,
		"{index}", strconv.Itoa(fields.Index),
		"{position}", strconv.Itoa(fields.Position),
		"{start}", formatClock(fields.Start),
		"{end}", formatClock(fields.End),
		"{format}", fields.Format,
	)
	name := textutil.SanitizeFileName(replacer.Replace(template))
	if name == "" {
		name = "output." + fields.Format
	}
	return name
}

// ConvertedName returns the base name to use when the output would collide
// with the source file itself, appending a "-converted" marker before the
// extension.
func ConvertedName(name string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + "-converted" + ext
}

// EnsureUnique returns path if nothing exists there, otherwise the first
// "name-N.ext" variant that is free. After 99 attempts it falls back to a
// timestamp suffix.
func EnsureUnique(path string) string {
	if !exists(path) {
		return path
	}
	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(filepath.Base(path), ext)
	for n := 1; n <= 99; n++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s-%d%s", stem, n, ext))
		if !exists(candidate) {
			return candidate
		}
	}
	stamp := time.Now().Format("20060102-150405")
	return filepath.Join(dir, fmt.Sprintf("%s-%s%s", stem, stamp, ext))
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// formatClock renders seconds as a compact clock token safe for file names,
// for example 83.4 becomes "1m23s" and 3725 becomes "1h02m05s".
func formatClock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}
