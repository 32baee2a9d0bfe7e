// Package parse extracts structured facts (inventory, goal, crafting
// commands, feedback classification) from freeform observation text.
// Extraction is best-effort and never fails: text with no parseable
// section yields empty values, not an error.
package parse

import (
	"regexp"
	"strings"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// NormalizeName canonicalizes an item or action token crossing the
// text/structured boundary: strip a namespace-style prefix such as
// "minecraft:", collapse whitespace runs to single underscores and
// lowercase. The function is pure and idempotent.
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	// Take the segment after the last colon so repeated application
	// cannot strip further.
	if i := strings.LastIndex(name, ":"); i >= 0 {
		name = name[i+1:]
	}
	name = whitespaceRun.ReplaceAllString(name, "_")
	return strings.ToLower(name)
}
