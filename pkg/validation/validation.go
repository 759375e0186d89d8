package validation

import (
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const maxStripPasses = 8

var (
	stripPolicy = bluemonday.StrictPolicy()
	spaceRegex  = regexp.MustCompile(`\s+`)
	tagRegex    = regexp.MustCompile(`^[\p{L}\p{N}][\p{L}\p{N} _-]*$`)
)

// SanitizeString removes potentially harmful characters
func SanitizeString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.ReplaceAll(input, "\x00", "")
	return input
}

// SanitizeText strips all HTML, drops control characters, collapses whitespace and
// truncates to maxRunes.
func SanitizeText(input string, maxRunes int) string {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, input)
	clean = stripHTML(clean)
	clean = strings.TrimSpace(spaceRegex.ReplaceAllString(clean, " "))
	return Truncate(clean, maxRunes)
}

// stripHTML strips markup and decodes entities until the text stops changing, so
// entity-encoded tags cannot survive as live markup. bluemonday escapes what it keeps;
// decoding keeps "&" as "&" in JSON.
func stripHTML(s string) string {
	for i := 0; i < maxStripPasses; i++ {
		next := html.UnescapeString(stripPolicy.Sanitize(s))
		if next == s {
			return s
		}
		s = next
	}
	// still decoding after maxStripPasses: keep the escaped form
	return stripPolicy.Sanitize(s)
}

// Truncate cuts s to at most maxRunes runes.
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:maxRunes]))
}

// NormalizeTag lowercases and trims a single tag.
func NormalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(SanitizeText(tag, 0)))
}

// ValidTag reports whether a normalized tag is within length and charset bounds.
func ValidTag(tag string, maxRunes int) bool {
	n := utf8.RuneCountInString(tag)
	return n > 0 && n <= maxRunes && tagRegex.MatchString(tag)
}

// SplitTags parses a comma-separated list into normalized tags in first-seen order,
// dropping empties and duplicates.
func SplitTags(input string) []string {
	return DedupeTags(strings.Split(input, ","))
}

// DedupeTags normalizes tags and drops empties and duplicates, keeping first-seen order.
func DedupeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, raw := range tags {
		tag := NormalizeTag(raw)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
