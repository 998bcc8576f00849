// Package sanitize cleans text that sdrun hands to MCP clients and checks
// the names clients send. Diagnostics echo equation and scenario names
// supplied by callers, and agents read them back as prompt text, so control
// characters, markup tags and code fences are stripped before they leave
// the server.
package sanitize

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxTextLength is the maximum length of a sanitized message.
const MaxTextLength = 1000

// MaxNameLength is the maximum accepted length of a manager, scenario or
// equation name.
const MaxNameLength = 256

var (
	// reXMLTag matches XML/HTML tags including attributes, self-closing
	// tags and processing instructions.
	reXMLTag = regexp.MustCompile(`<[/?!]?[a-zA-Z][a-zA-Z0-9]*(?:\s+[^>]*)?/?>|<\?[^?]*\?>`)

	reTripleBacktick = regexp.MustCompile("```+")

	reExcessiveNewlines = regexp.MustCompile(`\n{3,}`)
)

// Text sanitizes a message for an agent. The steps run in order: strip
// control characters except newline and tab, strip tags, collapse code
// fences to one backtick, collapse blank lines, trim, then truncate to
// MaxTextLength bytes on a rune boundary.
func Text(input string) string {
	if input == "" {
		return ""
	}

	s := stripControlChars(input)
	s = reXMLTag.ReplaceAllString(s, "")
	s = reTripleBacktick.ReplaceAllString(s, "`")
	s = reExcessiveNewlines.ReplaceAllString(s, "\n\n")
	s = strings.TrimSpace(s)

	if len(s) > MaxTextLength {
		cut := MaxTextLength
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "..."
	}
	return s
}

// Name rejects names that cannot identify a model object: empty names,
// names longer than MaxNameLength, invalid UTF-8 and control characters.
func Name(kind, name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%s name must not be empty", kind)
	case len(name) > MaxNameLength:
		return fmt.Errorf("%s name is %d bytes long (max %d)", kind, len(name), MaxNameLength)
	case !utf8.ValidString(name):
		return fmt.Errorf("%s name %q is not valid UTF-8", kind, name)
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%s name %q contains control characters", kind, name)
		}
	}
	return nil
}

// Names applies Name to every element of names.
func Names(kind string, names []string) error {
	for _, n := range names {
		if err := Name(kind, n); err != nil {
			return err
		}
	}
	return nil
}

// stripControlChars removes ASCII control characters (0x00-0x1F and DEL)
// except newline and tab.
func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r < 0x20 && r != '\n' && r != '\t') || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
