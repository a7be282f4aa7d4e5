// Package normalize canonicalizes markdown text for structural
// comparison. The normalized form is used only to decide whether two
// phase outputs are structurally equivalent; it is never stored.
package normalize

import (
	"regexp"
	"strings"
)

// Pre-compiled patterns for line classification and inline tightening.
var (
	listMarkerRe = regexp.MustCompile(`^\s*([-*+]|\d+[.)])\s`)
	headingRe    = regexp.MustCompile(`^#{1,6}\s`)
	linkDefRe    = regexp.MustCompile(`^\s*\[[^\]]+\]:\s`)
	wsRunRe      = regexp.MustCompile(`[ \t]+`)

	boldRe    = regexp.MustCompile(`\*\*[ \t]*([^*]+?)[ \t]*\*\*`)
	italicRe  = regexp.MustCompile(`\*[ \t]+([^*]+?)[ \t]+\*`)
	codeRe    = regexp.MustCompile("`[ \t]*([^`]+?)[ \t]*`")
	linkRe    = regexp.MustCompile(`\[[ \t]*([^\]]*?)[ \t]*\]\([ \t]*([^)]*?)[ \t]*\)`)
	commentRe = regexp.MustCompile(`<!--[ \t]*(.*?)[ \t]*-->`)
)

// Normalize returns the canonical comparison form of markdown text.
//
// Line endings are unified to \n. Outside fenced code blocks, blank
// lines are dropped and internal whitespace runs collapse to a single
// space; list items, headings, link-reference definitions, and
// indented code lines are preserved as written. Inside fenced blocks
// only the fence's own indentation is stripped; content is otherwise
// verbatim. Normalize is idempotent.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var out []string
	var inFence bool
	var fenceIndent string

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") {
			if !inFence {
				fenceIndent = line[:len(line)-len(strings.TrimLeft(line, " \t"))]
			}
			inFence = !inFence
			out = append(out, strings.TrimPrefix(line, fenceIndent))
			continue
		}

		if inFence {
			out = append(out, strings.TrimPrefix(line, fenceIndent))
			continue
		}

		line = strings.TrimRight(line, " \t")
		if line == "" {
			continue
		}

		if preserveVerbatim(line) {
			out = append(out, line)
			continue
		}

		line = strings.TrimSpace(wsRunRe.ReplaceAllString(line, " "))
		out = append(out, tightenInline(line))
	}

	return strings.Join(out, "\n")
}

// Equal reports whether two texts are structurally equivalent.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// preserveVerbatim reports whether a line's internal spacing is
// significant and must not be collapsed.
func preserveVerbatim(line string) bool {
	if strings.HasPrefix(line, "    ") || strings.HasPrefix(line, "\t") {
		return true
	}
	return listMarkerRe.MatchString(line) ||
		headingRe.MatchString(line) ||
		linkDefRe.MatchString(line)
}

// tightenInline removes stray spacing inside bold, italic, inline
// code, link, image, and HTML comment constructs.
func tightenInline(line string) string {
	line = boldRe.ReplaceAllString(line, "**$1**")
	line = italicRe.ReplaceAllString(line, "*$1*")
	line = codeRe.ReplaceAllString(line, "`$1`")
	line = linkRe.ReplaceAllString(line, "[$1]($2)")
	line = commentRe.ReplaceAllString(line, "<!-- $1 -->")
	return line
}
