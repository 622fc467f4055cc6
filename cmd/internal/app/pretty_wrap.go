package app

import (
	"os"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	prettyDefaultWidth = 100
	prettyMinWidth     = 40
)

var ansiSeqRE = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// stripANSI removes SGR escape sequences so width math sees visible runes only.
func stripANSI(s string) string {
	if !strings.Contains(s, "\x1b") {
		return s
	}
	return ansiSeqRE.ReplaceAllString(s, "")
}

// visualLen is the on-screen rune count of s, ignoring color codes.
func visualLen(s string) int {
	return utf8.RuneCountInString(stripANSI(s))
}

// terminalWidth resolves the target line width for pretty output.
// VOX_LOG_WIDTH wins over COLUMNS; values below the minimum are ignored.
func (h *prettyHandler) terminalWidth() int {
	if n, ok := envWidth("VOX_LOG_WIDTH"); ok {
		return n
	}
	if n, ok := envWidth("COLUMNS"); ok {
		return n
	}
	return prettyDefaultWidth
}

func envWidth(key string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < prettyMinWidth {
		return 0, false
	}
	return n, true
}

// wrapSegments greedily packs segments into lines no wider than width.
// Continuation lines carry the cont prefix; a single segment wider than the
// line is truncated with an ellipsis rather than overflowing.
func wrapSegments(segs []string, sep string, width int, cont string) []string {
	if width <= 0 {
		width = prettyDefaultWidth
	}

	var lines []string
	cur := ""
	for _, seg := range segs {
		if seg == "" {
			continue
		}

		if cur == "" {
			prefix := ""
			if len(lines) > 0 {
				prefix = cont
			}
			candidate := prefix + seg
			if visualLen(candidate) > width {
				candidate = truncateVisual(candidate, width)
			}
			cur = candidate
			continue
		}

		candidate := cur + sep + seg
		if visualLen(candidate) <= width {
			cur = candidate
			continue
		}

		lines = append(lines, cur)
		candidate = cont + seg
		if visualLen(candidate) > width {
			candidate = truncateVisual(candidate, width)
		}
		cur = candidate
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}

// truncateVisual shortens s to fit width visible runes, marking the cut.
// Color codes are dropped on truncation; a cut line is debug output anyway.
func truncateVisual(s string, width int) string {
	plain := stripANSI(s)
	if width <= 1 {
		return "…"
	}
	r := []rune(plain)
	if len(r) <= width {
		return plain
	}
	return string(r[:width-1]) + "…"
}
