// Package detector extracts candidate ticker symbols from a right-click context
// and answers per-surface queries for the last detection.
package detector

import (
	"regexp"
	"strings"
	"unicode/utf16"
)

const caretWindow = 10

var (
	selectionPattern = regexp.MustCompile(`^[A-Za-z]{2,6}$`)
	markedPattern    = regexp.MustCompile(`\$[A-Za-z]{2,6}`)
)

// ContextEvent describes what was under the pointer when the menu opened.
// CaretOffset is negative when the caret did not land inside a text node.
type ContextEvent struct {
	Selection   string `json:"selection"`
	NodeText    string `json:"nodeText"`
	CaretOffset int    `json:"caretOffset"`
	ElementText string `json:"elementText"`
}

// Detect returns the candidate ticker for ev, if any.
func Detect(ev ContextEvent) (string, bool) {
	if sel := strings.TrimSpace(ev.Selection); sel != "" {
		if IsValidTicker(sel) {
			return sel, true
		}
		// a non-ticker selection belongs to the selection flow
		return "", false
	}

	if ev.CaretOffset >= 0 && ev.NodeText != "" {
		if match, ok := findMarked(caretSlice(ev.NodeText, ev.CaretOffset)); ok {
			return match, true
		}
	}

	return findMarked(ev.ElementText)
}

// IsValidTicker reports whether s is 2-6 letters with an optional leading marker.
func IsValidTicker(s string) bool {
	clean := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$"))
	return selectionPattern.MatchString(clean)
}

// IsMarkedTicker reports whether s is exactly a marker followed by 2-6 letters.
func IsMarkedTicker(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "$") && selectionPattern.MatchString(s[1:])
}

// caretSlice cuts the window around offset. Offsets count UTF-16 code units,
// as reported by the page.
func caretSlice(text string, offset int) string {
	units := utf16.Encode([]rune(text))
	if offset > len(units) {
		offset = len(units)
	}
	start := max(0, offset-caretWindow)
	end := min(len(units), offset+caretWindow)
	return string(utf16.Decode(units[start:end]))
}

func findMarked(text string) (string, bool) {
	match := markedPattern.FindString(text)
	if match == "" {
		return "", false
	}
	return strings.ToUpper(match), true
}
