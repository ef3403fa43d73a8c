package tgtext

import (
	"fmt"
	"strings"
)

// DefaultSegmentLimit leaves headroom under Telegram's 4096 character cap
// for the part marker.
const DefaultSegmentLimit = 3800

// Split cuts text into ordered segments of at most limit runes.
//
// Each cut prefers the last newline before limit. When there is none, or it
// sits in the first half of the window, the text is cut hard at limit (which
// may split a word). Newlines and spaces at the start of the remainder are
// dropped. Empty text yields no segments; limit <= 0 means DefaultSegmentLimit.
func Split(text string, limit int) []string {
	return split(text, limit, nil)
}

// SplitHTML is Split for Telegram HTML text. A hard cut never lands inside
// an entity such as "&amp;", inside a tag, or between <b> and its </b>;
// the cut moves back to where that markup starts.
func SplitHTML(text string, limit int) []string {
	return split(text, limit, htmlSafeCut)
}

func split(text string, limit int, adjust func(rs []rune, cut int) int) []string {
	if limit <= 0 {
		limit = DefaultSegmentLimit
	}
	rs := []rune(text)
	var out []string
	for len(rs) > 0 {
		if len(rs) <= limit {
			out = append(out, string(rs))
			break
		}
		cut := lastNewline(rs[:limit])
		if cut == -1 || 2*cut < limit {
			cut = limit
			if adjust != nil {
				cut = adjust(rs, cut)
			}
		}
		out = append(out, string(rs[:cut]))
		rs = trimLeadingBreaks(rs[cut:])
	}
	return out
}

// maxMarkup bounds the look-back for an open entity or tag.
const maxMarkup = 16

func htmlSafeCut(rs []rune, cut int) int {
	start := cut
scan:
	for i := cut - 1; i >= 0 && cut-i <= maxMarkup; i-- {
		switch rs[i] {
		case ';', '>':
			break scan
		case '&', '<':
			start = i
			break scan
		}
	}
	head := string(rs[:start])
	if open := strings.LastIndex(head, "<b>"); open > strings.LastIndex(head, "</b>") {
		start = len([]rune(head[:open]))
	}
	if start <= 0 {
		// Markup longer than the whole window; keep the hard cut.
		return cut
	}
	return start
}

func lastNewline(rs []rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == '\n' {
			return i
		}
	}
	return -1
}

func trimLeadingBreaks(rs []rune) []rune {
	i := 0
	for i < len(rs) && (rs[i] == '\n' || rs[i] == ' ') {
		i++
	}
	return rs[i:]
}

// PartPrefix returns the "(Part i/total)" marker line for multi-part messages,
// or "" when the message fits in one part.
func PartPrefix(i, total int) string {
	if total <= 1 {
		return ""
	}
	return fmt.Sprintf("(Part %d/%d)\n", i, total)
}

