package detector

import (
	"strings"

	"csrelay/pkg/tgtext"
)

// MessageConfig holds the fixed parts of an update announcement.
// Icons are rendered outside the bold markup.
type MessageConfig struct {
	HeadlineIcon   string
	Headline       string
	PrimaryIcon    string
	PrimaryLabel   string
	SecondaryIcon  string
	SecondaryLabel string
	// FallbackNote replaces the secondary block when its fetch failed.
	FallbackNote string
}

func DefaultMessageConfig() MessageConfig {
	return MessageConfig{
		HeadlineIcon:   "🔥",
		Headline:       "NEW COUNTER-STRIKE UPDATE",
		PrimaryIcon:    "🇬🇧",
		PrimaryLabel:   "English:",
		SecondaryIcon:  "🇺🇦",
		SecondaryLabel: "Українською:",
		FallbackNote:   "⚠️ Не вдалося завантажити українську версію — надсилаю англійську.",
	}
}

func (m MessageConfig) withDefaults() MessageConfig {
	def := DefaultMessageConfig()
	if strings.TrimSpace(m.Headline) == "" {
		m.Headline, m.HeadlineIcon = def.Headline, def.HeadlineIcon
	}
	if strings.TrimSpace(m.PrimaryLabel) == "" {
		m.PrimaryLabel, m.PrimaryIcon = def.PrimaryLabel, def.PrimaryIcon
	}
	if strings.TrimSpace(m.SecondaryLabel) == "" {
		m.SecondaryLabel, m.SecondaryIcon = def.SecondaryLabel, def.SecondaryIcon
	}
	if strings.TrimSpace(m.FallbackNote) == "" {
		m.FallbackNote = def.FallbackNote
	}
	return m
}

// composer renders the announcement. html selects Telegram HTML parse mode:
// labels become bold and page text is escaped.
type composer struct {
	msg  MessageConfig
	html bool
}

func (c composer) label(icon, text string) string {
	var b strings.Builder
	if icon != "" {
		b.WriteString(icon)
		b.WriteByte(' ')
	}
	if c.html {
		b.WriteString(tgtext.B(text).String())
	} else {
		b.WriteString(text)
	}
	return b.String()
}

func (c composer) body(s string) string {
	if c.html {
		return tgtext.Esc(s).String()
	}
	return s
}

// Compose builds the full message. Parts are separated by a blank line.
//
//	headline
//	[fallback note]          secondary configured but unavailable
//	primary label + text
//	[secondary label + text] secondary fetched with text
func (c composer) Compose(primary, secondary string, secondaryWanted bool) string {
	parts := []string{c.label(c.msg.HeadlineIcon, c.msg.Headline)}
	hasSecondary := strings.TrimSpace(secondary) != ""
	if secondaryWanted && !hasSecondary {
		parts = append(parts, c.body(c.msg.FallbackNote))
	}
	parts = append(parts, c.label(c.msg.PrimaryIcon, c.msg.PrimaryLabel)+"\n"+c.body(primary))
	if hasSecondary {
		parts = append(parts, c.label(c.msg.SecondaryIcon, c.msg.SecondaryLabel)+"\n"+c.body(secondary))
	}
	return strings.Join(parts, "\n\n")
}
