package detector

import "testing"

func TestComposeLayouts(t *testing.T) {
	t.Parallel()
	c := composer{msg: DefaultMessageConfig(), html: true}

	cases := []struct {
		name      string
		primary   string
		secondary string
		wanted    bool
		want      string
	}{
		{
			name:      "bilingual",
			primary:   "A & B",
			secondary: "Б",
			wanted:    true,
			want: "🔥 <b>NEW COUNTER-STRIKE UPDATE</b>\n\n" +
				"🇬🇧 <b>English:</b>\nA &amp; B\n\n" +
				"🇺🇦 <b>Українською:</b>\nБ",
		},
		{
			name:    "fallback",
			primary: "A",
			wanted:  true,
			want: "🔥 <b>NEW COUNTER-STRIKE UPDATE</b>\n\n" +
				"⚠️ Не вдалося завантажити українську версію — надсилаю англійську.\n\n" +
				"🇬🇧 <b>English:</b>\nA",
		},
		{
			name:    "primary only",
			primary: "A",
			want:    "🔥 <b>NEW COUNTER-STRIKE UPDATE</b>\n\n🇬🇧 <b>English:</b>\nA",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := c.Compose(tc.primary, tc.secondary, tc.wanted); got != tc.want {
				t.Fatalf("got:\n%q\nwant:\n%q", got, tc.want)
			}
		})
	}
}

func TestMessageDefaultsFillBlanks(t *testing.T) {
	t.Parallel()
	m := MessageConfig{Headline: "Patch"}.withDefaults()
	if m.Headline != "Patch" || m.HeadlineIcon != "" {
		t.Fatalf("custom headline overwritten: %+v", m)
	}
	if m.PrimaryLabel != "English:" || m.FallbackNote == "" {
		t.Fatalf("defaults not applied: %+v", m)
	}
}
