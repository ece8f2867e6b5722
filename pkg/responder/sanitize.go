package responder

import (
	"regexp"
	"strings"
	"unicode"
)

// MaxThoughtWords caps a published thought.
const MaxThoughtWords = 60

var hashtag = regexp.MustCompile(`#[\p{L}\p{N}_]+`)

// SanitizeThought trims, unquotes and strips hashtags and emoji from a
// model-generated thought, truncating it to MaxThoughtWords words.
func SanitizeThought(s string) string {
	s = unquote(strings.TrimSpace(s))
	s = hashtag.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		if isEmoji(r) {
			return -1
		}
		return r
	}, s)

	words := strings.Fields(s)
	if len(words) > MaxThoughtWords {
		words = words[:MaxThoughtWords]
	}
	return strings.Join(words, " ")
}

// unquote removes one layer of matching wrapping quotes.
func unquote(s string) string {
	pairs := [][2]string{{`"`, `"`}, {"'", "'"}, {"“", "”"}, {"`", "`"}}
	for _, p := range pairs {
		if len(s) >= len(p[0])+len(p[1]) && strings.HasPrefix(s, p[0]) && strings.HasSuffix(s, p[1]) {
			return strings.TrimSpace(s[len(p[0]) : len(s)-len(p[1])])
		}
	}
	return s
}

func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F000 && r <= 0x1FAFF: // pictographs, emoticons, flags
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols, dingbats
		return true
	case r == 0xFE0F || r == 0x200D || r == 0x20E3:
		return true
	}
	return unicode.Is(unicode.So, r) && r > 0x2000
}
