// Package language picks the response language of a question from its script.
package language

import "unicode/utf8"

type Code string

const (
	Hebrew  Code = "he"
	English Code = "en"
)

// Detect returns Hebrew when text holds any rune in the Hebrew block
// (U+0590..U+05FF) and English otherwise. Arabic, Cyrillic and every other
// script fall through to English.
func Detect(text string) Code {
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if r >= 0x0590 && r <= 0x05FF {
			return Hebrew
		}
		i += size
	}
	return English
}

func (c Code) String() string {
	return string(c)
}

// Parse maps a stored tag back to a Code, defaulting to English.
func Parse(tag string) Code {
	if tag == string(Hebrew) {
		return Hebrew
	}
	return English
}
