package relay

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// artifacts are phrases the transcription model emits on silence or
// background noise.
var artifacts = []string{
	"subtítulos realizados por la comunidad de amara.org",
	"subtítulos por la comunidad de amara.org",
	"gracias por ver el video",
	"gracias por ver",
	"suscríbete",
	"thank you for watching",
	"thanks for watching",
}

// IsSpurious reports whether a transcript should be treated as no speech:
// empty, shorter than two letters, or a known artifact.
func IsSpurious(text string) bool {
	t := strings.TrimSpace(text)
	if utf8.RuneCountInString(strings.TrimFunc(t, isPunct)) < 2 {
		return true
	}
	// A Caser is stateful; turns may overlap, so each call gets its own.
	norm := strings.TrimFunc(cases.Lower(language.Spanish).String(t), isPunct)
	if strings.Contains(norm, "amara.org") {
		return true
	}
	for _, a := range artifacts {
		if norm == a {
			return true
		}
	}
	return false
}

func isPunct(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r)
}
