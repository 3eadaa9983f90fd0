package stt

import (
	"fmt"
	"strings"
)

// Language is a selectable transcription language.
type Language struct {
	// Name is the display name offered to users.
	Name string `json:"name"`

	// Code is the ISO 639-1 code, or [AutoDetect].
	Code string `json:"code"`
}

// AutoDetect is the language code that asks a backend to detect the spoken
// language, overriding any configured default.
const AutoDetect = "auto"

var languages = []Language{
	{Name: "Auto", Code: AutoDetect},
	{Name: "English", Code: "en"},
	{Name: "Spanish", Code: "es"},
	{Name: "French", Code: "fr"},
	{Name: "German", Code: "de"},
	{Name: "Hindi", Code: "hi"},
	{Name: "Chinese", Code: "zh"},
	{Name: "Japanese", Code: "ja"},
	{Name: "Korean", Code: "ko"},
	{Name: "Arabic", Code: "ar"},
	{Name: "Russian", Code: "ru"},
	{Name: "Portuguese", Code: "pt"},
}

// Languages returns the languages offered to users, "Auto" first.
func Languages() []Language {
	return append([]Language(nil), languages...)
}

// ResolveLanguage converts a display name ("German"), an ISO code ("de") or a
// regional tag ("de-AT") into the ISO 639-1 code expected by backends.
// "Auto" resolves to [AutoDetect]; empty input resolves to "" and leaves the
// choice to configured defaults. Matching is case-insensitive.
func ResolveLanguage(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	for _, l := range languages {
		if strings.EqualFold(s, l.Name) || (l.Code != "" && strings.EqualFold(s, l.Code)) {
			return l.Code, nil
		}
	}

	base, _, _ := strings.Cut(s, "-")
	base = strings.ToLower(base)
	if len(base) == 2 && isASCIILetters(base) {
		return base, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLanguage, s)
}

func isASCIILetters(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 'a' || s[i] > 'z' {
			return false
		}
	}
	return true
}
