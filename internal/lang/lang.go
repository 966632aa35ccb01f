package lang

import (
	"regexp"
	"strings"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

var (
	namesOnce sync.Once
	byName    map[string]language.Tag
)

func loadNames() {
	byName = make(map[string]language.Tag)
	english := display.English.Languages()
	for _, t := range display.Supported.Tags() {
		for _, n := range []string{english.Name(t), display.Self.Name(t)} {
			key := strings.ToLower(strings.TrimSpace(n))
			if key == "" {
				continue
			}
			if prev, ok := byName[key]; ok && len(prev.String()) <= len(t.String()) {
				continue
			}
			byName[key] = t
		}
	}
}

// Lookup resolves a language given by English name ("Italian"), native name
// ("italiano") or BCP 47 tag ("it", "pt-BR").
func Lookup(s string) (language.Tag, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "" {
		return language.Und, false
	}
	namesOnce.Do(loadNames)
	if t, ok := byName[key]; ok {
		return t, true
	}
	if !strings.ContainsAny(key, " _") {
		if t, err := language.Parse(key); err == nil && t != language.Und {
			return t, true
		}
	}
	return language.Und, false
}

// Code returns the directory code for a language: its BCP 47 tag when known,
// otherwise a slug of the input.
func Code(s string) string {
	if t, ok := Lookup(s); ok {
		return t.String()
	}
	if slug := Slugify(s); slug != "" {
		return slug
	}
	return "translated"
}

// Name returns the English name of a language, so prompts read "Italian"
// even when the user passed "it". Unknown input is returned trimmed.
func Name(s string) string {
	if t, ok := Lookup(s); ok {
		if n := display.English.Languages().Name(t); n != "" {
			return n
		}
	}
	return strings.TrimSpace(s)
}

var (
	nonSlugRe   = regexp.MustCompile(`[^a-z0-9-]`)
	multiDashRe = regexp.MustCompile(`-+`)
)

// Slugify converts a string to a path-safe slug.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonSlugRe.ReplaceAllString(s, "-")
	s = multiDashRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 50 {
		s = s[:50]
	}
	return s
}
