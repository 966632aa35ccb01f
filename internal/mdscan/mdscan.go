package mdscan

import (
	"strings"
)

// Lines splits s into lines, each keeping its trailing newline.
func Lines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// IsBlank reports whether line holds only whitespace.
func IsBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}

// indent strips up to three leading spaces. ok is false for deeper indents,
// which markdown treats as indented code rather than a marker.
func indent(line string) (string, bool) {
	line = strings.TrimRight(line, "\r\n")
	n := 0
	for n < len(line) && line[n] == ' ' {
		n++
	}
	if n > 3 {
		return line, false
	}
	return line[n:], true
}

// FenceOpen reports whether line opens a code fence and returns its marker
// (the run of backticks or tildes).
func FenceOpen(line string) (string, bool) {
	s, ok := indent(line)
	if !ok || len(s) < 3 {
		return "", false
	}
	c := s[0]
	if c != '`' && c != '~' {
		return "", false
	}
	n := 0
	for n < len(s) && s[n] == c {
		n++
	}
	if n < 3 {
		return "", false
	}
	if c == '`' && strings.ContainsRune(s[n:], '`') {
		return "", false
	}
	return s[:n], true
}

// FenceCloses reports whether line closes a fence opened with marker.
func FenceCloses(line, marker string) bool {
	s, ok := indent(line)
	if !ok {
		return false
	}
	s = strings.TrimRight(s, " \t")
	if len(s) < len(marker) {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] != marker[0] {
			return false
		}
	}
	return true
}

// Heading returns the ATX heading level and text of line, or 0.
func Heading(line string) (int, string) {
	s, ok := indent(line)
	if !ok {
		return 0, ""
	}
	level := 0
	for level < len(s) && s[level] == '#' {
		level++
	}
	if level == 0 || level > 6 {
		return 0, ""
	}
	rest := s[level:]
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return 0, ""
	}
	rest = strings.TrimSpace(rest)
	// Optional closing sequence: "# Title ##".
	if trimmed := strings.TrimRight(rest, "#"); trimmed != rest {
		if trimmed == "" || strings.HasSuffix(trimmed, " ") || strings.HasSuffix(trimmed, "\t") {
			rest = strings.TrimSpace(trimmed)
		}
	}
	return level, rest
}

// IsRemote reports whether ref points outside the local source.
func IsRemote(ref string) bool {
	return strings.Contains(ref, "://") || strings.HasPrefix(ref, "data:") || strings.HasPrefix(ref, "//")
}

// EscapeLine makes a plain-text line safe to embed in a markdown paragraph:
// a leading heading marker, fence marker or block quote is escaped.
func EscapeLine(line string) string {
	trimmed := strings.TrimLeft(line, " \t")
	switch {
	case strings.HasPrefix(trimmed, "#"),
		strings.HasPrefix(trimmed, ">"),
		strings.HasPrefix(trimmed, "```"),
		strings.HasPrefix(trimmed, "~~~"):
		return `\` + trimmed
	}
	return line
}
