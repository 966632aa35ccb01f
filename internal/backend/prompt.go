package backend

import (
	"regexp"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
)

// BuildPrompt creates the instruction sent with every translatable span.
func BuildPrompt(text, targetLanguage string) string {
	markers := ""
	if strings.Contains(text, "⟦") {
		markers = "Copy markers such as ⟦IMG1⟧ unchanged and keep them in place.\n"
	}
	return heredoc.Docf(`
		Please translate the following text to %s. Maintain the original formatting and structure. Provide only the translation without explanations or notes:
		%s
		%s`, targetLanguage, markers, text)
}

var (
	codeBlockRe = regexp.MustCompile("(?s)^(`{3,}|~{3,})[a-zA-Z0-9_-]*\\s*\n(.*?)\\s*\n?(`{3,}|~{3,})$")
	preambleRe  = regexp.MustCompile(`(?i)^(here is|here's|below is) (the|your|a) translation[^\n]*:\s*\n`)
)

// CleanResponse strips wrapping a model adds around its answer: a code fence
// the source did not have, or a "here is the translation" preamble. An
// empty answer is reported as retryable.
func CleanResponse(source, out string) (string, error) {
	out = strings.TrimSpace(out)
	if !strings.HasPrefix(strings.TrimSpace(source), "```") && !strings.HasPrefix(strings.TrimSpace(source), "~~~") {
		if m := codeBlockRe.FindStringSubmatch(out); len(m) > 2 && m[1][0] == m[3][0] {
			out = strings.TrimSpace(m[2])
		}
	}
	out = strings.TrimSpace(preambleRe.ReplaceAllString(out, ""))
	if out == "" {
		return "", &RetryableError{Message: "empty translation"}
	}
	return out, nil
}
