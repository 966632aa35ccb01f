package pipeline

import (
	"fmt"
	"strings"

	"github.com/dgallion1/doctrans/internal/mdscan"
)

// protectImages swaps inline image references for tokens the backend is
// asked to copy through.
func protectImages(text string) (string, []string) {
	var refs []string
	out := mdscan.ReplaceImages(text, func(_ mdscan.Image, ref string) string {
		refs = append(refs, ref)
		return imageToken(len(refs))
	})
	return out, refs
}

// restoreImages puts the references back. A token the backend dropped is
// re-appended on its own line so no image is lost.
func restoreImages(text string, refs []string) string {
	var missing []string
	for i, ref := range refs {
		token := imageToken(i + 1)
		if strings.Contains(text, token) {
			text = strings.Replace(text, token, ref, 1)
			continue
		}
		missing = append(missing, ref)
	}
	for _, ref := range missing {
		if text != "" && !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		text += ref
	}
	return text
}

func imageToken(n int) string {
	return fmt.Sprintf("⟦IMG%d⟧", n)
}
