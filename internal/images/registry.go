package images

import (
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/dgallion1/doctrans/internal/doctree"
	"github.com/dgallion1/doctrans/internal/mdscan"
	"github.com/gabriel-vasile/mimetype"
)

// Dir is the directory, relative to the output root, holding image assets.
const Dir = "images"

// Registry assigns canonical names to image content. It is owned by a single
// run; Register may be called from concurrent chapters.
type Registry struct {
	mu     sync.Mutex
	byHash map[string]string
	assets []doctree.ImageAsset
}

func NewRegistry() *Registry {
	return &Registry{byHash: make(map[string]string)}
}

// Register returns the canonical name for content with the given hash,
// assigning image_<n><ext> on first sight. ext includes the leading dot.
func (r *Registry) Register(ref, contentHash, ext string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerLocked(doctree.ImageAsset{OriginalPath: ref, Hash: contentHash}, ext)
}

// RegisterAsset registers a, hashing its data when needed.
func (r *Registry) RegisterAsset(a doctree.ImageAsset) string {
	if a.Hash == "" {
		a.Hash = doctree.ContentHashHex(a.Data)
	}
	ext := Ext(a.OriginalPath, a.Data)

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerLocked(a, ext)
}

func (r *Registry) registerLocked(a doctree.ImageAsset, ext string) string {
	if name, ok := r.byHash[a.Hash]; ok {
		return name
	}
	name := fmt.Sprintf("image_%d%s", len(r.assets)+1, ext)
	r.byHash[a.Hash] = name
	a.CanonicalName = name
	r.assets = append(r.assets, a)
	return name
}

// Assets returns the registered assets in first-seen order.
func (r *Registry) Assets() []doctree.ImageAsset {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]doctree.ImageAsset, len(r.assets))
	copy(out, r.assets)
	return out
}

// Apply registers the images of doc in chapter and reference order and
// returns a new document whose references point at canonical names. The
// returned strings are references with no matching asset; they are left
// unchanged.
func (r *Registry) Apply(doc *doctree.Document, prefix string) (*doctree.Document, []string) {
	out := *doc
	out.Chapters = make([]doctree.Chapter, len(doc.Chapters))

	var unresolved []string
	for i, ch := range doc.Chapters {
		names := make(map[string]string, len(ch.ImageRefs))
		for _, ref := range ch.ImageRefs {
			asset, ok := doc.Asset(ref)
			if !ok {
				unresolved = append(unresolved, ref)
				continue
			}
			names[ref] = r.RegisterAsset(asset)
		}

		rewritten := ch
		rewritten.Content = RewriteRefs(ch.Content, names, prefix)
		rewritten.ImageRefs = make([]string, len(ch.ImageRefs))
		for j, ref := range ch.ImageRefs {
			if name, ok := names[ref]; ok {
				ref = path.Join(prefix, Dir, name)
			}
			rewritten.ImageRefs[j] = ref
		}
		out.Chapters[i] = rewritten
	}
	out.Assets = r.Assets()
	return &out, unresolved
}

// RewriteRefs replaces image destinations found in names with
// <prefix>/images/<name>. Images inside code are left alone.
func RewriteRefs(content string, names map[string]string, prefix string) string {
	if len(names) == 0 {
		return content
	}
	return mdscan.ReplaceImages(content, func(img mdscan.Image, text string) string {
		name, ok := names[img.Dest]
		if !ok {
			return text
		}
		from, to := img.DestStart-img.Start, img.DestEnd-img.Start
		return text[:from] + path.Join(prefix, Dir, name) + text[to:]
	})
}

// Ext picks the file extension for an asset: the reference's own extension
// when it has one, otherwise one sniffed from the content.
func Ext(ref string, data []byte) string {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	if ext := strings.ToLower(path.Ext(ref)); ext != "" && len(ext) <= 6 {
		return ext
	}
	if len(data) > 0 {
		if ext := mimetype.Detect(data).Extension(); ext != "" {
			return ext
		}
	}
	return ".bin"
}
