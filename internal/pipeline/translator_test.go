package pipeline

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/doctrans/internal/backend"
	"github.com/dgallion1/doctrans/internal/chunker"
	"github.com/dgallion1/doctrans/internal/doctree"
)

// fakeBackend upper-cases text. fail, when set, may return an error for a
// given text and call number; jitter delays replies so they finish out of
// order.
type fakeBackend struct {
	mu     sync.Mutex
	calls  map[string]int
	fail   func(text string, call int) error
	jitter bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{calls: make(map[string]int)}
}

func (f *fakeBackend) Translate(ctx context.Context, text, _, _ string) (string, error) {
	f.mu.Lock()
	f.calls[text]++
	n := f.calls[text]
	f.mu.Unlock()

	if f.jitter {
		h := fnv.New32a()
		h.Write([]byte(text))
		select {
		case <-time.After(time.Duration(h.Sum32()%3000) * time.Microsecond):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.fail != nil {
		if err := f.fail(text, n); err != nil {
			return "", err
		}
	}
	return strings.ToUpper(text), nil
}

func (f *fakeBackend) callsFor(text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[text]
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Retry = RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	return opts
}

func TestTranslate_OrderIndependentOfCompletion(t *testing.T) {
	var sb strings.Builder
	for i := range 60 {
		fmt.Fprintf(&sb, "paragraph number %d.\n\n", i)
	}
	content := sb.String()
	doc := &doctree.Document{Chapters: []doctree.Chapter{{Index: 1, Title: "Title", Content: content}}}

	fb := newFakeBackend()
	fb.jitter = true
	opts := testOptions()
	opts.Lookahead = 8
	opts.Chunker = chunker.Config{MaxChars: 30}

	out, err := NewTranslator(fb, opts, nil).Translate(context.Background(), doc, "Italian")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Chapters) != 1 {
		t.Fatalf("expected 1 chapter, got %d", len(out.Chapters))
	}
	if got := out.Chapters[0].Content; got != strings.ToUpper(content) {
		t.Errorf("expected units reassembled in order, got %q", got)
	}
	if out.Chapters[0].Title != "TITLE" {
		t.Errorf("expected translated title, got %q", out.Chapters[0].Title)
	}
}

func TestTranslate_FencesAreByteIdentical(t *testing.T) {
	fence := "```go\nfunc main() { println(\"hi\") }\n```\n"
	content := "Some prose.\n\n" + fence + "\nMore prose.\n~~~\nunclosed tail\n"
	doc := &doctree.Document{Chapters: []doctree.Chapter{{Index: 1, Content: content}}}

	out, err := NewTranslator(newFakeBackend(), testOptions(), nil).Translate(context.Background(), doc, "French")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := out.Chapters[0].Content
	if !strings.Contains(got, fence) {
		t.Errorf("expected fence unchanged in %q", got)
	}
	if !strings.HasSuffix(got, "~~~\nunclosed tail\n") {
		t.Errorf("expected unclosed fence unchanged, got %q", got)
	}
	if !strings.HasPrefix(got, "SOME PROSE.\n\n") {
		t.Errorf("expected prose translated, got %q", got)
	}
}

func TestTranslate_InlineImagesSurvive(t *testing.T) {
	content := "look at ![chart](../images/image_1.png) here.\n"
	doc := &doctree.Document{Chapters: []doctree.Chapter{{Index: 1, Content: content}}}

	out, err := NewTranslator(newFakeBackend(), testOptions(), nil).Translate(context.Background(), doc, "German")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "LOOK AT ![chart](../images/image_1.png) HERE.\n"
	if got := out.Chapters[0].Content; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
	if refs := out.Chapters[0].ImageRefs; len(refs) != 1 || refs[0] != "../images/image_1.png" {
		t.Errorf("unexpected image refs %v", refs)
	}
}

func TestTranslate_FailedChapterExcluded(t *testing.T) {
	doc := &doctree.Document{Chapters: []doctree.Chapter{
		{Index: 1, Title: "One", Content: "first body.\n"},
		{Index: 2, Title: "Two", Content: "second body.\n\n```\ncode\n```\n\nbroken part.\n"},
		{Index: 3, Title: "Three", Content: "third body.\n"},
	}}
	fb := newFakeBackend()
	fb.fail = func(text string, _ int) error {
		if text == "broken part." {
			return errors.New("model refused")
		}
		return nil
	}

	out, err := NewTranslator(fb, testOptions(), nil).Translate(context.Background(), doc, "Spanish")
	if err == nil {
		t.Fatal("expected an error")
	}
	var trErr *TranslationError
	if !errors.As(err, &trErr) {
		t.Fatalf("expected TranslationError, got %v", err)
	}
	if trErr.Chapter != 2 || trErr.Unit != 2 {
		t.Errorf("expected chapter 2 unit 2, got chapter %d unit %d", trErr.Chapter, trErr.Unit)
	}
	if len(out.Chapters) != 2 || out.Chapters[0].Index != 1 || out.Chapters[1].Index != 3 {
		t.Fatalf("expected chapters 1 and 3, got %+v", out.Chapters)
	}
	if fb.callsFor("broken part.") != 1 {
		t.Errorf("expected a permanent error not to be retried, got %d calls", fb.callsFor("broken part."))
	}
}

func TestTranslate_TransientErrorsRetried(t *testing.T) {
	doc := &doctree.Document{Chapters: []doctree.Chapter{{Index: 1, Content: "flaky text.\n"}}}
	fb := newFakeBackend()
	fb.fail = func(text string, call int) error {
		if call <= 2 {
			return &backend.RetryableError{StatusCode: 503, Message: "busy"}
		}
		return nil
	}

	out, err := NewTranslator(fb, testOptions(), nil).Translate(context.Background(), doc, "Italian")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Chapters[0].Content != "FLAKY TEXT.\n" {
		t.Errorf("unexpected content %q", out.Chapters[0].Content)
	}
	if n := fb.callsFor("flaky text."); n != 3 {
		t.Errorf("expected 3 calls, got %d", n)
	}
}

func TestTranslate_RetriesExhausted(t *testing.T) {
	doc := &doctree.Document{Chapters: []doctree.Chapter{{Index: 1, Title: "Flaky", Content: "body.\n"}}}
	fb := newFakeBackend()
	fb.fail = func(string, int) error {
		return &backend.RetryableError{StatusCode: 429, Message: "slow down"}
	}
	opts := testOptions()
	opts.Retry.MaxAttempts = 2

	out, err := NewTranslator(fb, opts, nil).Translate(context.Background(), doc, "Italian")
	var trErr *TranslationError
	if !errors.As(err, &trErr) {
		t.Fatalf("expected TranslationError, got %v", err)
	}
	if trErr.Unit != -1 {
		t.Errorf("expected the title to fail first, got unit %d", trErr.Unit)
	}
	var retryErr *backend.RetryableError
	if !errors.As(err, &retryErr) {
		t.Errorf("expected the backend error to be wrapped, got %v", err)
	}
	if len(out.Chapters) != 0 {
		t.Errorf("expected no chapters, got %d", len(out.Chapters))
	}
	if n := fb.callsFor("Flaky"); n != 2 {
		t.Errorf("expected 2 attempts, got %d", n)
	}
}

func TestTranslate_CancelledContext(t *testing.T) {
	doc := &doctree.Document{Chapters: []doctree.Chapter{
		{Index: 1, Content: "a.\n"},
		{Index: 2, Content: "b.\n"},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := NewTranslator(newFakeBackend(), testOptions(), nil).Translate(ctx, doc, "Italian")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(out.Chapters) != 0 {
		t.Errorf("expected no chapters, got %d", len(out.Chapters))
	}
}

func TestTranslate_OnChapterCalledOncePerChapter(t *testing.T) {
	doc := &doctree.Document{Chapters: []doctree.Chapter{
		{Index: 1, Content: "a.\n"},
		{Index: 2, Content: "b.\n"},
		{Index: 3, Content: "c.\n"},
	}}
	tr := NewTranslator(newFakeBackend(), testOptions(), nil)
	var mu sync.Mutex
	seen := map[int]int{}
	tr.OnChapter = func(index int, err error) {
		mu.Lock()
		defer mu.Unlock()
		seen[index]++
	}
	if _, err := tr.Translate(context.Background(), doc, "Italian"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 1; i <= 3; i++ {
		if seen[i] != 1 {
			t.Errorf("chapter %d: expected 1 callback, got %d", i, seen[i])
		}
	}
}

func TestTranslationError_Message(t *testing.T) {
	err := &TranslationError{Chapter: 4, Unit: 7, Err: errors.New("boom")}
	if got := err.Error(); got != "translate chapter 4 unit 7: boom" {
		t.Errorf("unexpected message %q", got)
	}
	title := &TranslationError{Chapter: 4, Unit: -1, Err: errors.New("boom")}
	if got := title.Error(); got != "translate chapter 4 title: boom" {
		t.Errorf("unexpected message %q", got)
	}
}
