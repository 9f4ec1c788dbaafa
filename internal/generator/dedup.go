package generator

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/demod-llc/nixgen/pkg/example"
)

// DedupLedger tracks content fingerprints already admitted to the corpus.
// It lives for exactly one run; duplicates are detected within a run only.
type DedupLedger struct {
	seen map[string]struct{}
}

// NewDedupLedger creates an empty ledger
func NewDedupLedger() *DedupLedger {
	return &DedupLedger{seen: make(map[string]struct{})}
}

// Admit returns true and records the example's fingerprint if its content
// is unseen. Returns false for a repeat; the caller must discard the
// example. First-seen wins regardless of source.
func (l *DedupLedger) Admit(ex *example.FineTuningExample) bool {
	fp := Fingerprint(ex.Prompt, ex.Completion)
	if _, dup := l.seen[fp]; dup {
		return false
	}
	l.seen[fp] = struct{}{}
	return true
}

// Size returns the number of distinct fingerprints recorded
func (l *DedupLedger) Size() int {
	return len(l.seen)
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// Fingerprint computes the content digest used for exact-duplicate
// detection: SHA-256 over the whitespace-collapsed prompt and completion
// joined by a NUL separator. Two completions differing by a single
// non-whitespace character produce distinct fingerprints.
func Fingerprint(prompt, completion string) string {
	normalize := func(s string) string {
		return whitespaceRun.ReplaceAllString(strings.TrimSpace(s), " ")
	}

	h := sha256.New()
	h.Write([]byte(normalize(prompt)))
	h.Write([]byte{0})
	h.Write([]byte(normalize(completion)))
	return hex.EncodeToString(h.Sum(nil))
}
