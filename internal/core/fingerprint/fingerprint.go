package fingerprint

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"unicode"

	"github.com/olegkarev/testcase-search/internal/core/domain"
)

// Stop words excluded from fingerprints; matches are meant to come from
// domain terms, not connective glue.
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "be": {}, "is": {}, "are": {},
	"was": {}, "to": {}, "of": {}, "and": {}, "in": {}, "that": {},
	"have": {}, "it": {}, "for": {}, "not": {}, "on": {}, "with": {},
	"as": {}, "you": {}, "do": {}, "at": {}, "this": {}, "but": {},
	"by": {}, "from": {}, "should": {}, "when": {}, "then": {}, "user": {},
	"verify": {}, "check": {}, "ensure": {},
}

// Fingerprint is the canonical reduction of a record's textual content:
// a normalized token list (in first-occurrence order), its set form, and
// a digest that is stable under token reordering.
type Fingerprint struct {
	Tokens []string
	Set    map[string]struct{}
	Digest uint64
}

// Normalize lower-cases, strips punctuation and stop words, and returns
// the surviving tokens in order of first occurrence, deduplicated.
// Applying it to its own (re-joined) output changes nothing.
func Normalize(text string) []string {
	seen := make(map[string]struct{}, 32)
	out := make([]string, 0, 32)
	var b strings.Builder

	flush := func() {
		if b.Len() == 0 {
			return
		}
		token := b.String()
		b.Reset()
		if _, stop := stopWords[token]; stop {
			return
		}
		if _, dup := seen[token]; dup {
			return
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}

	for _, r := range text {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return out
}

// TokenSet converts a token list into set form.
func TokenSet(tokens []string) map[string]struct{} {
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

// New fingerprints a record. Description, prerequisites and step texts
// are concatenated in record order so the token list stays traceable to
// the source; the digest hashes the sorted token set so reordering the
// same content cannot change it.
func New(tc *domain.TestCase) Fingerprint {
	var b strings.Builder
	b.WriteString(tc.Description)
	b.WriteByte('\n')
	b.WriteString(tc.Prerequisites)
	for _, step := range tc.Steps {
		b.WriteByte('\n')
		b.WriteString(step.Action)
		if step.Expected != "" {
			b.WriteByte(' ')
			b.WriteString(step.Expected)
		}
	}

	tokens := Normalize(b.String())
	return Fingerprint{
		Tokens: tokens,
		Set:    TokenSet(tokens),
		Digest: digest(tokens),
	}
}

func digest(tokens []string) uint64 {
	sorted := make([]string, len(tokens))
	copy(sorted, tokens)
	sort.Strings(sorted)

	h := fnv.New64a()
	for _, token := range sorted {
		_, _ = h.Write([]byte(token))
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

// DigestHex renders the digest for payload storage and logging.
func (f Fingerprint) DigestHex() string {
	return fmt.Sprintf("%016x", f.Digest)
}
