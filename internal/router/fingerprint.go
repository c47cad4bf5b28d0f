package router

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// stopWords is a small, fixed stop-word list for fingerprinting; it does
// not need to be linguistically complete, only stable across calls.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "to": true, "of": true, "in": true,
	"on": true, "for": true, "and": true, "or": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "it": true, "this": true, "that": true,
	"with": true, "as": true, "at": true, "by": true, "from": true, "i": true,
	"we": true, "you": true, "please": true, "can": true, "could": true,
}

// Fingerprint computes the stable 12-char cache key for a request (§4.1):
// lowercased, stop-word-stripped, top-10 terms sorted, then hashed.
func Fingerprint(request string) string {
	lower := strings.ToLower(request)
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})

	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if f == "" || stopWords[f] {
			continue
		}
		terms = append(terms, f)
	}
	sort.Strings(terms)
	terms = dedupe(terms)
	if len(terms) > 10 {
		terms = terms[:10]
	}

	sum := sha256.Sum256([]byte(strings.Join(terms, "|")))
	return hex.EncodeToString(sum[:])[:12]
}

func dedupe(sorted []string) []string {
	out := sorted[:0:0]
	var last string
	for i, s := range sorted {
		if i == 0 || s != last {
			out = append(out, s)
			last = s
		}
	}
	return out
}
