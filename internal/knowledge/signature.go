// Package knowledge manages the tenant knowledge base: GOLD merge request
// ingestion, engineering-doc ingestion, and feature-signature matching used
// to surface precedent MRs for a change under review.
package knowledge

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"
)

// SignatureSize is the maximum number of feature tokens retained.
const SignatureSize = 30

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true,
	"this": true, "that": true, "are": true, "was": true, "were": true,
	"has": true, "have": true, "had": true, "not": true, "but": true,
	"when": true, "then": true, "than": true, "into": true, "out": true,
	"all": true, "any": true, "can": true, "will": true, "should": true,
	"add": true, "adds": true, "added": true, "fix": true, "fixes": true,
	"fixed": true, "update": true, "updates": true, "updated": true,
	"remove": true, "removes": true, "removed": true, "change": true,
	"changes": true, "changed": true, "use": true, "uses": true, "using": true,
	"new": true, "src": true, "index": true, "test": true, "tests": true,
	"spec": true, "main": true, "file": true, "files": true,
}

var camelBoundaryRe = regexp.MustCompile(`([a-z0-9])([A-Z])`)
var splitRe = regexp.MustCompile(`[^a-zA-Z0-9]+`)
var numericRe = regexp.MustCompile(`^[0-9]+$`)

// tokenize splits text into normalized tokens: camelCase boundaries and
// separator characters break words, everything is lowercased, and short
// tokens, stopwords and pure numbers are dropped.
func tokenize(text string) []string {
	text = camelBoundaryRe.ReplaceAllString(text, "$1 $2")
	parts := splitRe.Split(text, -1)

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(p)
		if len(p) <= 2 {
			continue
		}
		if stopwords[p] {
			continue
		}
		if numericRe.MatchString(p) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// FeatureSignature computes the token set describing an MR: the top
// SignatureSize tokens by frequency across title, description, changed
// paths and the added diff lines, returned in alphabetical order.
// Frequency ties break alphabetically so the signature is deterministic.
func FeatureSignature(title, description string, paths, addedLines []string) []string {
	freq := make(map[string]int)
	for _, tok := range tokenize(title) {
		freq[tok]++
	}
	for _, tok := range tokenize(description) {
		freq[tok]++
	}
	for _, p := range paths {
		for _, tok := range tokenize(p) {
			freq[tok]++
		}
	}
	for _, line := range addedLines {
		for _, tok := range tokenize(line) {
			freq[tok]++
		}
	}

	tokens := make([]string, 0, len(freq))
	for tok := range freq {
		tokens = append(tokens, tok)
	}
	sort.Slice(tokens, func(i, j int) bool {
		if freq[tokens[i]] != freq[tokens[j]] {
			return freq[tokens[i]] > freq[tokens[j]]
		}
		return tokens[i] < tokens[j]
	})

	if len(tokens) > SignatureSize {
		tokens = tokens[:SignatureSize]
	}
	sort.Strings(tokens)
	return tokens
}

// SignatureHash is the stable digest of a signature: sha256 over the
// tokens joined with "|".
func SignatureHash(tokens []string) string {
	sum := sha256.Sum256([]byte(strings.Join(tokens, "|")))
	return hex.EncodeToString(sum[:])
}

// ContentHash digests arbitrary ingested content for dedup.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
