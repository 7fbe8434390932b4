package utils

import (
	"strings"
	"unicode"
)

// legalSuffixes are dropped from the end of a vendor name before comparing.
var legalSuffixes = map[string]bool{
	"inc": true, "incorporated": true, "corp": true, "corporation": true,
	"co": true, "company": true, "ltd": true, "limited": true, "llc": true,
	"plc": true, "gmbh": true, "ag": true, "sa": true, "sas": true,
	"sarl": true, "bv": true, "srl": true, "spa": true,
}

// NormalizeVendorName lowercases name, strips punctuation and drops trailing
// legal-form words, so "ACME Corp." and "Acme Corporation" both become "acme".
func NormalizeVendorName(name string) string {
	words := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for len(words) > 1 && legalSuffixes[words[len(words)-1]] {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

// VendorSimilarity returns 1 minus the normalized edit distance between the
// two normalized names, in [0,1].
func VendorSimilarity(a, b string) float64 {
	s1, s2 := NormalizeVendorName(a), NormalizeVendorName(b)
	if s1 == "" && s2 == "" {
		return 1.0
	}
	if s1 == "" || s2 == "" {
		return 0.0
	}
	dist := levenshteinDistance(s1, s2)
	maxLen := max(len([]rune(s1)), len([]rune(s2)))
	return 1.0 - float64(dist)/float64(maxLen)
}

// SameVendor reports whether two spellings name the same vendor. OCR noise of
// one or two characters in a long name is tolerated.
func SameVendor(a, b string) bool {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return false
	}
	return VendorSimilarity(a, b) >= 0.85
}

func levenshteinDistance(s1, s2 string) int {
	r1, r2 := []rune(s1), []rune(s2)
	n, m := len(r1), len(r2)
	if n == 0 {
		return m
	}
	if m == 0 {
		return n
	}

	prev := make([]int, m+1)
	cur := make([]int, m+1)
	for j := 0; j <= m; j++ {
		prev[j] = j
	}
	for i := 1; i <= n; i++ {
		cur[0] = i
		for j := 1; j <= m; j++ {
			cost := 0
			if r1[i-1] != r2[j-1] {
				cost = 1
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[m]
}
