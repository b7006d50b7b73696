// Package lexical computes atomic textual signals from DNS query names.
// Every function is pure and tolerates empty or malformed input by
// returning a neutral zero value instead of an error. DNS tunneling hides
// data in the query name itself, so these signals are the raw material for
// both the fast pre-filter and the full decision engine.
package lexical

import (
	"math"
	"regexp"
	"strings"
	"unicode"
)

// encodedLabelMinLen is the minimum label length considered for the
// packed-data check. Shorter labels carry too little payload to matter.
const encodedLabelMinLen = 16

var (
	// base64LabelRe matches labels made entirely of base64-alphabet characters.
	base64LabelRe = regexp.MustCompile(`^[A-Za-z0-9+/=]+$`)

	// plainLabelRe matches ordinary lowercase DNS labels. A label matching
	// both patterns is "long but ordinary", not packed binary data.
	plainLabelRe = regexp.MustCompile(`^[a-z0-9-]+$`)
)

// Entropy returns the Shannon entropy in bits of the character frequency
// distribution of s. Entropy("") is 0.
func Entropy(s string) float64 {
	if s == "" {
		return 0.0
	}

	freq := make(map[rune]int)
	total := 0
	for _, r := range s {
		freq[r]++
		total++
	}

	entropy := 0.0
	n := float64(total)
	for _, count := range freq {
		p := float64(count) / n
		if p > 0 {
			entropy -= p * math.Log2(p)
		}
	}
	return entropy
}

// SplitLabels strips surrounding dots and splits a domain name into its
// non-empty labels, leftmost first.
// Example: "www.google.com" -> ["www", "google", "com"]
func SplitLabels(name string) []string {
	name = strings.Trim(name, ".")
	if name == "" {
		return nil
	}

	parts := strings.Split(name, ".")
	labels := parts[:0]
	for _, p := range parts {
		if p != "" {
			labels = append(labels, p)
		}
	}
	return labels
}

// LabelEntropyStats returns the mean and maximum per-label entropy.
// Both are 0 when labels is empty.
func LabelEntropyStats(labels []string) (mean, max float64) {
	if len(labels) == 0 {
		return 0.0, 0.0
	}

	sum := 0.0
	for _, l := range labels {
		e := Entropy(l)
		sum += e
		if e > max {
			max = e
		}
	}
	return sum / float64(len(labels)), max
}

// LongestRepeatRun returns the length of the longest run of a single
// repeated character: "aaabb" -> 3. Returns 0 for the empty string and at
// least 1 otherwise.
func LongestRepeatRun(s string) int {
	if s == "" {
		return 0
	}

	maxRun, run := 1, 1
	var last rune
	first := true
	for _, r := range s {
		if first {
			last = r
			first = false
			continue
		}
		if r == last {
			run++
			if run > maxRun {
				maxRun = run
			}
		} else {
			run = 1
			last = r
		}
	}
	return maxRun
}

// Ratios holds per-character-class fractions of a string.
type Ratios struct {
	Digit     float64
	Vowel     float64
	Consonant float64
	NonAlnum  float64
}

// CharRatios returns the digit, vowel, consonant and non-alphanumeric
// fractions of s. All zero for the empty string. Consonants are letters
// minus vowels, floored at zero.
func CharRatios(s string) Ratios {
	if s == "" {
		return Ratios{}
	}

	var letters, digits, vowels, nonAlnum, total int
	for _, r := range s {
		total++
		switch {
		case unicode.IsLetter(r):
			letters++
			if strings.ContainsRune("aeiou", unicode.ToLower(r)) {
				vowels++
			}
		case unicode.IsDigit(r):
			digits++
		default:
			nonAlnum++
		}
	}

	consonants := letters - vowels
	if consonants < 0 {
		consonants = 0
	}

	n := float64(total)
	return Ratios{
		Digit:     float64(digits) / n,
		Vowel:     float64(vowels) / n,
		Consonant: float64(consonants) / n,
		NonAlnum:  float64(nonAlnum) / n,
	}
}

// Normalize lowercases a query name and trims surrounding space and
// dots, the canonical form for set membership checks.
func Normalize(name string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(name), "."))
}

// TLD returns the lowercased last non-empty label of name, or "" if the
// name has no labels.
func TLD(name string) string {
	labels := SplitLabels(name)
	if len(labels) == 0 {
		return ""
	}
	return strings.ToLower(labels[len(labels)-1])
}

// HasEncodedLabel reports whether any label looks like a packed base64-style
// token: at least 16 characters, drawn only from the base64 alphabet, and
// not also a plain lowercase DNS label.
func HasEncodedLabel(labels []string) bool {
	for _, l := range labels {
		if len(l) >= encodedLabelMinLen && base64LabelRe.MatchString(l) && !plainLabelRe.MatchString(l) {
			return true
		}
	}
	return false
}

// LongestLabelDigitFraction returns the fraction of digits in the longest
// label by character count, or 0 if there are no labels. Ties keep the
// first longest label.
func LongestLabelDigitFraction(labels []string) float64 {
	if len(labels) == 0 {
		return 0.0
	}

	longest := labels[0]
	for _, l := range labels[1:] {
		if len(l) > len(longest) {
			longest = l
		}
	}
	if longest == "" {
		return 0.0
	}

	digits, total := 0, 0
	for _, r := range longest {
		total++
		if unicode.IsDigit(r) {
			digits++
		}
	}
	return float64(digits) / float64(total)
}
