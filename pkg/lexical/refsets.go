package lexical

import "strings"

// ReferenceSets holds the read-only string sets the analyzer matches
// against. Both sets are loaded once and never mutated at runtime; the
// built-in defaults can be replaced through configuration without code
// changes.
type ReferenceSets struct {
	uncommonTLDs map[string]struct{}
	keywords     []string
}

// defaultUncommonTLDs are TLDs disproportionately used by throwaway and
// tunneling infrastructure (free or near-free registrations).
var defaultUncommonTLDs = []string{
	"xyz", "top", "biz", "tk", "gq", "cf", "ga", "ml", "space", "info", "click",
}

// defaultTunnelingKeywords are tool and operation names associated with
// DNS tunneling, matched as substrings of the joined labels.
var defaultTunnelingKeywords = []string{
	"tunnel", "dns", "xfil", "exfil", "data", "payload", "c2", "leak", "dnscat", "iodine",
}

// NewReferenceSets builds ReferenceSets from explicit lists. Entries are
// lowercased; empty entries are dropped.
func NewReferenceSets(uncommonTLDs, keywords []string) ReferenceSets {
	tlds := make(map[string]struct{}, len(uncommonTLDs))
	for _, t := range uncommonTLDs {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			tlds[t] = struct{}{}
		}
	}

	kws := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			kws = append(kws, k)
		}
	}

	return ReferenceSets{uncommonTLDs: tlds, keywords: kws}
}

// DefaultReferenceSets returns the built-in uncommon-TLD and
// tunneling-keyword sets.
func DefaultReferenceSets() ReferenceSets {
	return NewReferenceSets(defaultUncommonTLDs, defaultTunnelingKeywords)
}

// DefaultUncommonTLDs returns a copy of the built-in uncommon-TLD list.
func DefaultUncommonTLDs() []string {
	return append([]string(nil), defaultUncommonTLDs...)
}

// DefaultTunnelingKeywords returns a copy of the built-in keyword list.
func DefaultTunnelingKeywords() []string {
	return append([]string(nil), defaultTunnelingKeywords...)
}

// IsUncommonTLD reports whether the TLD of name is in the uncommon-TLD set.
func (r ReferenceSets) IsUncommonTLD(name string) bool {
	_, ok := r.uncommonTLDs[TLD(name)]
	return ok
}

// HasTunnelingKeyword reports whether any tunneling keyword appears as a
// substring of the labels joined by ".", case-insensitive.
func (r ReferenceSets) HasTunnelingKeyword(labels []string) bool {
	if len(labels) == 0 {
		return false
	}
	joined := strings.ToLower(strings.Join(labels, "."))
	for _, k := range r.keywords {
		if strings.Contains(joined, k) {
			return true
		}
	}
	return false
}
