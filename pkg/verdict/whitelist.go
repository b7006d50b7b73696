package verdict

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dnsguard/dnsguard/pkg/lexical"
)

// DefaultPrefixes are hostname prefixes treated as legitimate regardless of
// the rest of the name. Matched against the normalized (lowercased,
// dot-trimmed) query name.
var DefaultPrefixes = []string{
	"www.", "api.", "cdn.", "static.", "assets.", "fonts.",
	"ssl.", "secure.", "mail.", "ftp.", "blog.", "shop.",
	"news.", "support.", "help.", "docs.", "status.",
}

// Whitelist is a read-only set of a-priori legitimate domains. Membership
// matches an exact domain, any subdomain of a listed domain, or one of the
// legitimate hostname prefixes. Loaded once; immutable during a run.
type Whitelist struct {
	domains  map[string]struct{}
	prefixes []string
	cache    *lru.Cache[string, bool]
}

// WhitelistOption customizes whitelist construction.
type WhitelistOption func(*whitelistOptions)

type whitelistOptions struct {
	prefixes  []string
	cacheSize int
}

// WithPrefixes replaces the default legitimate hostname prefixes.
func WithPrefixes(prefixes []string) WhitelistOption {
	return func(o *whitelistOptions) { o.prefixes = prefixes }
}

// WithCacheSize sets the membership memo cache capacity. Suffix matching
// walks the whole domain set, so repeated lookups of the same hot names
// are memoized. Size <= 0 disables the cache.
func WithCacheSize(size int) WhitelistOption {
	return func(o *whitelistOptions) { o.cacheSize = size }
}

// NewWhitelist builds a whitelist from fully-qualified domain strings.
// A nil or empty list is valid and matches only by prefix.
func NewWhitelist(domains []string, opts ...WhitelistOption) *Whitelist {
	o := whitelistOptions{prefixes: DefaultPrefixes, cacheSize: 4096}
	for _, opt := range opts {
		opt(&o)
	}

	set := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		d = lexical.Normalize(d)
		if d != "" {
			set[d] = struct{}{}
		}
	}

	w := &Whitelist{domains: set, prefixes: o.prefixes}
	if o.cacheSize > 0 {
		// lru.New only fails on non-positive size, which is guarded above.
		if cache, err := lru.New[string, bool](o.cacheSize); err == nil {
			w.cache = cache
		}
	}
	return w
}

// Len returns the number of whitelisted domains.
func (w *Whitelist) Len() int { return len(w.domains) }

// Contains reports whether name is whitelisted: exact match, subdomain of
// a whitelisted domain, or a legitimate hostname prefix.
func (w *Whitelist) Contains(name string) bool {
	q := lexical.Normalize(name)
	if q == "" {
		return false
	}

	if w.cache != nil {
		if hit, ok := w.cache.Get(q); ok {
			return hit
		}
	}

	match := w.matches(q)
	if w.cache != nil {
		w.cache.Add(q, match)
	}
	return match
}

func (w *Whitelist) matches(q string) bool {
	if _, ok := w.domains[q]; ok {
		return true
	}

	// Walk suffixes at dot boundaries instead of scanning the whole set.
	rest := q
	for {
		i := strings.IndexByte(rest, '.')
		if i < 0 {
			break
		}
		rest = rest[i+1:]
		if _, ok := w.domains[rest]; ok {
			return true
		}
	}

	for _, p := range w.prefixes {
		if strings.HasPrefix(q, p) {
			return true
		}
	}
	return false
}
