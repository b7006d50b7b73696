package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/dnsguard/dnsguard/pkg/lexical"
	"github.com/dnsguard/dnsguard/pkg/prefilter"
	"github.com/dnsguard/dnsguard/pkg/verdict"
)

// Rules bundles everything the detection path can be tuned with: decision
// thresholds, pre-filter cutoffs, the reference string sets and the
// whitelist. All of it ships with working defaults; a YAML file and
// DNSGUARD_ environment variables override selectively.
type Rules struct {
	Thresholds verdict.Thresholds  `koanf:"thresholds"`
	Prefilter  prefilter.Prefilter `koanf:"prefilter"`

	// UncommonTLDs and TunnelingKeywords replace the built-in reference
	// sets when set.
	UncommonTLDs      []string `koanf:"uncommon_tlds" validate:"min=1"`
	TunnelingKeywords []string `koanf:"tunneling_keywords" validate:"min=1"`

	// Whitelist lists known-good domains inline; WhitelistFile points at
	// a newline-separated file merged on top. An absent file means an
	// empty whitelist, not an error.
	Whitelist     []string `koanf:"whitelist"`
	WhitelistFile string   `koanf:"whitelist_file"`

	// WhitelistPrefixes are hostname prefixes treated as legitimate.
	WhitelistPrefixes []string `koanf:"whitelist_prefixes"`

	// WhitelistCacheSize bounds the membership memo cache. Zero disables
	// memoization.
	WhitelistCacheSize int `koanf:"whitelist_cache_size" validate:"gte=0"`
}

// DefaultRules returns the built-in rule set.
func DefaultRules() Rules {
	return Rules{
		Thresholds:         verdict.DefaultThresholds(),
		Prefilter:          prefilter.Default(),
		UncommonTLDs:       lexical.DefaultUncommonTLDs(),
		TunnelingKeywords:  lexical.DefaultTunnelingKeywords(),
		WhitelistPrefixes:  append([]string(nil), verdict.DefaultPrefixes...),
		WhitelistCacheSize: 4096,
	}
}

// LoadRules layers defaults, the optional YAML file at path and
// environment overrides, then validates the result. An empty path skips
// the file layer.
func LoadRules(path string) (*Rules, error) {
	k := koanf.New(".")

	_ = k.Load(structs.Provider(DefaultRules(), "koanf"), nil)

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading rules file %s: %w", path, err)
		}
	}

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var r Rules
	if err := k.Unmarshal("", &r); err != nil {
		return nil, fmt.Errorf("unmarshalling rules: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(&r); err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}
	return &r, nil
}

// ReferenceSets builds the analyzer string sets from the rule config.
func (r *Rules) ReferenceSets() lexical.ReferenceSets {
	return lexical.NewReferenceSets(r.UncommonTLDs, r.TunnelingKeywords)
}

// BuildWhitelist assembles the whitelist from the inline entries plus the
// optional whitelist file. A missing file yields only the inline entries.
func (r *Rules) BuildWhitelist() (*verdict.Whitelist, error) {
	domains := append([]string(nil), r.Whitelist...)

	if r.WhitelistFile != "" {
		fromFile, err := readDomainLines(r.WhitelistFile)
		if err != nil {
			return nil, err
		}
		domains = append(domains, fromFile...)
	}

	return verdict.NewWhitelist(domains,
		verdict.WithPrefixes(r.WhitelistPrefixes),
		verdict.WithCacheSize(r.WhitelistCacheSize),
	), nil
}

// Engine assembles the decision engine from the rule config.
func (r *Rules) Engine() (*verdict.Engine, error) {
	wl, err := r.BuildWhitelist()
	if err != nil {
		return nil, err
	}
	return verdict.NewEngine(r.Thresholds, wl), nil
}

// readDomainLines reads one domain per line, skipping blanks and #
// comments. A missing file is an empty list.
func readDomainLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening whitelist file: %w", err)
	}
	defer f.Close()

	var domains []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		domains = append(domains, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading whitelist file: %w", err)
	}
	return domains, nil
}
