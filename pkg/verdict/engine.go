package verdict

import (
	"fmt"
	"math"

	"github.com/dnsguard/dnsguard/pkg/feature"
)

// Engine applies the ordered decision rules to a feature vector and its
// classifier score. Rules are evaluated top to bottom; the first match
// wins and no rule is re-evaluated. The engine is stateless beyond its
// immutable thresholds and whitelist, so it is safe for concurrent use
// across independent rows.
//
// A note on the whitelist branch: a whitelisted name with a score at or
// above WhitelistScore is still flagged Suspicious even without structural
// evidence. That interacts oddly with the idea of a whitelist; it is kept
// deliberately so a compromised trusted domain is not invisible, and the
// threshold is configurable for operators who disagree.
type Engine struct {
	thresholds Thresholds
	whitelist  *Whitelist
}

// NewEngine builds a decision engine. A nil whitelist is treated as empty.
func NewEngine(t Thresholds, wl *Whitelist) *Engine {
	if wl == nil {
		wl = NewWhitelist(nil)
	}
	return &Engine{thresholds: t, whitelist: wl}
}

// Thresholds returns the engine's rule constants.
func (e *Engine) Thresholds() Thresholds { return e.thresholds }

// Decide labels one query. The score must already be a valid probability;
// an out-of-range or NaN score is a caller error and is reported, never
// silently defaulted or clamped. The confidence is always the rescaled
// score, whichever rule produced the label.
func (e *Engine) Decide(name string, fv feature.Vector, score float64) (Verdict, error) {
	if math.IsNaN(score) || score < 0 || score > 1 {
		return Verdict{}, fmt.Errorf("decide %q: invalid classifier score %v", name, score)
	}

	return Verdict{
		Label:      e.label(name, fv, score),
		Confidence: Confidence(score),
	}, nil
}

func (e *Engine) label(name string, fv feature.Vector, score float64) Label {
	t := e.thresholds

	encoded := fv.Base64LabelPresent != 0
	keyword := fv.TunnelingKeywordPresent != 0
	uncommonTLD := fv.TLDUncommon != 0
	numLabels := int(fv.NumLabels)
	manyLabels := numLabels >= t.ManyLabels

	if e.whitelist.Contains(name) {
		// Whitelisting never overrides strong structural evidence.
		if encoded || (keyword && (fv.EntropyFull >= t.HighEntropy || manyLabels)) {
			return LabelSuspicious
		}
		if score >= t.WhitelistScore {
			return LabelSuspicious
		}
		return LabelSafe
	}

	if encoded {
		return LabelSuspicious
	}

	if keyword && (fv.EntropyFull >= t.KeywordEntropy || numLabels >= t.KeywordLabels) {
		return LabelSuspicious
	}

	if uncommonTLD &&
		(fv.EntropyFull >= t.HighEntropy ||
			fv.LongestLabelDigitFrac >= t.DigitFraction ||
			fv.TotalLen >= float64(t.LongName)) {
		return LabelSuspicious
	}

	if manyLabels && fv.EntropyLabelMax >= t.LabelEntropy {
		return LabelSuspicious
	}

	if score >= t.Score {
		return LabelSuspicious
	}
	if uncommonTLD && score >= t.UncommonTLDScore {
		return LabelSuspicious
	}

	return LabelSafe
}
