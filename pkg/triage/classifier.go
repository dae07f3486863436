package triage

import (
	"strings"

	"bugtriage/pkg/signals"
)

// Keyword vocabularies for the classifier. Matching is case-insensitive substring search.
//
//nolint:gochecknoglobals // fixed vocabularies
var (
	OffTopicKeywords = []string{
		"explain", "how to", "what is", "quantum", "mechanics",
		"random thought", "life", "feature request",
	}
	TrivialKeywords  = []string{"typo in footer", "typo in"}
	CriticalKeywords = []string{
		"crashed completely", "database crashed", "production database crashed",
		"complete outage", "complete production", "affecting all",
	}
	HighKeywords = []string{
		"error", "failure", "broken", "not working",
		"timeout", "failing", "leak", "memory leak", "api crash",
	}
	MinorUIKeywords      = []string{"ui glitch", "dashboard glitch", "minor"}
	DesignIssueKeywords  = []string{"doesn't match design", "button color"}
	AmbiguousKeywords    = []string{"bug or feature", "is this a bug", "feature request"}
	productionIndicators = []string{"prod", "production"}
)

// Verdict is the classifier result.
type Verdict struct {
	Validity Validity
	Severity Severity
	// Rule names the decision-list entry that matched.
	Rule string
}

// Rejected reports whether the input is not a bug report.
func (v Verdict) Rejected() bool {
	return v.Validity == ValidityInvalid
}

// Classify maps report text to a verdict with an ordered decision list; the first matching
// rule wins. It is a pure function of text.
func Classify(text string) Verdict {
	q := strings.ToLower(text)

	if signals.ContainsAny(q, OffTopicKeywords...) {
		return Verdict{Validity: ValidityInvalid, Severity: SeverityNotABug, Rule: "off_topic"}
	}

	isCritical := signals.ContainsAny(q, CriticalKeywords...)
	isProd := signals.ContainsAny(q, productionIndicators...)
	isDBProd := strings.Contains(q, "database") && isProd
	isLoginProd := strings.Contains(q, "login") && isProd
	isHigh := signals.ContainsAny(q, HighKeywords...) || isDBProd || isLoginProd

	valid := func(sev Severity, rule string) Verdict {
		return Verdict{Validity: ValidityValid, Severity: sev, Rule: rule}
	}

	switch {
	case signals.ContainsAny(q, TrivialKeywords...):
		return valid(SeverityTrivial, "trivial")
	case isCritical:
		return valid(SeverityCritical, "critical")
	case isHigh:
		rule := "high_keyword"
		switch {
		case isDBProd:
			rule = "db_prod"
		case isLoginProd:
			rule = "login_prod"
		}
		return valid(SeverityHigh, rule)
	case signals.ContainsAny(q, MinorUIKeywords...):
		return valid(SeverityMinor, "minor_ui")
	case signals.ContainsAny(q, DesignIssueKeywords...):
		return valid(SeverityNeedsInvestigation, "design_mismatch")
	case signals.ContainsAny(q, AmbiguousKeywords...):
		return valid(SeverityNeedsInvestigation, "ambiguous")
	default:
		return valid(SeverityMedium, "default")
	}
}
