package triage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		text     string
		validity Validity
		severity Severity
		rule     string
	}{
		{"Explain quantum mechanics", ValidityInvalid, SeverityNotABug, "off_topic"},
		{"How to reset my password?", ValidityInvalid, SeverityNotABug, "off_topic"},
		{"Feature request: dark mode", ValidityInvalid, SeverityNotABug, "off_topic"},
		{"The app lifecycle hook misbehaves", ValidityInvalid, SeverityNotABug, "off_topic"},
		{"Typo in footer", ValidityValid, SeverityTrivial, "trivial"},
		{"Typo in error message", ValidityValid, SeverityTrivial, "trivial"},
		{"Production database crashed completely", ValidityValid, SeverityCritical, "critical"},
		{"Complete outage affecting all customers", ValidityValid, SeverityCritical, "critical"},
		{"Production database is slow", ValidityValid, SeverityHigh, "db_prod"},
		{"Login failure in production", ValidityValid, SeverityHigh, "login_prod"},
		{"Login failure in production for all users", ValidityValid, SeverityHigh, "login_prod"},
		{"production database crashed completely, affecting all users", ValidityValid, SeverityCritical, "critical"},
		{"typo in footer text", ValidityValid, SeverityTrivial, "trivial"},
		{"explain how quantum mechanics works", ValidityInvalid, SeverityNotABug, "off_topic"},
		{"Memory leak in the export API", ValidityValid, SeverityHigh, "high_keyword"},
		{"Minor error in the export", ValidityValid, SeverityHigh, "high_keyword"},
		{"Minor dashboard UI glitch", ValidityValid, SeverityMinor, "minor_ui"},
		{"Button color doesn't match design", ValidityValid, SeverityNeedsInvestigation, "design_mismatch"},
		{"Is this a bug or feature?", ValidityValid, SeverityNeedsInvestigation, "ambiguous"},
		{"Search results load slowly", ValidityValid, SeverityMedium, "default"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			v := Classify(tt.text)
			assert.Equal(t, tt.validity, v.Validity)
			assert.Equal(t, tt.severity, v.Severity)
			assert.Equal(t, tt.rule, v.Rule)
			assert.Equal(t, tt.validity == ValidityInvalid, v.Rejected())
		})
	}
}

func TestClassifyIsPure(t *testing.T) {
	for _, text := range []string{"Login failure in production", "Typo in footer", "", "EXPLAIN this"} {
		assert.Equal(t, Classify(text), Classify(text))
	}
}

func TestClassifyIgnoresCase(t *testing.T) {
	assert.Equal(t, Classify("production database crashed completely"), Classify("PRODUCTION DATABASE CRASHED COMPLETELY"))
}

func TestSeverityPriority(t *testing.T) {
	tests := map[Severity]string{
		SeverityCritical:           "P0",
		SeverityHigh:               "P1",
		SeverityMedium:             "P2",
		SeverityMinor:              "P3",
		SeverityNeedsInvestigation: "P2",
		SeverityUnset:              "P2",
	}
	for sev, want := range tests {
		assert.Equal(t, want, sev.Priority(), "severity %q", sev)
	}
}
