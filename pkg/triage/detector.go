package triage

import "bugtriage/pkg/signals"

// DetectDuplicate scans observable messages in order and returns the first ticket key that
// shares a message with duplicate language ("existing", "found", "already", "duplicate").
//
// This is a text heuristic, not a query: a tool result that merely contains "found" next to
// a key counts, and a reply that names a duplicate without those words does not.
func DetectDuplicate(m *signals.Matcher, transcript []Message) (string, bool) {
	for i := range transcript {
		if !transcript[i].Observable() {
			continue
		}
		if key, ok := m.DuplicateReference(transcript[i].Content); ok {
			return key, true
		}
	}
	return "", false
}
