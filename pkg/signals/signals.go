// Package signals extracts triage signals from free text: ticket keys, duplicate language,
// the ticket-creation marker, keyword hits and search terms.
//
// Every heuristic that reads natural language lives here so each pattern can be tested on
// its own and swapped without touching the control loop.
package signals

import (
	"regexp"
	"strings"
	"unicode"
)

// CreationMarker prefixes the output of a successful ticket_create call.
const CreationMarker = "Created new ticket"

// DuplicateWords are the words that, next to a ticket key in the same message, mark a duplicate.
//
//nolint:gochecknoglobals // fixed vocabulary
var DuplicateWords = []string{"existing", "found", "already", "duplicate"}

// MinTermLength is the shortest word used as a search term.
const MinTermLength = 4

// Matcher finds ticket keys for one key prefix.
type Matcher struct {
	prefix string
	keyRe  *regexp.Regexp
}

// NewMatcher builds a matcher for keys shaped <prefix>-<digits>, case-insensitive.
func NewMatcher(prefix string) *Matcher {
	return &Matcher{
		prefix: strings.ToUpper(prefix),
		keyRe:  regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(prefix) + `-\d+\b`),
	}
}

// Prefix returns the upper-cased key prefix.
func (m *Matcher) Prefix() string {
	return m.prefix
}

// TicketKeys returns every key in text, upper-cased, in order of appearance.
func (m *Matcher) TicketKeys(text string) []string {
	found := m.keyRe.FindAllString(text, -1)
	for i := range found {
		found[i] = strings.ToUpper(found[i])
	}
	return found
}

// FirstTicketKey returns the first key in text.
func (m *Matcher) FirstTicketKey(text string) (string, bool) {
	key := m.keyRe.FindString(text)
	if key == "" {
		return "", false
	}
	return strings.ToUpper(key), true
}

// DuplicateReference returns the first key of a message that also uses duplicate language.
func (m *Matcher) DuplicateReference(message string) (string, bool) {
	if !ContainsAny(message, DuplicateWords...) {
		return "", false
	}
	return m.FirstTicketKey(message)
}

// ReferencesExisting reports whether text says "existing" and mentions "<prefix>-".
func (m *Matcher) ReferencesExisting(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "existing") && strings.Contains(lower, strings.ToLower(m.prefix)+"-")
}

// HasCreationMarker reports whether text is (or contains) a ticket_create confirmation.
func HasCreationMarker(text string) bool {
	return strings.Contains(text, CreationMarker)
}

// ContainsAny reports whether text contains any of the phrases, ignoring case.
func ContainsAny(text string, phrases ...string) bool {
	lower := strings.ToLower(text)
	for _, p := range phrases {
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// MatchedPhrases returns the phrases that occur in text, ignoring case, in list order.
func MatchedPhrases(text string, phrases ...string) []string {
	lower := strings.ToLower(text)
	var hits []string
	for _, p := range phrases {
		if strings.Contains(lower, strings.ToLower(p)) {
			hits = append(hits, p)
		}
	}
	return hits
}

// SearchTerms lower-cases query, strips surrounding punctuation from each word and keeps
// words of at least MinTermLength runes. Duplicates are dropped; order is preserved.
func SearchTerms(query string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, raw := range strings.Fields(strings.ToLower(query)) {
		word := strings.TrimFunc(raw, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len([]rune(word)) < MinTermLength || seen[word] {
			continue
		}
		seen[word] = true
		terms = append(terms, word)
	}
	return terms
}

// MatchesAnyTerm reports whether any term occurs in haystack (lower-cased by the caller).
func MatchesAnyTerm(haystack string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(haystack, t) {
			return true
		}
	}
	return false
}
