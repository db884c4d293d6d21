// Package terminology applies a user-supplied glossary to translated text
// and keeps repeated terms consistent across a document using a
// page-windowed memory of previously resolved translations.
package terminology

import (
	"sort"
	"strings"
	"sync"
)

// DefaultWindowPages is the default recency window (±pages) for preferring
// a locally consistent prior translation.
const DefaultWindowPages = 2

type resolution struct {
	translation string
	page        int
}

// Enforcer adjusts translated text for terminology consistency. It is owned
// by the caller and passed through the orchestrator: one Enforcer per
// document run keeps concurrent document translations independent.
//
// All methods are safe for concurrent use; the resolved-term table is
// guarded by a single mutex since resolution order affects outcomes.
type Enforcer struct {
	mu        sync.Mutex
	window    int
	resolved  map[string][]resolution
	firstSeen map[string]string
}

// NewEnforcer creates an Enforcer with the given recency window in pages.
// A non-positive window selects DefaultWindowPages.
func NewEnforcer(windowPages int) *Enforcer {
	if windowPages <= 0 {
		windowPages = DefaultWindowPages
	}
	return &Enforcer{
		window:    windowPages,
		resolved:  make(map[string][]resolution),
		firstSeen: make(map[string]string),
	}
}

// WindowPages returns the configured recency window
func (e *Enforcer) WindowPages() int {
	return e.window
}

// RecordResolution remembers that term was translated as translation on the
// given page. The first recorded translation for a term also becomes the
// document-global fallback used outside the recency window.
func (e *Enforcer) RecordResolution(term, translation string, page int) {
	if term == "" || translation == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recordLocked(term, translation, page)
}

func (e *Enforcer) recordLocked(term, translation string, page int) {
	e.resolved[term] = append(e.resolved[term], resolution{translation: translation, page: page})
	if _, ok := e.firstSeen[term]; !ok {
		e.firstSeen[term] = translation
	}
}

// preferredLocked picks the translation to prefer for term on page: the
// nearest resolution within ±window pages (latest wins on ties), falling
// back to the document-global first-seen mapping.
func (e *Enforcer) preferredLocked(term string, page int) string {
	best := ""
	bestDist := e.window + 1
	for _, r := range e.resolved[term] {
		dist := page - r.page
		if dist < 0 {
			dist = -dist
		}
		if dist <= e.window && dist <= bestDist {
			best = r.translation
			bestDist = dist
		}
	}
	if best != "" {
		return best
	}
	return e.firstSeen[term]
}

// Apply rewrites translated so that glossary terms present in the source
// text appear as their configured translations, and repeated non-glossary
// terms stay consistent with nearby prior resolutions. It must not be
// called for blocks whose translation was skipped.
func (e *Enforcer) Apply(translated, source string, glossary map[string]string, page int) string {
	if translated == "" {
		return translated
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Longer terms first so a term that prefixes another is never
	// clobbered by the shorter replacement.
	for _, term := range sortedKeys(glossary) {
		want := glossary[term]
		if want == "" || !strings.Contains(source, term) {
			continue
		}

		switch {
		case strings.Contains(translated, term):
			// The literal source term survived untranslated.
			translated = strings.ReplaceAll(translated, term, want)
		case strings.Contains(translated, want):
			// Already consistent.
		default:
			// A prior inconsistent translation may be standing in for
			// the glossary term.
			if prior := e.preferredLocked(term, page); prior != "" && prior != want && strings.Contains(translated, prior) {
				translated = strings.ReplaceAll(translated, prior, want)
			}
		}
		e.recordLocked(term, want, page)
	}

	// Consistency pass for remembered non-glossary terms.
	for _, term := range sortedResolvedKeys(e.resolved) {
		if _, inGlossary := glossary[term]; inGlossary {
			continue
		}
		if !strings.Contains(source, term) {
			continue
		}
		preferred := e.preferredLocked(term, page)
		if preferred == "" || strings.Contains(translated, preferred) {
			continue
		}
		for _, r := range e.resolved[term] {
			if r.translation != preferred && strings.Contains(translated, r.translation) {
				translated = strings.ReplaceAll(translated, r.translation, preferred)
				break
			}
		}
	}

	return translated
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortByLengthDesc(keys)
	return keys
}

func sortedResolvedKeys(m map[string][]resolution) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortByLengthDesc(keys)
	return keys
}

func sortByLengthDesc(keys []string) {
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
}
