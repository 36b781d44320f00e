package entity

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/btasdemir/medgraph-rag/internal/core/domain"
)

// VocabularyMatcher extracts entity candidates by matching a curated term
// list against the query and retrieved chunk text. It is the default
// extractor: deterministic, no LLM round trip, and the graph lookup
// downstream discards anything the graph does not know anyway.
type VocabularyMatcher struct {
	// terms maps a lowercase surface form (term or synonym) to the
	// canonical term.
	terms map[string]string
	// ordered surface forms, longest first, so multi-word terms win over
	// their substrings.
	ordered []string
}

type vocabularyFile struct {
	Entities []struct {
		Term     string   `yaml:"term"`
		Synonyms []string `yaml:"synonyms"`
	} `yaml:"entities"`
}

func LoadVocabulary(path string) (*VocabularyMatcher, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocabulary file: %w", err)
	}
	defer f.Close()
	return ParseVocabulary(f)
}

func ParseVocabulary(r io.Reader) (*VocabularyMatcher, error) {
	var file vocabularyFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode vocabulary yaml: %w", err)
	}
	if len(file.Entities) == 0 {
		return nil, fmt.Errorf("vocabulary has no entities")
	}

	matcher := &VocabularyMatcher{terms: make(map[string]string)}
	for _, entry := range file.Entities {
		canonical := strings.ToLower(strings.TrimSpace(entry.Term))
		if canonical == "" {
			continue
		}
		matcher.add(canonical, canonical)
		for _, synonym := range entry.Synonyms {
			matcher.add(strings.ToLower(strings.TrimSpace(synonym)), canonical)
		}
	}

	matcher.ordered = make([]string, 0, len(matcher.terms))
	for surface := range matcher.terms {
		matcher.ordered = append(matcher.ordered, surface)
	}
	sort.Slice(matcher.ordered, func(i, j int) bool {
		if len(matcher.ordered[i]) != len(matcher.ordered[j]) {
			return len(matcher.ordered[i]) > len(matcher.ordered[j])
		}
		return matcher.ordered[i] < matcher.ordered[j]
	})
	return matcher, nil
}

func (m *VocabularyMatcher) add(surface, canonical string) {
	if surface == "" {
		return
	}
	if _, exists := m.terms[surface]; !exists {
		m.terms[surface] = canonical
	}
}

func (m *VocabularyMatcher) ExtractCandidates(_ context.Context, query string, chunks []domain.FusedResult) ([]string, error) {
	var haystack strings.Builder
	haystack.WriteString(strings.ToLower(query))
	for _, chunk := range chunks {
		haystack.WriteString("\n")
		haystack.WriteString(strings.ToLower(chunk.Text))
	}
	text := haystack.String()

	seen := make(map[string]bool)
	var out []string
	for _, surface := range m.ordered {
		if !strings.Contains(text, surface) {
			continue
		}
		canonical := m.terms[surface]
		if seen[canonical] {
			continue
		}
		seen[canonical] = true
		out = append(out, canonical)
	}
	return out, nil
}
