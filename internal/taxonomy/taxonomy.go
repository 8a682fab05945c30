package taxonomy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Fallback is the reserved label used when no valid category can be determined.
const Fallback = "other"

// Set is an ordered, non-empty collection of category labels, loaded once per
// run and immutable afterwards.
type Set struct {
	labels []string
	index  map[string]struct{}
}

// Load reads the category taxonomy from a YAML file of the form
// {categories: [a, b, ...]}. An absent file or empty list is a fatal
// configuration error.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading taxonomy: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Set, error) {
	var doc struct {
		Categories []string `yaml:"categories"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing taxonomy: %w", err)
	}
	return New(doc.Categories)
}

// New builds a Set from an ordered label list.
func New(labels []string) (*Set, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("taxonomy has no categories")
	}
	s := &Set{index: make(map[string]struct{}, len(labels))}
	for _, l := range labels {
		if l == "" {
			return nil, fmt.Errorf("taxonomy contains an empty category")
		}
		if _, dup := s.index[l]; dup {
			continue
		}
		s.index[l] = struct{}{}
		s.labels = append(s.labels, l)
	}
	return s, nil
}

// Labels returns the categories in declaration order. Callers must not
// mutate the returned slice.
func (s *Set) Labels() []string {
	return s.labels
}

// Contains reports whether label is a known category.
func (s *Set) Contains(label string) bool {
	_, ok := s.index[label]
	return ok
}

// Len returns the number of categories.
func (s *Set) Len() int {
	return len(s.labels)
}

// Uniform returns a score vector assigning 1/len to every category.
func (s *Set) Uniform() map[string]float64 {
	scores := make(map[string]float64, len(s.labels))
	share := 1.0 / float64(len(s.labels))
	for _, l := range s.labels {
		scores[l] = share
	}
	return scores
}
