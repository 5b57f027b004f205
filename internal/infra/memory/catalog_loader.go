package memory

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"license-exam-service/internal/domain"
)

// Catalog is the on-disk layout of a question-set file. JSON catalogs parse too,
// since JSON is valid YAML.
type Catalog struct {
	QuestionSets []domain.QuestionSet `yaml:"questionSets"`
}

// LoadCatalogFile reads every question set in path, keyed by id.
func LoadCatalogFile(path string) (map[string]domain.QuestionSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(raw)
}

// ParseCatalog decodes a catalog document. Each set is normalised and validated.
func ParseCatalog(raw []byte) (map[string]domain.QuestionSet, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(raw, &catalog); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	sets := make(map[string]domain.QuestionSet, len(catalog.QuestionSets))
	for _, set := range catalog.QuestionSets {
		if set.ID == "" {
			return nil, fmt.Errorf("%w: catalog contains a question set without id", domain.ErrConfiguration)
		}
		if _, dup := sets[set.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate question set %q", domain.ErrConfiguration, set.ID)
		}
		set = set.Normalize()
		if err := set.Validate(); err != nil {
			return nil, fmt.Errorf("question set %q: %w", set.ID, err)
		}
		sets[set.ID] = set
	}
	return sets, nil
}

// NewCatalogLoader returns a static loader over the sets stored in path.
func NewCatalogLoader(_ context.Context, path string) (*StaticQuestionSetLoader, error) {
	sets, err := LoadCatalogFile(path)
	if err != nil {
		return nil, err
	}
	return NewStaticQuestionSetLoader(sets), nil
}
