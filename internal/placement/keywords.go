package placement

import (
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"
)

// Keyword tables used when no folder mapping matches. Kept as data so they
// can be replaced from a catalog file for additional locales.
type KeywordTables struct {
	Spam       []string `yaml:"spam"`
	Promotions []string `yaml:"promotions"`
	Social     []string `yaml:"social"`
}

// DefaultKeywords covers English and French folder naming conventions.
func DefaultKeywords() KeywordTables {
	return KeywordTables{
		Spam: []string{
			"spam",
			"junk",
			"bulk",
			"quarantaine",
			"quarantine",
			"indésirable",
			"indesirable",
			"pourriel",
		},
		Promotions: []string{
			"promotion",
			"promo",
			"offre",
			"offers",
			"deals",
			"newsletter",
		},
		Social: []string{
			"social",
			"forum",
			"réseaux",
			"reseaux",
			"notification",
		},
	}
}

// LoadKeywords reads replacement keyword tables from a YAML catalog file.
// Missing tables keep their defaults.
func LoadKeywords(path string) (KeywordTables, error) {
	tables := DefaultKeywords()

	data, err := os.ReadFile(path)
	if err != nil {
		return tables, fmt.Errorf("failed to read keyword catalog: %w", err)
	}

	var loaded KeywordTables
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return tables, fmt.Errorf("failed to parse keyword catalog: %w", err)
	}

	if len(loaded.Spam) > 0 {
		tables.Spam = loaded.Spam
	}
	if len(loaded.Promotions) > 0 {
		tables.Promotions = loaded.Promotions
	}
	if len(loaded.Social) > 0 {
		tables.Social = loaded.Social
	}
	return tables, nil
}
