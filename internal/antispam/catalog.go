package antispam

import (
	"fmt"
	"os"

	"github.com/altafino/inbox-verifier/internal/models"
	yaml "gopkg.in/yaml.v3"
)

// DefaultCatalog returns the built-in anti-spam system definitions. Admin
// configuration can replace or extend these via LoadCatalog.
func DefaultCatalog() []models.AntispamSystem {
	return []models.AntispamSystem{
		{
			Name:        "spamassassin",
			DisplayName: "SpamAssassin",
			Active:      true,
			Patterns: []string{
				"X-Spam-Flag",
				"X-Spam-Status",
				"X-Spam-Checker-Version",
				"X-Spam-Level",
			},
		},
		{
			Name:        "rspamd",
			DisplayName: "Rspamd",
			Active:      true,
			Patterns: []string{
				"X-Rspamd-Queue-Id",
				"X-Rspamd-Server",
				"X-Rspamd-Action",
			},
		},
		{
			Name:        "forefront",
			DisplayName: "Microsoft Defender / EOP",
			Active:      true,
			Patterns: []string{
				"X-Forefront-Antispam-Report",
				"X-Microsoft-Antispam",
				"X-MS-Exchange-Organization-SCL",
			},
		},
		{
			Name:        "google",
			DisplayName: "Google Mail Filtering",
			Active:      true,
			Patterns: []string{
				`ARC-Authentication-Results:.*mx\.google\.com`,
				`X-Google-Smtp-Source`,
			},
		},
		{
			Name:        "barracuda",
			DisplayName: "Barracuda",
			Active:      true,
			Patterns: []string{
				"X-Barracuda-",
				"X-ASG-Debug-ID",
			},
		},
		{
			Name:        "proofpoint",
			DisplayName: "Proofpoint",
			Active:      true,
			Patterns: []string{
				"X-Proofpoint-",
			},
		},
		{
			Name:        "mimecast",
			DisplayName: "Mimecast",
			Active:      true,
			Patterns: []string{
				"X-Mimecast-",
			},
		},
	}
}

// LoadCatalog reads anti-spam system definitions from a YAML file. Entries
// missing patterns while active are rejected so a bad catalog edit cannot
// silently disable detection.
func LoadCatalog(path string) ([]models.AntispamSystem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read antispam catalog: %w", err)
	}

	var catalog struct {
		Systems []models.AntispamSystem `yaml:"systems"`
	}
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse antispam catalog: %w", err)
	}

	for _, sys := range catalog.Systems {
		if sys.Active && sys.Name != "none" && len(sys.Patterns) == 0 {
			return nil, fmt.Errorf("antispam catalog entry %q is active but has no patterns", sys.Name)
		}
	}

	return catalog.Systems, nil
}
