// Package placement maps provider-native folder names to placement
// categories using the account's configured folder mappings, with locale
// keyword heuristics as a fallback.
package placement

import (
	"strings"

	"github.com/altafino/inbox-verifier/internal/models"
)

// Classifier resolves folder names to placements. The zero value is not
// usable; create one with NewClassifier.
type Classifier struct {
	keywords KeywordTables
}

// NewClassifier creates a classifier with the given keyword tables. Pass the
// result of DefaultKeywords unless a catalog override is configured.
func NewClassifier(keywords KeywordTables) *Classifier {
	return &Classifier{keywords: keywords}
}

// Classify resolves one folder name or path against the account's mappings.
//
// Priority, first match wins:
//  1. configured spam mapping (exact, then case-insensitive)
//  2. configured inbox mapping
//  3. any configured additional-inbox mapping (counts as inbox, label kept)
//  4. locale keyword heuristics (English and French)
//  5. inbox (optimistic default for unmapped, unrecognized folders)
func (c *Classifier) Classify(mappings []models.FolderMapping, folder string) models.Placement {
	if m := matchMapping(mappings, models.RoleSpam, folder); m != nil {
		return models.Placement{Category: models.PlacementSpam}
	}
	if m := matchMapping(mappings, models.RoleInbox, folder); m != nil {
		return models.Placement{Category: models.PlacementInbox}
	}
	if m := matchMapping(mappings, models.RoleAdditionalInbox, folder); m != nil {
		label := m.DisplayName
		if label == "" {
			label = m.Name
		}
		return models.Placement{Category: models.PlacementInbox, Label: label}
	}

	lower := strings.ToLower(folder)
	if containsAny(lower, c.keywords.Spam) {
		return models.Placement{Category: models.PlacementSpam}
	}
	if containsAny(lower, c.keywords.Promotions) {
		return models.Placement{Category: models.PlacementInbox, Label: "promotions"}
	}
	if containsAny(lower, c.keywords.Social) {
		return models.Placement{Category: models.PlacementInbox, Label: "social"}
	}

	// Unmapped and unrecognized folders are assumed deliverable.
	return models.Placement{Category: models.PlacementInbox}
}

// matchMapping returns the first mapping of the given role whose name equals
// the folder, trying case-sensitive before case-insensitive comparison.
func matchMapping(mappings []models.FolderMapping, role models.FolderRole, folder string) *models.FolderMapping {
	for i := range mappings {
		if mappings[i].Role == role && mappings[i].Name == folder {
			return &mappings[i]
		}
	}
	for i := range mappings {
		if mappings[i].Role == role && strings.EqualFold(mappings[i].Name, folder) {
			return &mappings[i]
		}
	}
	return nil
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
