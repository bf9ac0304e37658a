package placement

import (
	"testing"

	"github.com/altafino/inbox-verifier/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestClassifyConfiguredMappingsWinOverHeuristics(t *testing.T) {
	c := NewClassifier(DefaultKeywords())
	mappings := []models.FolderMapping{
		{AccountID: "a1", Role: models.RoleInbox, Name: "INBOX"},
		{AccountID: "a1", Role: models.RoleSpam, Name: "Important"},
	}

	// A folder literally named "Important" mapped as spam classifies as spam.
	got := c.Classify(mappings, "Important")
	assert.Equal(t, models.PlacementSpam, got.Category)

	got = c.Classify(mappings, "INBOX")
	assert.Equal(t, models.PlacementInbox, got.Category)
	assert.Empty(t, got.Label)
}

func TestClassifyCaseInsensitiveFallback(t *testing.T) {
	c := NewClassifier(DefaultKeywords())
	mappings := []models.FolderMapping{
		{AccountID: "a1", Role: models.RoleSpam, Name: "Bulk Mail"},
	}

	got := c.Classify(mappings, "bulk mail")
	assert.Equal(t, models.PlacementSpam, got.Category)
}

func TestClassifyAdditionalInboxPreservesLabel(t *testing.T) {
	c := NewClassifier(DefaultKeywords())
	mappings := []models.FolderMapping{
		{AccountID: "a1", Role: models.RoleInbox, Name: "INBOX"},
		{AccountID: "a1", Role: models.RoleAdditionalInbox, Name: "INBOX (Promotions)", DisplayName: "Promotions"},
	}

	got := c.Classify(mappings, "INBOX (Promotions)")
	assert.Equal(t, models.PlacementInbox, got.Category)
	assert.Equal(t, "Promotions", got.Label)
}

func TestClassifyHeuristicsWithoutMappings(t *testing.T) {
	c := NewClassifier(DefaultKeywords())

	tests := []struct {
		folder   string
		category models.PlacementCategory
		label    string
	}{
		{"Junk Email", models.PlacementSpam, ""},
		{"Courrier indésirable", models.PlacementSpam, ""},
		{"Bulk", models.PlacementSpam, ""},
		{"Quarantaine", models.PlacementSpam, ""},
		{"Pourriel", models.PlacementSpam, ""},
		{"Promotions", models.PlacementInbox, "promotions"},
		{"Social Updates", models.PlacementInbox, "social"},
		{"Forums", models.PlacementInbox, "social"},
	}

	for _, tt := range tests {
		got := c.Classify(nil, tt.folder)
		assert.Equal(t, tt.category, got.Category, "folder %q", tt.folder)
		assert.Equal(t, tt.label, got.Label, "folder %q", tt.folder)
	}
}

func TestClassifyOptimisticDefault(t *testing.T) {
	c := NewClassifier(DefaultKeywords())

	got := c.Classify(nil, "Archive 2024")
	assert.Equal(t, models.PlacementInbox, got.Category)
	assert.Empty(t, got.Label)
}
