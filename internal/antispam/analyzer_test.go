package antispam

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/altafino/inbox-verifier/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleHeaders = "Return-Path: <news@example.com>\r\n" +
	"Received: from mta.example.com by mx.test.local\r\n" +
	"X-Spam-Flag: YES\r\n" +
	"X-Spam-Status: Yes, score=7.2 required=5.0\r\n" +
	"ARC-Authentication-Results: i=1; mx.google.com; spf=pass\r\n" +
	"Subject: hello\r\n"

func TestAnalyzeDetectsSpamassassin(t *testing.T) {
	res := Analyze(sampleHeaders, DefaultCatalog())

	assert.True(t, res.Detected["spamassassin"])
	assert.Contains(t, res.Evidence["spamassassin"], "X-Spam-Flag: YES")
	assert.Contains(t, res.Evidence["spamassassin"], "X-Spam-Status: Yes, score=7.2 required=5.0")
}

func TestAnalyzeEvaluatesAllSystems(t *testing.T) {
	res := Analyze(sampleHeaders, DefaultCatalog())

	// Regex pattern matches the ARC line; detection of one system must not
	// short-circuit the others.
	assert.True(t, res.Detected["spamassassin"])
	assert.True(t, res.Detected["google"])
	assert.False(t, res.Detected["rspamd"])
}

func TestAnalyzeEvidenceLineRecordedOnce(t *testing.T) {
	// One line satisfying several patterns of the same system still yields
	// a single evidence entry for it.
	headers := "X-Report: X-Spam-Flag and X-Spam-Status both mentioned here\r\n"

	res := Analyze(headers, DefaultCatalog())

	assert.True(t, res.Detected["spamassassin"])
	assert.Len(t, res.Evidence["spamassassin"], 1)
}

func TestAnalyzeNoMatches(t *testing.T) {
	res := Analyze("Subject: hi\r\nFrom: a@b.c\r\n", DefaultCatalog())

	assert.Empty(t, res.Detected)
	assert.Empty(t, res.Evidence)
}

func TestAnalyzeEmptyHeaders(t *testing.T) {
	res := Analyze("", DefaultCatalog())

	assert.Empty(t, res.Detected)
	assert.Empty(t, res.Evidence)
}

func TestAnalyzeRegexCaseInsensitive(t *testing.T) {
	systems := []models.AntispamSystem{
		{Name: "google", Active: true, Patterns: []string{`ARC-Authentication-Results:.*mx\.google\.com`}},
	}

	res := Analyze("arc-authentication-results: i=1; MX.GOOGLE.COM; spf=pass\n", systems)
	assert.True(t, res.Detected["google"])
}

func TestAnalyzeMalformedRegexFallsBackToLiteral(t *testing.T) {
	systems := []models.AntispamSystem{
		{Name: "broken", Active: true, Patterns: []string{"X-Thing-[unclosed"}},
	}

	// Must not panic, and the literal text still matches case-insensitively.
	res := Analyze("x-thing-[unclosed: 1\n", systems)
	assert.True(t, res.Detected["broken"])
}

func TestAnalyzeSkipsInactiveSystems(t *testing.T) {
	systems := []models.AntispamSystem{
		{Name: "spamassassin", Active: false, Patterns: []string{"X-Spam-Flag"}},
	}

	res := Analyze(sampleHeaders, systems)
	assert.Empty(t, res.Detected)
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "antispam.yaml")
	content := `systems:
  - name: spamassassin
    display_name: SpamAssassin
    active: true
    patterns:
      - X-Spam-Flag
  - name: none
    display_name: None
    active: true
    patterns: []
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	systems, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Len(t, systems, 2)
	assert.Equal(t, "spamassassin", systems[0].Name)
}

func TestLoadCatalogRejectsEmptyPatterns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "antispam.yaml")
	content := `systems:
  - name: broken
    active: true
    patterns: []
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := LoadCatalog(path)
	assert.Error(t, err)
}
