// Package antispam detects which filtering systems processed a message by
// matching their characteristic header patterns against raw header text.
package antispam

import (
	"regexp"
	"strings"

	"github.com/altafino/inbox-verifier/internal/models"
)

// Result maps system machine names to detection state and evidence lines.
type Result struct {
	Detected map[string]bool
	Evidence map[string][]string
}

// metaChars are the characters that make a pattern a regex candidate.
// Patterns without any of them are matched as plain substrings.
const metaChars = `\.+*?()|[]{}^$`

// Analyze evaluates every active system's patterns against the header text.
// All systems are checked against the same text; headers frequently carry
// markers of several intermediate systems at once. Empty header text yields
// an empty result and never fails.
func Analyze(rawHeaders string, systems []models.AntispamSystem) Result {
	res := Result{
		Detected: make(map[string]bool),
		Evidence: make(map[string][]string),
	}
	if rawHeaders == "" {
		return res
	}

	lines := strings.Split(strings.ReplaceAll(rawHeaders, "\r\n", "\n"), "\n")

	for _, sys := range systems {
		if !sys.Active || len(sys.Patterns) == 0 {
			continue
		}
		matchers := make([]func(string) bool, 0, len(sys.Patterns))
		for _, pattern := range sys.Patterns {
			matchers = append(matchers, compileMatcher(pattern))
		}
		for _, line := range lines {
			if line == "" {
				continue
			}
			// A line counts once per system, no matter how many of the
			// system's patterns it satisfies.
			for _, matcher := range matchers {
				if matcher(line) {
					res.Detected[sys.Name] = true
					res.Evidence[sys.Name] = append(res.Evidence[sys.Name], strings.TrimSpace(line))
					break
				}
			}
		}
	}

	return res
}

// compileMatcher builds a case-insensitive line matcher for one pattern.
// Regex compilation failure falls back to literal substring search.
func compileMatcher(pattern string) func(string) bool {
	if strings.ContainsAny(pattern, metaChars) {
		re, err := regexp.Compile("(?i)" + pattern)
		if err == nil {
			return re.MatchString
		}
	}
	lower := strings.ToLower(pattern)
	return func(line string) bool {
		return strings.Contains(strings.ToLower(line), lower)
	}
}
