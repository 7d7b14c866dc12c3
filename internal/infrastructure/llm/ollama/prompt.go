package ollama

import (
	"fmt"
	"strings"

	"github.com/olegkarev/testcase-search/internal/core/domain"
)

func buildEnrichmentPrompt(tc *domain.TestCase) string {
	const maxSnippet = 4000

	var text strings.Builder
	text.WriteString(tc.Description)
	if tc.Prerequisites != "" {
		text.WriteString("\nPrerequisites: ")
		text.WriteString(tc.Prerequisites)
	}
	for _, step := range tc.Steps {
		text.WriteString(fmt.Sprintf("\nStep %d: %s", step.Number, step.Action))
		if step.Expected != "" {
			text.WriteString(" -> ")
			text.WriteString(step.Expected)
		}
	}

	snippet := text.String()
	if len(snippet) > maxSnippet {
		snippet = snippet[:maxSnippet]
	}

	return `You are a QA test-case annotator.
Return strict JSON object with keys:
summary (one sentence, string), keywords (array of 3 to 8 short strings).
No markdown, no extra keys.

Test case:
` + snippet
}

func buildRerankPrompt(query string, results []domain.ScoredResult) string {
	var listing strings.Builder
	for idx, result := range results {
		listing.WriteString(fmt.Sprintf(
			"[%d] id=%s feature=%s score=%.3f\n%s\n\n",
			idx+1,
			result.Record.ID,
			result.Record.Feature,
			result.Score,
			result.Record.Description,
		))
	}

	return fmt.Sprintf(`Judge how well each test case matches the query.
Return strict JSON object: {"adjustments":[{"id":"...","delta":0.0}]}.
Delta is a score correction between -0.2 and 0.2, positive for better matches.
No markdown, no extra keys.

Query:
%s

Test cases:
%s`, query, listing.String())
}
