package analyzer

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/pagehealth/models"
)

// ErrorMarkers are substrings whose presence in the DOM suggests an error page.
// Matching is case-sensitive.
var ErrorMarkers = []string{
	"404",
	"Not Found",
	"500",
	"Error",
	"Exception",
	"Bad Gateway",
	"Gateway Timeout",
}

// CheckResponse applies the status and marker heuristics. The status check
// wins: markers are only consulted when the status is unknown (0) or below 400.
// It returns nil when neither fires.
func CheckResponse(status int, content string) *models.Issue {
	if status >= 400 {
		return &models.Issue{
			Severity: models.SeverityCritical,
			Title:    fmt.Sprintf("HTTP %d", status),
			Details:  "Page responded with HTTP error",
		}
	}
	if ContainsMarker(content) {
		return &models.Issue{
			Severity: models.SeverityHigh,
			Title:    TitleErrorMarker,
			Details:  "Page contains common error keywords",
		}
	}
	return nil
}

// ContainsMarker reports whether content holds any of ErrorMarkers.
func ContainsMarker(content string) bool {
	for _, m := range ErrorMarkers {
		if strings.Contains(content, m) {
			return true
		}
	}
	return false
}

// pageNotes describes the loaded document for the Initial Load step.
func pageNotes(content string) string {
	if content == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return ""
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		return ""
	}
	return fmt.Sprintf("Page title: %q", title)
}
