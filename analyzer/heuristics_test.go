package analyzer

import (
	"testing"

	"github.com/use-agent/pagehealth/models"
)

func TestCheckResponse(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		content string
		want    string // "" means no issue
		sev     models.Severity
	}{
		{"ok clean", 200, "<p>hello</p>", "", ""},
		{"unknown status clean", 0, "<p>hello</p>", "", ""},
		{"404 with marker", 404, "Not Found", "HTTP 404", models.SeverityCritical},
		{"503 clean body", 503, "<p>later</p>", "HTTP 503", models.SeverityCritical},
		{"400 boundary", 400, "", "HTTP 400", models.SeverityCritical},
		{"399 below boundary", 399, "", "", ""},
		{"ok with 404 text", 200, "error code 404", TitleErrorMarker, models.SeverityHigh},
		{"unknown status with marker", 0, "Bad Gateway", TitleErrorMarker, models.SeverityHigh},
		{"exception text", 200, "Unhandled Exception", TitleErrorMarker, models.SeverityHigh},
		{"markers are case-sensitive", 200, "not found", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckResponse(tt.status, tt.content)
			if tt.want == "" {
				if got != nil {
					t.Fatalf("expected no issue, got %+v", got)
				}
				return
			}
			if got == nil {
				t.Fatalf("expected %q, got nil", tt.want)
			}
			if got.Title != tt.want || got.Severity != tt.sev {
				t.Errorf("got %s/%s, want %s/%s", got.Severity, got.Title, tt.sev, tt.want)
			}
		})
	}
}

func TestPageNotes(t *testing.T) {
	tests := []struct {
		content string
		want    string
	}{
		{"", ""},
		{"<html><head></head><body>x</body></html>", ""},
		{"<html><head><title>  Docs </title></head></html>", `Page title: "Docs"`},
	}
	for _, tt := range tests {
		if got := pageNotes(tt.content); got != tt.want {
			t.Errorf("pageNotes(%q) = %q, want %q", tt.content, got, tt.want)
		}
	}
}
