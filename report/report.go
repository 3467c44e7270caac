// Package report renders an Analysis for terminals and tool output.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/use-agent/pagehealth/models"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by Render.
const (
	FormatHuman = "human"
	FormatText  = "text"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// Render writes an in the given format. Unknown formats fall back to human.
func Render(w io.Writer, an *models.Analysis, format string) error {
	switch format {
	case FormatJSON:
		out, err := json.MarshalIndent(an, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(out))
		return err
	case FormatYAML:
		out, err := yaml.Marshal(an)
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	case FormatText:
		renderHuman(w, an, false)
	default:
		renderHuman(w, an, true)
	}
	return nil
}

// Healthy reports whether the run found nothing above low severity.
func Healthy(an *models.Analysis) bool {
	return an.CountSeverity(models.SeverityCritical)+
		an.CountSeverity(models.SeverityHigh)+
		an.CountSeverity(models.SeverityMedium) == 0
}

func renderHuman(w io.Writer, an *models.Analysis, colored bool) {
	paint := func(c *color.Color) *color.Color {
		if !colored {
			c.DisableColor()
		}
		return c
	}
	cyan := paint(color.New(color.FgCyan, color.Bold))
	green := paint(color.New(color.FgGreen, color.Bold))
	yellow := paint(color.New(color.FgYellow, color.Bold))
	dim := paint(color.New(color.FgHiBlack))

	cyan.Fprintf(w, "Run %s\n", an.RunID)
	fmt.Fprintf(w, "%s\n\n", an.Summary)

	if len(an.Steps) > 0 {
		cyan.Fprintln(w, "STEPS:")
		for i, s := range an.Steps {
			fmt.Fprintf(w, "  %d. %s: %s\n", i+1, s.Name, s.Description)
			if s.Notes != "" {
				dim.Fprintf(w, "     %s\n", s.Notes)
			}
			fmt.Fprintf(w, "     Screenshot: %s\n", s.Screenshot)
		}
		fmt.Fprintln(w)
	}

	if len(an.Issues) == 0 {
		green.Fprintln(w, "No issues found.")
		return
	}
	yellow.Fprintf(w, "ISSUES (%d):\n", len(an.Issues))
	for i, is := range an.Issues {
		sev := paint(severityColor(is.Severity))
		fmt.Fprintf(w, "  %d. %s %s\n", i+1, sev.Sprintf("[%s]", strings.ToUpper(string(is.Severity))), is.Title)
		if is.Details != "" {
			fmt.Fprintf(w, "     %s\n", is.Details)
		}
	}
}

func severityColor(sev models.Severity) *color.Color {
	switch sev {
	case models.SeverityCritical:
		return color.New(color.FgRed, color.Bold)
	case models.SeverityHigh:
		return color.New(color.FgRed)
	case models.SeverityMedium:
		return color.New(color.FgYellow)
	case models.SeverityLow:
		return color.New(color.FgGreen)
	default:
		return color.New(color.FgWhite)
	}
}
