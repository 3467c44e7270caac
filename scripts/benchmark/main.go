package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/pagehealth/config"
	"github.com/use-agent/pagehealth/models"
)

// CLI flags
var (
	apiURL = flag.String("api-url", "http://localhost:8080", "pagehealth API base URL")
	apiKey = flag.String("api-key", "", "API key for authenticated requests")
	runs   = flag.Int("runs", 3, "Number of runs per URL for averaging")
	output = flag.String("output", "benchmark-results.json", "JSON output file path")
)

// Pages with known behaviour: healthy, HTTP error, heavy.
var testURLs = []struct {
	Label string
	URL   string
}{
	{"Static", "https://example.com"},
	{"Missing", "https://example.com/definitely-missing-page"},
	{"Docs", "https://go.dev/doc/effective_go"},
	{"News", "https://www.bbc.com/news"},
	{"Complex", "https://github.com/go-rod/rod"},
}

type runResult struct {
	Run         int      `json:"run"`
	RunID       string   `json:"run_id"`
	TotalMs     int64    `json:"total_ms"`
	HTTPStatus  int      `json:"http_status"`
	Steps       int      `json:"steps"`
	Screenshots int      `json:"screenshots"`
	Issues      []string `json:"issues"`
	Summary     string   `json:"summary"`
	Success     bool     `json:"success"`
	Error       string   `json:"error,omitempty"`
}

type urlResult struct {
	URL       string      `json:"url"`
	Label     string      `json:"label"`
	Runs      []runResult `json:"runs"`
	AvgMs     float64     `json:"avg_ms"`
	Completed int         `json:"completed"`
}

type benchmarkReport struct {
	Timestamp  string      `json:"timestamp"`
	APIURL     string      `json:"api_url"`
	RunsPerURL int         `json:"runs_per_url"`
	Results    []urlResult `json:"results"`
}

func main() {
	flag.Parse()

	fmt.Println("=== pagehealth benchmark ===")
	fmt.Printf("API URL:   %s\n", *apiURL)
	fmt.Printf("Runs/URL:  %d\n", *runs)
	fmt.Printf("Output:    %s\n", *output)
	fmt.Println()

	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		os.Exit(1)
	}

	report := benchmarkReport{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		APIURL:     *apiURL,
		RunsPerURL: *runs,
	}

	for _, t := range testURLs {
		fmt.Printf("Benchmarking [%s] %s ...\n", t.Label, t.URL)
		ur := urlResult{URL: t.URL, Label: t.Label}

		var sum int64
		for i := 1; i <= *runs; i++ {
			fmt.Printf("  Run %d/%d ... ", i, *runs)
			rr := benchmarkURL(t.URL, i)
			if rr.Success {
				fmt.Printf("OK  %dms  %d issue(s)\n", rr.TotalMs, len(rr.Issues))
				sum += rr.TotalMs
				ur.Completed++
			} else {
				fmt.Printf("FAILED: %s\n", rr.Error)
			}
			ur.Runs = append(ur.Runs, rr)
		}
		if ur.Completed > 0 {
			ur.AvgMs = float64(sum) / float64(ur.Completed)
		}
		report.Results = append(report.Results, ur)
		fmt.Println()
	}

	printTable(report.Results)

	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func checkAPI(baseURL string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL + "/api/v1/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func benchmarkURL(url string, run int) runResult {
	rr := runResult{Run: run, RunID: "bench-" + uuid.NewString()}

	body, err := json.Marshal(models.RunRequest{URL: url, RunID: rr.RunID})
	if err != nil {
		rr.Error = fmt.Sprintf("marshal error: %v", err)
		return rr
	}

	req, err := http.NewRequest(http.MethodPost, *apiURL+"/api/v1/run", bytes.NewReader(body))
	if err != nil {
		rr.Error = fmt.Sprintf("request error: %v", err)
		return rr
	}
	req.Header.Set("Content-Type", "application/json")
	if *apiKey != "" {
		req.Header.Set("X-API-Key", *apiKey)
	}

	client := &http.Client{Timeout: config.Load().Analyzer.RunTimeout() + 30*time.Second}
	start := time.Now()
	resp, err := client.Do(req)
	rr.TotalMs = time.Since(start).Milliseconds()
	if err != nil {
		rr.Error = fmt.Sprintf("http error: %v", err)
		return rr
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		rr.Error = fmt.Sprintf("API returned HTTP %d", resp.StatusCode)
		return rr
	}

	var an models.Analysis
	if err := json.NewDecoder(resp.Body).Decode(&an); err != nil {
		rr.Error = fmt.Sprintf("decode error: %v", err)
		return rr
	}

	rr.Success = true
	rr.Steps = len(an.Steps)
	rr.Screenshots = len(an.Screenshots)
	rr.Summary = an.Summary
	rr.Issues = make([]string, 0, len(an.Issues))
	for _, is := range an.Issues {
		rr.Issues = append(rr.Issues, fmt.Sprintf("%s: %s", is.Severity, is.Title))
		var code int
		if _, err := fmt.Sscanf(is.Title, "HTTP %d", &code); err == nil {
			rr.HTTPStatus = code
		}
	}
	return rr
}

func printTable(results []urlResult) {
	fmt.Println(strings.Repeat("─", 85))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "URL\tAvg Latency\tCompleted\tIssues (last run)\n")
	fmt.Fprintf(w, "───\t───────────\t─────────\t─────────────────\n")

	for _, r := range results {
		if r.Completed == 0 {
			fmt.Fprintf(w, "%s\tFAILED\t0/%d\t-\n", truncateURL(r.URL, 40), len(r.Runs))
			continue
		}
		last := r.Runs[len(r.Runs)-1]
		issues := "none"
		if len(last.Issues) > 0 {
			issues = strings.Join(last.Issues, "; ")
		}
		fmt.Fprintf(w, "%s\t%dms\t%d/%d\t%s\n",
			truncateURL(r.URL, 40),
			int64(r.AvgMs),
			r.Completed, len(r.Runs),
			issues,
		)
	}

	w.Flush()
	fmt.Println(strings.Repeat("─", 85))
}

func truncateURL(u string, max int) string {
	if len(u) <= max {
		return u
	}
	return u[:max-3] + "..."
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
