package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/pagehealth/config"
	"github.com/use-agent/pagehealth/models"
	"github.com/use-agent/pagehealth/report"
)

func main() {
	apiURL := os.Getenv("PAGEHEALTH_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	// Optional: the server accepts anonymous calls when it has no keys.
	apiKey := os.Getenv("PAGEHEALTH_API_KEY")

	s := server.NewMCPServer(
		"pagehealth",
		config.Version,
		server.WithToolCapabilities(false),
	)

	analyzeTool := mcp.NewTool("analyze_page",
		mcp.WithDescription("Load a web page in a headless browser, take screenshots before and after scrolling, and report health issues: HTTP errors, error text on the page, and blank renders."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Absolute http(s) URL of the page to check"),
		),
		mcp.WithString("run_id",
			mcp.Description("Identifier for this run and its screenshot directory. A random id is generated when omitted."),
		),
	)
	timeout := clientTimeout(config.Load().Analyzer)
	s.AddTool(analyzeTool, handleAnalyzePage(strings.TrimRight(apiURL, "/"), apiKey, timeout))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// clientTimeout outlasts the server's worst-case run so a slow page
// yields its report instead of a client-side timeout.
func clientTimeout(a config.AnalyzerConfig) time.Duration {
	return a.RunTimeout() + 30*time.Second
}

// handleAnalyzePage forwards the call to POST /api/v1/run.
func handleAnalyzePage(apiURL, apiKey string, timeout time.Duration) server.ToolHandlerFunc {
	client := &http.Client{Timeout: timeout}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}
		runID := request.GetString("run_id", "")
		if runID == "" {
			runID = uuid.NewString()
		}

		body, err := json.Marshal(models.RunRequest{URL: url, RunID: runID})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal request: %v", err)), nil
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+"/api/v1/run", bytes.NewReader(body))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to create request: %v", err)), nil
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if apiKey != "" {
			httpReq.Header.Set("X-API-Key", apiKey)
		}

		resp, err := client.Do(httpReq)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("API request failed: %v", err)), nil
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read response: %v", err)), nil
		}

		if resp.StatusCode != http.StatusOK {
			var errResp models.ErrorResponse
			if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != nil {
				return mcp.NewToolResultError(fmt.Sprintf("[%s] %s", errResp.Error.Code, errResp.Error.Message)), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("API returned HTTP %d", resp.StatusCode)), nil
		}

		var an models.Analysis
		if err := json.Unmarshal(respBody, &an); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}

		var out bytes.Buffer
		if err := report.Render(&out, &an, report.FormatText); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to render report: %v", err)), nil
		}
		out.WriteString("\nScreenshots are served relative to " + apiURL + "\n")
		return mcp.NewToolResultText(out.String()), nil
	}
}
