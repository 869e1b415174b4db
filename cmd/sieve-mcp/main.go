package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/use-agent/sieve/models"
)

func main() {
	apiURL := os.Getenv("SIEVE_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}

	s := server.NewMCPServer(
		"sieve",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	scrapeURLTool := mcp.NewTool("scrape_url",
		mcp.WithDescription("Fetch a web page politely (robots.txt, per-site rate limits, retries) and return its cleaned main content. Falls back to a basic refetch or the Wayback Machine when the page cannot be extracted."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the web page to scrape"),
		),
		mcp.WithString("extraction_mode",
			mcp.Description("Extraction mode: 'auto' (default), 'article' (main article), 'custom' (CSS selector) or 'structured' (JSON-LD and Open Graph)"),
			mcp.Enum("auto", "article", "custom", "structured"),
		),
		mcp.WithString("selector",
			mcp.Description("CSS selector, required for 'custom' mode"),
		),
		mcp.WithString("fallback_strategy",
			mcp.Description("Recovery when the page cannot be scraped: 'basic' (default), 'wayback', 'headless' or 'none'"),
			mcp.Enum("basic", "wayback", "headless", "none"),
		),
		mcp.WithBoolean("markdown",
			mcp.Description("Also return the content rendered as Markdown"),
		),
	)
	s.AddTool(scrapeURLTool, handleScrapeURL(apiURL))

	batchScrapeTool := mcp.NewTool("batch_scrape",
		mcp.WithDescription("Scrape up to 100 URLs with the same options and return the cleaned content for each, in order."),
		mcp.WithArray("urls",
			mcp.Required(),
			mcp.Description("List of URLs to scrape"),
		),
		mcp.WithString("extraction_mode",
			mcp.Description("Extraction mode: 'auto' (default), 'article' or 'structured'"),
			mcp.Enum("auto", "article", "structured"),
		),
	)
	s.AddTool(batchScrapeTool, handleBatchScrape(apiURL))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// apiPost sends a POST request to the sieve API and returns the response body.
func apiPost(ctx context.Context, client *http.Client, apiURL, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

func handleScrapeURL(apiURL string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 120 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		payload := models.ScrapeRequest{
			URL:            url,
			ExtractionMode: models.ExtractionMode(request.GetString("extraction_mode", "")),
			Selector:       request.GetString("selector", ""),
			ErrorHandling: models.ErrorHandling{
				FallbackStrategy: models.FallbackStrategy(request.GetString("fallback_strategy", "")),
			},
			Content: models.ContentOptions{Markdown: request.GetBool("markdown", false)},
		}

		respBody, err := apiPost(ctx, client, apiURL, "/api/v1/scrape", payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("scrape request failed: %v", err)), nil
		}

		var res models.ScrapeResult
		if err := json.Unmarshal(respBody, &res); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if !res.Success {
			return mcp.NewToolResultError(formatFailure(&res)), nil
		}
		return mcp.NewToolResultText(formatResult(&res)), nil
	}
}

func handleBatchScrape(apiURL string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 600 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		urls, err := request.RequireStringSlice("urls")
		if err != nil {
			return mcp.NewToolResultError("urls is required and must be an array of strings"), nil
		}

		payload := models.BatchRequest{
			URLs: urls,
			Options: models.ScrapeRequest{
				ExtractionMode: models.ExtractionMode(request.GetString("extraction_mode", "")),
			},
		}

		respBody, err := apiPost(ctx, client, apiURL, "/api/v1/batch/scrape", payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("batch request failed: %v", err)), nil
		}

		var batch models.BatchResponse
		if err := json.Unmarshal(respBody, &batch); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse batch response: %v", err)), nil
		}
		if len(batch.Results) == 0 {
			return mcp.NewToolResultError("batch request was rejected: " + string(respBody)), nil
		}
		return mcp.NewToolResultText(formatBatch(&batch)), nil
	}
}
