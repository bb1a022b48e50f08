// Package sheets appends rows to a Google Sheets spreadsheet through the
// values:append REST endpoint, authenticated with an API key.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://sheets.googleapis.com/v4"
	defaultRange   = "Sheet1"
	defaultTimeout = 15 * time.Second
)

var ErrMissingAPIKey = errors.New("sheets: API key is not set")

// APIError is a non-2xx answer from the Sheets API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sheets API error (%d): %s", e.Status, e.Message)
}

type Client struct {
	apiKey        string
	spreadsheetID string
	valueRange    string
	baseURL       string
	client        *http.Client
}

// NewClient creates a client appending to valueRange of the given spreadsheet.
func NewClient(apiKey, spreadsheetID, valueRange, baseURL string) *Client {
	if valueRange == "" {
		valueRange = defaultRange
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		apiKey:        strings.TrimSpace(apiKey),
		spreadsheetID: spreadsheetID,
		valueRange:    valueRange,
		baseURL:       strings.TrimRight(baseURL, "/"),
		client:        &http.Client{Timeout: defaultTimeout},
	}
}

type appendRequest struct {
	Values [][]string `json:"values"`
}

// AppendResult is the subset of the append response we report.
type AppendResult struct {
	SpreadsheetID string `json:"spreadsheetId"`
	TableRange    string `json:"tableRange"`
	Updates       struct {
		UpdatedRange string `json:"updatedRange"`
		UpdatedRows  int    `json:"updatedRows"`
	} `json:"updates"`
}

type sheetsError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// AppendRow appends one row of raw (unparsed) values after the last row of the range.
func (c *Client) AppendRow(ctx context.Context, values ...string) (*AppendResult, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	body, err := json.Marshal(appendRequest{Values: [][]string{values}})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	q := url.Values{}
	q.Set("valueInputOption", "RAW")
	q.Set("key", c.apiKey)
	endpoint := fmt.Sprintf("%s/spreadsheets/%s/values/%s:append?%s",
		c.baseURL, url.PathEscape(c.spreadsheetID), url.PathEscape(c.valueRange), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sheets request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(respBody)
		var errResp sheetsError
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			msg = errResp.Error.Message
		}
		return nil, &APIError{Status: resp.StatusCode, Message: msg}
	}

	var out AppendResult
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &out, nil
}
