// Package sink appends metrics rows to an external spreadsheet.
package sink

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

	"golang.org/x/oauth2/jwt"

	"tma_demo_bot/internal/config"
)

const (
	defaultBaseURL = "https://sheets.googleapis.com"
	googleTokenURL = "https://oauth2.googleapis.com/token"
	sheetsScope    = "https://www.googleapis.com/auth/spreadsheets"

	maxErrorBody = 512
)

// Sink accepts one row of cells per call.
type Sink interface {
	Append(ctx context.Context, row []string) error
}

// Nop discards rows. It is used when the spreadsheet is not configured.
type Nop struct{}

func (Nop) Append(context.Context, []string) error { return nil }

// Sheets appends rows through the Google Sheets values.append API.
type Sheets struct {
	client     *http.Client
	baseURL    string
	sheetID    string
	sheetRange string
}

// NewSheets builds a Sheets sink authenticated with the service account from
// cfg. The returned client refreshes its token on demand.
func NewSheets(ctx context.Context, cfg config.Config) (*Sheets, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if !cfg.SheetsConfigured() {
		return nil, errors.New("google sheets credentials are not configured")
	}

	jwtConfig := &jwt.Config{
		Email:      cfg.GoogleClientEmail,
		PrivateKey: []byte(cfg.GooglePrivateKey),
		Scopes:     []string{sheetsScope},
		TokenURL:   googleTokenURL,
	}

	return newSheets(jwtConfig.Client(ctx), defaultBaseURL, cfg.GoogleSheetID, cfg.GoogleSheetRange), nil
}

func newSheets(client *http.Client, baseURL, sheetID, sheetRange string) *Sheets {
	return &Sheets{
		client:     client,
		baseURL:    strings.TrimRight(baseURL, "/"),
		sheetID:    sheetID,
		sheetRange: sheetRange,
	}
}

type appendRequest struct {
	Values [][]string `json:"values"`
}

// Append posts row as a single RAW row.
func (s *Sheets) Append(ctx context.Context, row []string) error {
	if s == nil || s.client == nil {
		return errors.New("sheets sink is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	body, err := json.Marshal(appendRequest{Values: [][]string{row}})
	if err != nil {
		return fmt.Errorf("encode sheet row: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s:append?valueInputOption=RAW",
		s.baseURL, url.PathEscape(s.sheetID), url.PathEscape(s.sheetRange))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sheets request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("append sheet row: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(detail))}
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// StatusError reports a non-success response from the Sheets API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("google sheets api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("google sheets api error: status %d: %s", e.StatusCode, e.Body)
}
