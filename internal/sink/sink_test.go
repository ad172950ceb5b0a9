package sink

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tma_demo_bot/internal/config"
)

func TestSheetsAppendPostsRow(t *testing.T) {
	var gotPath, gotQuery string
	var gotBody appendRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotQuery = r.URL.RawQuery
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected json content type, got %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"updates":{"updatedRows":1}}`))
	}))
	defer server.Close()

	s := newSheets(server.Client(), server.URL+"/", "sheet-1", "Metrics!A:Z")
	row := []string{"2026-10-18T00:00:00Z", "online", "7"}

	if err := s.Append(context.Background(), row); err != nil {
		t.Fatalf("append: %v", err)
	}

	if gotPath != "/v4/spreadsheets/sheet-1/values/Metrics%21A:Z:append" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotQuery != "valueInputOption=RAW" {
		t.Fatalf("unexpected query %q", gotQuery)
	}
	if len(gotBody.Values) != 1 || strings.Join(gotBody.Values[0], ",") != strings.Join(row, ",") {
		t.Fatalf("unexpected body %+v", gotBody)
	}
}

func TestSheetsAppendReportsStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"status":"PERMISSION_DENIED"}}`))
	}))
	defer server.Close()

	s := newSheets(server.Client(), server.URL, "sheet-1", "Metrics!A:Z")

	err := s.Append(context.Background(), []string{"x"})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", statusErr.StatusCode)
	}
	if !strings.Contains(statusErr.Error(), "PERMISSION_DENIED") {
		t.Fatalf("expected body detail in error, got %q", statusErr.Error())
	}
}

func TestSheetsAppendRequiresInitialization(t *testing.T) {
	var s *Sheets
	if err := s.Append(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil sink")
	}
}

func TestNewSheetsRequiresCredentials(t *testing.T) {
	if _, err := NewSheets(context.Background(), config.Config{}); err == nil {
		t.Fatalf("expected error without credentials")
	}
}

func TestNopDiscardsRows(t *testing.T) {
	if err := (Nop{}).Append(context.Background(), []string{"x"}); err != nil {
		t.Fatalf("expected nop sink to accept rows, got %v", err)
	}
}
