package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"wingobot/internal/game"
	logx "wingobot/pkg/logx"
)

func TestRecentMapsRecords(t *testing.T) {
	t.Parallel()

	var gotID, gotCount string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/game/recordsAsFast" {
			http.NotFound(w, r)
			return
		}
		gotID = r.URL.Query().Get("id")
		gotCount = r.URL.Query().Get("count")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"success": true,
			"data": [
				{"issueNumber": "1205", "colorType": 1, "sizeType": 2, "createdTime": 1700000000000},
				{"issueNumber": "1204", "colorType": 2, "sizeType": 0, "createdTime": 1699999940000},
				{"issueNumber": "1203", "colorType": 0, "sizeType": 0, "createdTime": 1699999880000}
			]
		}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, logx.Logger{})
	out, err := c.Recent(context.Background(), game.Cat30Sec, 5)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}

	if gotID != "4" {
		t.Fatalf("game id = %s, want 4 (30s)", gotID)
	}
	if gotCount != "5" {
		t.Fatalf("count = %s, want 5", gotCount)
	}

	// The record with neither color nor size is dropped.
	if len(out) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(out))
	}

	first := out[0]
	if first.Period != 1205 {
		t.Fatalf("Period = %d, want 1205", first.Period)
	}
	// Size overrides color as headline result.
	if first.Result != game.Small || first.Color != game.Red || first.Size != game.Small {
		t.Fatalf("mapped = %s/%s/%s, want SMALL/RED/SMALL", first.Result, first.Color, first.Size)
	}

	second := out[1]
	if second.Result != game.Green || second.Size != "" {
		t.Fatalf("mapped = %s/%s, want GREEN result with empty size", second.Result, second.Size)
	}
}

func TestRecentUpstreamFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, logx.Logger{})
	if _, err := c.Recent(context.Background(), game.Cat1Min, 1); err == nil {
		t.Fatal("expected error on non-200 response")
	}
}

func TestRecentSuccessFalse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success": false, "data": []}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, logx.Logger{})
	if _, err := c.Recent(context.Background(), game.Cat1Min, 1); err == nil {
		t.Fatal("expected error on success=false")
	}
}

func TestNextPeriod(t *testing.T) {
	t.Parallel()

	empty := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if empty {
			_, _ = w.Write([]byte(`{"success": true, "data": []}`))
			return
		}
		_, _ = w.Write([]byte(`{"success": true, "data": [{"issueNumber": 1500, "colorType": 1}]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, logx.Logger{})
	p, err := c.NextPeriod(context.Background(), game.Cat1Min)
	if err != nil {
		t.Fatalf("NextPeriod: %v", err)
	}
	if p != 1501 {
		t.Fatalf("NextPeriod = %d, want 1501", p)
	}

	empty = true
	p, err = c.NextPeriod(context.Background(), game.Cat1Min)
	if err != nil {
		t.Fatalf("NextPeriod (empty): %v", err)
	}
	if p != 1000 {
		t.Fatalf("NextPeriod (empty feed) = %d, want 1000", p)
	}
}
