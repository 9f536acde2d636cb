package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// stubHandler is a simple handler that returns 200 OK.
var stubHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name        string
		allowed     []string
		method      string
		origin      string
		preflight   bool
		wantCode    int
		wantOrigin  string
		wantMethods bool
	}{
		{"disabled", nil, "GET", "https://app.example.com", false, 200, "", false},
		{"blank entries disabled", []string{" ", ""}, "GET", "https://app.example.com", false, 200, "", false},
		{"no origin header", []string{"https://app.example.com"}, "GET", "", false, 200, "", false},
		{"allowed", []string{"https://app.example.com"}, "GET", "https://app.example.com", false, 200, "https://app.example.com", false},
		{"case and slash insensitive", []string{"https://App.Example.com/"}, "GET", "https://app.example.com", false, 200, "https://app.example.com", false},
		{"disallowed", []string{"https://app.example.com"}, "GET", "https://evil.example", false, 200, "", false},
		{"second of many", []string{"https://one.example.com", "https://two.example.com"}, "POST", "https://two.example.com", false, 200, "https://two.example.com", false},
		{"wildcard", []string{"*"}, "GET", "https://anything.example.com", false, 200, "https://anything.example.com", false},
		{"preflight", []string{"https://app.example.com"}, "OPTIONS", "https://app.example.com", true, 204, "https://app.example.com", true},
		{"options without request method", []string{"https://app.example.com"}, "OPTIONS", "https://app.example.com", false, 200, "https://app.example.com", false},
		{"preflight from disallowed origin", []string{"https://app.example.com"}, "OPTIONS", "https://evil.example", true, 200, "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := corsMiddleware(tc.allowed)(stubHandler)

			req := httptest.NewRequest(tc.method, "/v1/projects", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			if tc.preflight {
				req.Header.Set("Access-Control-Request-Method", "DELETE")
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantCode)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tc.wantOrigin {
				t.Fatalf("Allow-Origin = %q, want %q", got, tc.wantOrigin)
			}
			gotMethods := w.Header().Get("Access-Control-Allow-Methods") != ""
			if gotMethods != tc.wantMethods {
				t.Fatalf("Allow-Methods present = %v, want %v", gotMethods, tc.wantMethods)
			}
			if tc.wantOrigin != "" && w.Header().Get("Vary") != "Origin" {
				t.Fatalf("Vary = %q, want Origin", w.Header().Get("Vary"))
			}
		})
	}
}

func TestCORS_PreflightThroughRoutes(t *testing.T) {
	h := newTestHarness(t, func(c *Config) { c.CORSAllowedOrigins = []string{"https://app.example.com"} })

	req, _ := http.NewRequest("OPTIONS", h.BaseURL+"/v1/issues/abc", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "DELETE")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("expected origin echoed, got %q", got)
	}
	if got := resp.Header.Get("Access-Control-Max-Age"); got != "600" {
		t.Fatalf("expected max age, got %q", got)
	}
}
