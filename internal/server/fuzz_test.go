// internal/server/fuzz_test.go
package server

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/xkilldash9x/scalpel-driver/internal/command"
	"github.com/xkilldash9x/scalpel-driver/internal/config"
)

// FuzzRouter checks that no path, verb or body crashes the router and that
// every reply is a well-formed envelope. No session exists, so commands stop
// at the session lookup or at argument validation.
func FuzzRouter(f *testing.F) {
	f.Add("GET", "/status", "")
	f.Add("POST", "/session/x/element", `{"using":"css selector","value":"p"}`)
	f.Add("POST", "/session/x/frame", `{"id":{"ELEMENT":null}}`)
	f.Add("PATCH", "/session", `[`)
	f.Add("DELETE", "/session/x/cookie/%00", "null")
	f.Add("GET", "//..//status", "")

	cfg := config.NewDefaultConfig()
	srv := New(Options{Server: cfg.Server(), Session: cfg.Session()})

	f.Fuzz(func(t *testing.T, method, path, body string) {
		switch method {
		case http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodPut, http.MethodPatch:
		default:
			t.Skip()
		}
		// Session creation would need a launcher.
		if method == http.MethodPost && strings.TrimRight(path, "/") == "/session" {
			t.Skip()
		}
		if !strings.HasPrefix(path, "/") || strings.ContainsAny(path, " \r\n\t?#") {
			t.Skip()
		}
		if path == "/shutdown" || path == "/metrics" {
			t.Skip()
		}
		if _, err := url.ParseRequestURI(path); err != nil {
			t.Skip()
		}

		req := httptest.NewRequest(method, "http://driver.test"+path, strings.NewReader(body))
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		if rec.Code == http.StatusMovedPermanently {
			return
		}
		var resp wireResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%s %s: reply is not an envelope: %v\n%s", method, path, err, rec.Body.String())
		}
		if rec.Code == http.StatusOK {
			return
		}
		if resp.Status == command.Success.Code() {
			t.Fatalf("%s %s: HTTP %d with success status", method, path, rec.Code)
		}
	})
}
