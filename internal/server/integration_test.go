//go:build integration

// Integration test against a running server: go run ./cmd/chronomaps
//
// Run: go test -tags=integration ./internal/server/
package server_test

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"testing"
)

func baseURL() string {
	if u := os.Getenv("CHRONOMAPS_BASE_URL"); u != "" {
		return u
	}
	return "http://localhost:8086"
}

func getJSON(t *testing.T, path string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(baseURL() + path)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatal(err)
		}
	}
	return resp
}

func TestHealth(t *testing.T) {
	var body struct {
		Status string `json:"status"`
	}
	getJSON(t, "/health", &body)
	if body.Status != "ok" {
		t.Fatalf("status=%q, want ok", body.Status)
	}
}

func TestGetInfo(t *testing.T) {
	var body struct {
		Name string `json:"name"`
	}
	getJSON(t, "/api/v1/info", &body)
	if body.Name != "chronomaps" {
		t.Fatalf("name=%q, want chronomaps", body.Name)
	}
}

func TestChronomapCRUD(t *testing.T) {
	payload := `{"slug":"integration_test","title":"Integration Test","databaseId":1}`
	resp, err := http.Post(baseURL()+"/api/v1/chronomaps", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatal("create:", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create status=%d", resp.StatusCode)
	}

	var m struct {
		Title string `json:"title"`
	}
	getJSON(t, "/api/v1/chronomaps/integration_test", &m)
	if m.Title != "Integration Test" {
		t.Fatalf("title=%q, want Integration Test", m.Title)
	}

	req, _ := http.NewRequest(http.MethodDelete, baseURL()+"/api/v1/chronomaps/integration_test", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal("delete:", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status=%d", resp.StatusCode)
	}
}

func TestGeoDecode(t *testing.T) {
	var body struct {
		Valid bool `json:"valid"`
	}
	getJSON(t, "/api/v1/geo/decode?view=%234%2F10%2F20", &body)
	if !body.Valid {
		t.Fatal("expected a camera")
	}
}
