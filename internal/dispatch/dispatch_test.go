package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/relayhq/relay/internal/registry"
	"github.com/relayhq/relay/internal/script"
)

func webhookAutomation(name, path string, schema *registry.Schema) *registry.Automation {
	return &registry.Automation{
		Name:     name,
		Platform: registry.Platform{Kind: registry.KindWebhook, Target: path},
		Schema:   schema,
	}
}

func TestExecuteWebhookSuccess(t *testing.T) {
	var gotBody envelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if r.URL.Path != "/webhook/enrich-leads" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type = %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "success", "leads_found": 12}`))
	}))
	defer srv.Close()

	d := New(srv.URL, 5*time.Second, nil, nil)
	res := d.Execute(context.Background(), webhookAutomation("enrich_leads", "/webhook/enrich-leads", nil),
		"find leads", map[string]any{"count": 12})

	if res.Status != StatusSuccess {
		t.Fatalf("status = %v, message = %s", res.Status, res.Message)
	}
	if res.Data["leads_found"] != float64(12) {
		t.Errorf("leads_found = %v", res.Data["leads_found"])
	}
	if res.HTTPStatus != http.StatusOK {
		t.Errorf("http status = %d", res.HTTPStatus)
	}
	if gotBody.UserInput != "find leads" {
		t.Errorf("user_input = %q", gotBody.UserInput)
	}
	if gotBody.Timestamp == "" {
		t.Error("timestamp missing from envelope")
	}
	if _, err := time.Parse(time.RFC3339, gotBody.Timestamp); err != nil {
		t.Errorf("timestamp not RFC3339: %v", err)
	}
	if gotBody.Parameters["count"] != float64(12) {
		t.Errorf("parameters = %v", gotBody.Parameters)
	}
}

func TestExecuteWebhookHTTPErrorPreservesStatusCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := New(srv.URL, 5*time.Second, nil, nil)
	res := d.Execute(context.Background(), webhookAutomation("broken", "/webhook/broken", nil), "go", nil)

	if res.Status != StatusError {
		t.Fatalf("status = %v, want error", res.Status)
	}
	if res.HTTPStatus != http.StatusInternalServerError {
		t.Errorf("http status = %d, want 500", res.HTTPStatus)
	}
}

func TestExecuteWebhookNonJSONSuccessBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK, queued"))
	}))
	defer srv.Close()

	d := New(srv.URL, 5*time.Second, nil, nil)
	res := d.Execute(context.Background(), webhookAutomation("plain", "/webhook/plain", nil), "go", nil)

	if res.Status != StatusSuccess {
		t.Fatalf("status = %v", res.Status)
	}
	if res.Message != "OK, queued" {
		t.Errorf("message = %q", res.Message)
	}
	if res.Data != nil {
		t.Errorf("data = %v, want nil", res.Data)
	}
}

func TestExecuteTimeoutIsDistinct(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	d := New(srv.URL, 50*time.Millisecond, nil, nil)
	res := d.Execute(context.Background(), webhookAutomation("slow", "/webhook/slow", nil), "go", nil)

	if res.Status != StatusError {
		t.Fatalf("status = %v", res.Status)
	}
	if !errors.Is(res.Err, ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", res.Err)
	}
}

func TestExecuteValidationFailureIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "success"}`))
	}))
	defer srv.Close()

	schema := &registry.Schema{RequiredFields: []string{"status", "leads"}}
	d := New(srv.URL, 5*time.Second, nil, nil)
	res := d.Execute(context.Background(), webhookAutomation("strict", "/webhook/strict", schema), "go", nil)

	if res.Status != StatusError {
		t.Fatalf("status = %v, want error on schema violation", res.Status)
	}
}

func TestExecuteExternalWithoutEndpointIsConfigError(t *testing.T) {
	a := &registry.Automation{
		Name:     "crm",
		Platform: registry.Platform{Kind: registry.KindExternal},
	}
	d := New("http://localhost:9", 5*time.Second, nil, nil)
	res := d.Execute(context.Background(), a, "go", nil)

	if res.Status != StatusError {
		t.Fatalf("status = %v", res.Status)
	}
	if !errors.Is(res.Err, ErrNoEndpoint) {
		t.Errorf("err = %v, want ErrNoEndpoint", res.Err)
	}
}

func TestExecuteExternalUsesFullURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/hooks/relay" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	a := &registry.Automation{
		Name:     "crm",
		Platform: registry.Platform{Kind: registry.KindExternal, Target: srv.URL + "/hooks/relay"},
	}
	d := New("http://unused.example.com", 5*time.Second, nil, nil)
	res := d.Execute(context.Background(), a, "go", nil)

	if res.Status != StatusSuccess {
		t.Fatalf("status = %v, message = %s", res.Status, res.Message)
	}
}

func TestExecuteScript(t *testing.T) {
	dir := t.TempDir()
	scriptBody := `
function run(user_input, parameters)
  return { status = "success", echoed = user_input }
end
`
	if err := os.WriteFile(filepath.Join(dir, "greet.lua"), []byte(scriptBody), 0600); err != nil {
		t.Fatal(err)
	}

	a := &registry.Automation{
		Name:     "greet",
		Platform: registry.Platform{Kind: registry.KindScript, Target: "greet"},
	}
	d := New("", 5*time.Second, script.NewRunner(dir), nil)
	res := d.Execute(context.Background(), a, "hello", nil)

	if res.Status != StatusSuccess {
		t.Fatalf("status = %v, message = %s", res.Status, res.Message)
	}
	if res.Data["echoed"] != "hello" {
		t.Errorf("echoed = %v", res.Data["echoed"])
	}
}

func TestExecuteScriptFailureIsCaptured(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "boom.lua"),
		[]byte(`function run(u, p) error("no leads today") end`), 0600); err != nil {
		t.Fatal(err)
	}

	a := &registry.Automation{
		Name:     "boom",
		Platform: registry.Platform{Kind: registry.KindScript, Target: "boom"},
	}
	d := New("", 5*time.Second, script.NewRunner(dir), nil)
	res := d.Execute(context.Background(), a, "go", nil)

	if res.Status != StatusError {
		t.Fatalf("status = %v, want error", res.Status)
	}
	if res.Message == "" {
		t.Error("expected failure message")
	}
}

func TestExecuteScriptResultIsValidated(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "thin.lua"),
		[]byte(`function run(u, p) return { status = "success" } end`), 0600); err != nil {
		t.Fatal(err)
	}

	a := &registry.Automation{
		Name:     "thin",
		Platform: registry.Platform{Kind: registry.KindScript, Target: "thin"},
		Schema:   &registry.Schema{RequiredFields: []string{"status", "emails"}},
	}
	d := New("", 5*time.Second, script.NewRunner(dir), nil)
	res := d.Execute(context.Background(), a, "go", nil)

	if res.Status != StatusError {
		t.Fatalf("status = %v, want error on schema violation", res.Status)
	}
}
