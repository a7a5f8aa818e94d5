package driver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPTool_CallGETReturnsStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Test", "yes")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	tool := NewHTTPTool()
	out, err := tool.Call(context.Background(), map[string]interface{}{"url": srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["status_code"] != http.StatusOK {
		t.Errorf("status_code = %v, want %d", out["status_code"], http.StatusOK)
	}
	if out["body"] != "hello" {
		t.Errorf("body = %v, want %q", out["body"], "hello")
	}
}

func TestHTTPTool_CallRejectsMissingURL(t *testing.T) {
	tool := NewHTTPTool()
	if _, err := tool.Call(context.Background(), map[string]interface{}{}); err == nil {
		t.Error("expected an error for a missing url parameter")
	}
}

func TestHTTPTool_CallRejectsUnsupportedMethod(t *testing.T) {
	tool := NewHTTPTool()
	_, err := tool.Call(context.Background(), map[string]interface{}{"url": "http://example.com", "method": "DELETE"})
	if err == nil {
		t.Error("expected an error for an unsupported HTTP method")
	}
}
