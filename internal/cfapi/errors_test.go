package cfapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestNewAPIError(t *testing.T) {
	e := newAPIError(403, []byte(`{"success":false,"errors":[{"code":10000,"message":"Authentication error"}]}`))
	if e.Message != "Authentication error" || e.Status != 403 {
		t.Fatalf("unexpected %+v", e)
	}
	if _, ok := e.Details.(json.RawMessage); !ok {
		t.Fatalf("details should keep the upstream json, got %T", e.Details)
	}
	e = newAPIError(502, []byte("bad gateway"))
	if e.Message != DefaultErrorMessage || e.Details != "bad gateway" {
		t.Fatalf("unexpected %+v", e)
	}
	e = newAPIError(400, []byte(`{"success":false,"errors":[]}`))
	if e.Message != DefaultErrorMessage {
		t.Fatalf("empty errors should use default message, got %q", e.Message)
	}
}

func TestStatusOf(t *testing.T) {
	if StatusOf(nil) != http.StatusOK {
		t.Fatalf("nil")
	}
	if got := StatusOf(fmt.Errorf("wrap: %w", &APIError{Status: 404})); got != 404 {
		t.Fatalf("api error status %d", got)
	}
	if got := StatusOf(&APIError{}); got != 500 {
		t.Fatalf("zero status should be 500, got %d", got)
	}
	if got := StatusOf(Credentials{}.Require(ScopeZone)); got != 400 {
		t.Fatalf("missing credentials %d", got)
	}
	if got := StatusOf(errors.New("boom")); got != 500 {
		t.Fatalf("plain error %d", got)
	}
}
