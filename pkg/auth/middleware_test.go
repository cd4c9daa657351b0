package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/quillgate/quillgate/pkg/api"
)

func protectedHandler(t *testing.T, gotSubject *string) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := IdentityFromContext(r.Context()); id != nil {
			*gotSubject = id.Subject
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareAcceptsAndInjectsIdentity(t *testing.T) {
	chain := &Chain{Authenticators: []Authenticator{
		&voteAuthn{result: Result{Decision: Accept, Identity: &Identity{Subject: "alice"}}},
	}}

	var subject string
	handler := Middleware(chain, nil, nil)(protectedHandler(t, &subject))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/generate", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if subject != "alice" {
		t.Errorf("subject = %q, want %q", subject, "alice")
	}
}

func TestMiddlewareRejectsWith401(t *testing.T) {
	chain := &Chain{Authenticators: []Authenticator{
		&voteAuthn{result: Result{Decision: Reject, Err: ErrUnauthenticated}},
	}}

	var subject string
	handler := Middleware(chain, nil, nil)(protectedHandler(t, &subject))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/generate", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if subject != "" {
		t.Errorf("handler ran for rejected request, subject = %q", subject)
	}

	var envelope struct {
		Error *api.Error `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decoding error envelope: %v", err)
	}
	if envelope.Error == nil || envelope.Error.Kind != api.ErrorKindAuthentication {
		t.Errorf("error = %+v, want kind=authentication_error", envelope.Error)
	}
}

func TestMiddlewareRejectsEmptySubject(t *testing.T) {
	chain := &Chain{Authenticators: []Authenticator{
		&voteAuthn{result: Result{Decision: Accept, Identity: &Identity{}}},
	}}

	handler := Middleware(chain, nil, nil)(http.NotFoundHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/generate", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestMiddlewareBypassPaths(t *testing.T) {
	chain := &Chain{Authenticators: []Authenticator{
		&voteAuthn{result: Result{Decision: Reject, Err: ErrUnauthenticated}},
	}}

	handler := Middleware(chain, nil, DefaultBypassPaths)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	for _, path := range []string{"/healthz", "/metrics"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200 without credentials", path, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/generate", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("POST /v1/generate = %d, want 401", rec.Code)
	}
}
