package capability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRemoteInvoke(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/invoke/director" {
			t.Errorf("path = %q, want /invoke/director", r.URL.Path)
		}
		w.Write([]byte(`{"artifacts": [{"kind": "specification", "content": "plan"}], "note": "planned"}`))
	}))
	defer server.Close()

	remote := NewRemote("director", server.URL, nil)
	result, err := remote.Invoke(context.Background(), &Request{
		Capability: "director",
		SessionID:  "s1",
		Stage:      "planning",
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if len(result.Artifacts) != 1 || result.Artifacts[0].Kind != "specification" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestRemoteInvokeStatusCodes(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantKind Kind
	}{
		{"rate limited", http.StatusTooManyRequests, KindToolUnavailable},
		{"server error", http.StatusInternalServerError, KindToolUnavailable},
		{"bad request", http.StatusBadRequest, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			remote := NewRemote("qa", server.URL, nil)
			_, err := remote.Invoke(context.Background(), &Request{Capability: "qa"})

			f, ok := AsFailure(err)
			if !ok {
				t.Fatalf("error is %T, want *Failure", err)
			}
			if f.Kind != tt.wantKind {
				t.Errorf("kind = %s, want %s", f.Kind, tt.wantKind)
			}
		})
	}
}

func TestRemoteInvokeConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse all connections

	remote := NewRemote("qa", server.URL, nil)
	_, err := remote.Invoke(context.Background(), &Request{Capability: "qa"})

	f, ok := AsFailure(err)
	if !ok {
		t.Fatalf("error is %T, want *Failure", err)
	}
	if f.Kind != KindToolUnavailable {
		t.Errorf("kind = %s, want %s", f.Kind, KindToolUnavailable)
	}
}

func TestRemoteWireFailurePassthrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error_kind": "validation_error", "diagnostic": "qa rejected: silhouette off"}`))
	}))
	defer server.Close()

	remote := NewRemote("qa", server.URL, nil)
	_, err := remote.Invoke(context.Background(), &Request{Capability: "qa"})

	f, ok := AsFailure(err)
	if !ok {
		t.Fatalf("error is %T, want *Failure", err)
	}
	if f.Kind != KindValidation {
		t.Errorf("kind = %s, want %s", f.Kind, KindValidation)
	}
}
