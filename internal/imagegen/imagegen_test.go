package imagegen

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPGeneratorGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if in.Prompt != "a low-poly fox" {
			t.Errorf("prompt = %q", in.Prompt)
		}
		json.NewEncoder(w).Encode(map[string]string{"image_ref": "concept_images/fox.png"})
	}))
	defer server.Close()

	gen := NewHTTPGenerator(server.URL, nil)
	ref, err := gen.Generate(context.Background(), "a low-poly fox")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if ref != "concept_images/fox.png" {
		t.Errorf("ref = %q", ref)
	}
}

func TestHTTPGeneratorErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "empty ref",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"image_ref": ""}`))
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("not json"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			gen := NewHTTPGenerator(server.URL, nil)
			if _, err := gen.Generate(context.Background(), "prompt"); err == nil {
				t.Error("Generate() succeeded, want error")
			}
		})
	}
}

func TestStub(t *testing.T) {
	stub := NewStub()
	stub.QueueRef("concept_images/a.png")

	ref, err := stub.Generate(context.Background(), "first")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if ref != "concept_images/a.png" {
		t.Errorf("ref = %q", ref)
	}

	// Unqueued calls still return a usable ref.
	ref, err = stub.Generate(context.Background(), "second")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if ref == "" {
		t.Error("empty fallback ref")
	}

	if len(stub.Prompts) != 2 || stub.Prompts[1] != "second" {
		t.Errorf("prompts = %v", stub.Prompts)
	}

	stub.SetErr(errors.New("backend down"))
	if _, err := stub.Generate(context.Background(), "third"); err == nil {
		t.Error("Generate() succeeded after SetErr")
	}
}
