package capability

import (
	"strings"
	"testing"
)

func TestDecodeResult(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantKinds []string
		wantNote  string
	}{
		{
			name:      "clean result",
			raw:       `{"artifacts": [{"kind": "script", "content": "import bpy"}], "note": "done"}`,
			wantKinds: []string{"script"},
			wantNote:  "done",
		},
		{
			name: "fenced result",
			raw: "```json\n" +
				`{"artifacts": [{"kind": "specification", "content": "a cube"}]}` +
				"\n```",
			wantKinds: []string{"specification"},
		},
		{
			name:      "trailing comma repaired",
			raw:       `{"artifacts": [{"kind": "script", "content": "import bpy"},], "note": "ok",}`,
			wantKinds: []string{"script"},
			wantNote:  "ok",
		},
		{
			name: "empty document",
			raw:  "   ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := DecodeResult("director", tt.raw)
			if err != nil {
				t.Fatalf("DecodeResult() error = %v", err)
			}
			if len(result.Artifacts) != len(tt.wantKinds) {
				t.Fatalf("got %d artifacts, want %d", len(result.Artifacts), len(tt.wantKinds))
			}
			for i, kind := range tt.wantKinds {
				if result.Artifacts[i].Kind != kind {
					t.Errorf("artifact %d kind = %q, want %q", i, result.Artifacts[i].Kind, kind)
				}
			}
			if result.Note != tt.wantNote {
				t.Errorf("note = %q, want %q", result.Note, tt.wantNote)
			}
		})
	}
}

func TestDecodeResultWireError(t *testing.T) {
	raw := `{"error_kind": "syntax_error", "diagnostic": "SyntaxError: invalid syntax"}`

	_, err := DecodeResult("modeling", raw)
	if err == nil {
		t.Fatal("expected an error for a wire error document")
	}

	f, ok := AsFailure(err)
	if !ok {
		t.Fatalf("error is %T, want *Failure", err)
	}
	if f.Kind != KindSyntax {
		t.Errorf("kind = %s, want %s", f.Kind, KindSyntax)
	}
	if f.Capability != "modeling" {
		t.Errorf("capability = %q, want %q", f.Capability, "modeling")
	}
	if !strings.Contains(f.Diagnostic, "SyntaxError") {
		t.Errorf("diagnostic lost: %q", f.Diagnostic)
	}
}

func TestDecodeResultUnknownWireKind(t *testing.T) {
	raw := `{"error_kind": "exploded", "diagnostic": "boom"}`

	_, err := DecodeResult("qa", raw)
	f, ok := AsFailure(err)
	if !ok {
		t.Fatalf("error is %T, want *Failure", err)
	}
	if f.Kind != KindUnknown {
		t.Errorf("kind = %s, want %s", f.Kind, KindUnknown)
	}
}

func TestStripFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fence", `{"a": 1}`, `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripFence(tt.in); got != tt.want {
				t.Errorf("stripFence(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
