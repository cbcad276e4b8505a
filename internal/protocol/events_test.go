package protocol

import "testing"

func mustDoc(t *testing.T, s string) Document {
	t.Helper()
	doc, err := DecodeDocument([]byte(s))
	if err != nil {
		t.Fatalf("decode %s: %v", s, err)
	}
	return doc
}

func TestEventKindAndTerminal(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		kind     string
		terminal bool
	}{
		{"message", `{"kind":"message","role":"agent","parts":[]}`, KindMessage, true},
		{"task working", `{"kind":"task","id":"t","status":{"state":"working"}}`, KindTask, false},
		{"task completed", `{"kind":"task","id":"t","status":{"state":"completed"}}`, KindTask, true},
		{"task input-required", `{"kind":"task","id":"t","status":{"state":"input-required"}}`, KindTask, true},
		{"status working", `{"kind":"status-update","final":false,"status":{"state":"working"}}`, KindStatusUpdate, false},
		{"status final flag", `{"kind":"status-update","final":true,"status":{"state":"working"}}`, KindStatusUpdate, true},
		{"status failed", `{"kind":"status-update","status":{"state":"failed"}}`, KindStatusUpdate, true},
		{"artifact", `{"kind":"artifact-update","artifact":{"parts":[]}}`, KindArtifactUpdate, false},
		{"legacy message shape", `{"role":"agent","parts":[{"type":"text","text":"hi"}]}`, KindMessage, true},
		{"legacy status shape", `{"id":"t","status":{"state":"completed"},"final":true}`, KindStatusUpdate, true},
		{"legacy task shape", `{"id":"t","status":{"state":"submitted"}}`, KindTask, false},
		{"unknown", `{"foo":1}`, "", false},
		{"malformed status", `{"kind":"task","status":"done"}`, KindTask, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := mustDoc(t, tt.doc)
			if got := EventKind(doc); got != tt.kind {
				t.Errorf("EventKind = %q, want %q", got, tt.kind)
			}
			if got := IsTerminal(doc); got != tt.terminal {
				t.Errorf("IsTerminal = %v, want %v", got, tt.terminal)
			}
		})
	}
}
