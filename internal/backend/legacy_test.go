package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	inspectorerrors "github.com/hybroai/a2a-agent-inspector/internal/errors"
	"github.com/hybroai/a2a-agent-inspector/internal/protocol"
)

// ── Test helpers ──

func testOptions() Options {
	return Options{
		Timeout:      5 * time.Second,
		MaxCardSize:  64 * 1024,
		MaxEventSize: 64 * 1024,
	}
}

// decodeRPC reads the JSON-RPC request a fake agent received.
func decodeRPC(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var req map[string]any
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		t.Errorf("agent received malformed JSON-RPC request: %v", err)
	}
	return req
}

func rpcResult(id any, result string) string {
	idJSON, _ := json.Marshal(id)
	return fmt.Sprintf(`{"jsonrpc":"2.0","id":%s,"result":%s}`, idJSON, result)
}

func writeSSE(w http.ResponseWriter, events ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	for _, e := range events {
		fmt.Fprintf(w, "data: %s\n\n", e)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

type fakeVerifier struct {
	payload []byte
	err     error
	calls   int
}

func (f *fakeVerifier) Verify(_ context.Context, body []byte) ([]byte, bool, error) {
	f.calls++
	if f.err != nil {
		return nil, false, f.err
	}
	if f.payload != nil {
		return f.payload, true, nil
	}
	return body, false, nil
}

type denyAdmitter struct{ denied atomic.Int32 }

func (d *denyAdmitter) Check(_ context.Context, rawURL string) error {
	d.denied.Add(1)
	return fmt.Errorf("blocked: %s", rawURL)
}

// ── ResolveCard ──

func TestLegacyResolveCard_PrimaryPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/agent-card.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"name":"echo","version":"1.0"}`)
	}))
	defer srv.Close()

	card, err := NewLegacy(testOptions()).ResolveCard(context.Background(), srv.URL+"/")
	if err != nil {
		t.Fatalf("ResolveCard error: %v", err)
	}
	if protocol.CardName(card) != "echo" {
		t.Errorf("name = %v", card["name"])
	}
}

func TestLegacyResolveCard_FallsBackOn404(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/.well-known/agent.json" {
			io.WriteString(w, `{"name":"old-agent"}`)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	card, err := NewLegacy(testOptions()).ResolveCard(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("ResolveCard error: %v", err)
	}
	if protocol.CardName(card) != "old-agent" {
		t.Errorf("name = %v", card["name"])
	}
	if len(paths) != 2 {
		t.Errorf("requests = %v, want two paths tried", paths)
	}
}

func TestLegacyResolveCard_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{
			name:    "server error stops discovery",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) },
			want:    "HTTP 500",
		},
		{
			name:    "not found everywhere",
			handler: http.NotFound,
			want:    "HTTP 404",
		},
		{
			name:    "not an object",
			handler: func(w http.ResponseWriter, r *http.Request) { io.WriteString(w, `["a"]`) },
			want:    "malformed agent card",
		},
		{
			name: "too large",
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, `{"name":"`+strings.Repeat("a", 70*1024)+`"}`)
			},
			want: "exceeds",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewLegacy(testOptions()).ResolveCard(context.Background(), srv.URL)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestLegacyResolveCard_UsesVerifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "eyJhbGciOiJSUzI1NiJ9.e30.c2ln")
	}))
	defer srv.Close()

	opts := testOptions()
	v := &fakeVerifier{payload: []byte(`{"name":"signed"}`)}
	opts.Verifier = v

	card, err := NewLegacy(opts).ResolveCard(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("ResolveCard error: %v", err)
	}
	if v.calls != 1 {
		t.Errorf("verifier calls = %d, want 1", v.calls)
	}
	if protocol.CardName(card) != "signed" {
		t.Errorf("name = %v, want payload of the signed card", card["name"])
	}

	opts.Verifier = &fakeVerifier{err: errors.New("bad signature")}
	if _, err := NewLegacy(opts).ResolveCard(context.Background(), srv.URL); err == nil {
		t.Error("expected verification failure")
	}
}

func TestLegacyResolveCard_RedirectAdmission(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("redirect target must not be contacted")
	}))
	defer target.Close()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL+r.URL.Path, http.StatusFound)
	}))
	defer srv.Close()

	opts := testOptions()
	admit := &denyAdmitter{}
	opts.Admitter = admit

	_, err := NewLegacy(opts).ResolveCard(context.Background(), srv.URL)
	if err == nil || !strings.Contains(err.Error(), "redirect rejected") {
		t.Errorf("err = %v, want redirect rejection", err)
	}
	if admit.denied.Load() != 1 {
		t.Errorf("admitter calls = %d, want 1", admit.denied.Load())
	}
}

// ── SendUnary ──

func TestLegacySendUnary(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = decodeRPC(t, r)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, rpcResult(got["id"], `{"kind":"message","messageId":"r1","role":"agent","parts":[{"kind":"text","text":"pong"}]}`))
	}))
	defer srv.Close()

	card := protocol.Document{"url": srv.URL}
	msg := protocol.NewOutboundMessage("ping <b>&</b>", false)

	reply, err := NewLegacy(testOptions()).SendUnary(context.Background(), card, msg)
	if err != nil {
		t.Fatalf("SendUnary error: %v", err)
	}
	if reply["messageId"] != "r1" {
		t.Errorf("reply = %v", reply)
	}

	if got["jsonrpc"] != "2.0" || got["method"] != "message/send" {
		t.Errorf("request envelope = %v", got)
	}
	if id, _ := got["id"].(string); id == "" {
		t.Error("request must carry an id")
	}
	params := got["params"].(map[string]any)
	m := params["message"].(map[string]any)
	if m["role"] != "user" || m["messageId"] != msg.MessageID {
		t.Errorf("message = %v", m)
	}
	if _, ok := m["contextId"]; ok {
		t.Error("legacy generation must not send a contextId")
	}
	part := m["parts"].([]any)[0].(map[string]any)
	if part["text"] != "ping <b>&</b>" {
		t.Errorf("text = %q, want verbatim", part["text"])
	}
}

func TestLegacySendUnary_RemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRPC(t, r)
		idJSON, _ := json.Marshal(req["id"])
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":-32601,"message":"Method not found","data":{"m":"x"}}}`, idJSON)
	}))
	defer srv.Close()

	_, err := NewLegacy(testOptions()).SendUnary(context.Background(), protocol.Document{"url": srv.URL}, protocol.NewOutboundMessage("hi", false))
	var re *inspectorerrors.RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("err = %v, want RemoteError", err)
	}
	if re.Code != inspectorerrors.CodeMethodNotFound {
		t.Errorf("code = %d", re.Code)
	}
	if err.Error() != "MethodNotFound (-32601): Method not found" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestLegacySendUnary_TransportFaults(t *testing.T) {
	t.Run("no url", func(t *testing.T) {
		_, err := NewLegacy(testOptions()).SendUnary(context.Background(), protocol.Document{}, protocol.NewOutboundMessage("hi", false))
		if err == nil {
			t.Fatal("expected error for a card without url")
		}
	})
	t.Run("http status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()
		_, err := NewLegacy(testOptions()).SendUnary(context.Background(), protocol.Document{"url": srv.URL}, protocol.NewOutboundMessage("hi", false))
		if err == nil || !strings.Contains(err.Error(), "HTTP 502") {
			t.Errorf("err = %v", err)
		}
	})
	t.Run("not json-rpc", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"hello":"world"}`)
		}))
		defer srv.Close()
		_, err := NewLegacy(testOptions()).SendUnary(context.Background(), protocol.Document{"url": srv.URL}, protocol.NewOutboundMessage("hi", false))
		var re *inspectorerrors.RemoteError
		if err == nil || errors.As(err, &re) {
			t.Errorf("err = %v, want transport fault", err)
		}
	})
}

// ── SendStreaming ──

func TestLegacySendStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRPC(t, r)
		if req["method"] != "message/stream" {
			t.Errorf("method = %v", req["method"])
		}
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		writeSSE(w,
			rpcResult(req["id"], `{"kind":"task","id":"t1","status":{"state":"submitted"}}`),
			rpcResult(req["id"], `{"kind":"status-update","taskId":"t1","status":{"state":"working"},"final":false}`),
			rpcResult(req["id"], `{"kind":"status-update","taskId":"t1","status":{"state":"completed"},"final":true}`),
		)
	}))
	defer srv.Close()

	var kinds []string
	for doc, err := range NewLegacy(testOptions()).SendStreaming(context.Background(), protocol.Document{"url": srv.URL}, protocol.NewOutboundMessage("hi", false)) {
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
		kinds = append(kinds, protocol.EventKind(doc))
	}
	want := []string{"task", "status-update", "status-update"}
	if strings.Join(kinds, ",") != strings.Join(want, ",") {
		t.Errorf("kinds = %v, want %v", kinds, want)
	}
}

func TestLegacySendStreaming_StopEarly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRPC(t, r)
		writeSSE(w,
			rpcResult(req["id"], `{"kind":"message","messageId":"a","role":"agent","parts":[]}`),
			rpcResult(req["id"], `{"kind":"message","messageId":"b","role":"agent","parts":[]}`),
		)
	}))
	defer srv.Close()

	n := 0
	for range NewLegacy(testOptions()).SendStreaming(context.Background(), protocol.Document{"url": srv.URL}, protocol.NewOutboundMessage("hi", false)) {
		n++
		break
	}
	if n != 1 {
		t.Errorf("iterations = %d", n)
	}
}

func TestLegacySendStreaming_ErrorEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRPC(t, r)
		idJSON, _ := json.Marshal(req["id"])
		writeSSE(w, fmt.Sprintf(`{"jsonrpc":"2.0","id":%s,"error":{"code":-32603,"message":"boom"}}`, idJSON))
	}))
	defer srv.Close()

	var errs []error
	for _, err := range NewLegacy(testOptions()).SendStreaming(context.Background(), protocol.Document{"url": srv.URL}, protocol.NewOutboundMessage("hi", false)) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) != 1 {
		t.Fatalf("errors = %v, want exactly one", errs)
	}
	var re *inspectorerrors.RemoteError
	if !errors.As(errs[0], &re) || re.Code != inspectorerrors.CodeInternalError {
		t.Errorf("err = %v, want InternalError RemoteError", errs[0])
	}
}

func TestLegacySendStreaming_PlainJSONReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRPC(t, r)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, rpcResult(req["id"], `{"kind":"message","messageId":"only","role":"agent","parts":[]}`))
	}))
	defer srv.Close()

	var docs []protocol.Document
	for doc, err := range NewLegacy(testOptions()).SendStreaming(context.Background(), protocol.Document{"url": srv.URL}, protocol.NewOutboundMessage("hi", false)) {
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
		docs = append(docs, doc)
	}
	if len(docs) != 1 || docs[0]["messageId"] != "only" {
		t.Errorf("docs = %v", docs)
	}
}

func TestLegacySendStreaming_ContextCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	var gotErr error
	for _, err := range NewLegacy(testOptions()).SendStreaming(ctx, protocol.Document{"url": srv.URL}, protocol.NewOutboundMessage("hi", false)) {
		gotErr = err
	}
	if gotErr == nil {
		t.Error("expected an error after cancellation")
	}
	if time.Since(start) > 3*time.Second {
		t.Error("stream was not abandoned promptly")
	}
}

func TestLegacySendStreaming_ZeroOptionsReadStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRPC(t, r)
		writeSSE(w, rpcResult(req["id"], `{"kind":"message","messageId":"z","role":"agent","parts":[]}`))
	}))
	defer srv.Close()

	var docs []protocol.Document
	for doc, err := range NewLegacy(Options{}).SendStreaming(context.Background(), protocol.Document{"url": srv.URL}, protocol.NewOutboundMessage("hi", false)) {
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
		docs = append(docs, doc)
	}
	if len(docs) != 1 || docs[0]["messageId"] != "z" {
		t.Errorf("docs = %v", docs)
	}
}

func TestLegacySendStreaming_EventTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decodeRPC(t, r)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		for range 100 {
			io.WriteString(w, "data: 0123456789012345678901234567890123456789\n")
		}
	}))
	defer srv.Close()

	opts := testOptions()
	opts.MaxEventSize = 1024
	var gotErr error
	for _, err := range NewLegacy(opts).SendStreaming(context.Background(), protocol.Document{"url": srv.URL}, protocol.NewOutboundMessage("hi", false)) {
		gotErr = err
	}
	if !errors.Is(gotErr, protocol.ErrEventTooLarge) {
		t.Errorf("err = %v, want ErrEventTooLarge", gotErr)
	}
}
