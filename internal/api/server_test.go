package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/FocuswithJustin/enriched/core/document"
	"github.com/FocuswithJustin/enriched/core/errors"
	"github.com/FocuswithJustin/enriched/core/spans"
	"github.com/FocuswithJustin/enriched/core/store"
	"github.com/FocuswithJustin/enriched/internal/logging"
)

// response mirrors APIResponse with the payload left undecoded.
type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *APIMeta        `json:"meta"`
}

func newTestServer(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	s := New(cfg)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Close()
		ts.Close()
	})
	return s, ts
}

func do(t *testing.T, method, url, body string, header ...string) (*http.Response, response) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var out response
	data, _ := io.ReadAll(resp.Body)
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, url, data, err)
		}
	}
	return resp, out
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, Config{CacheSize: 8, Version: "1.2.3"})

	resp, out := do(t, http.MethodGet, ts.URL+"/api/v1/health", "")
	if resp.StatusCode != http.StatusOK || !out.Success {
		t.Fatalf("status = %d, success = %v", resp.StatusCode, out.Success)
	}
	var info HealthInfo
	if err := json.Unmarshal(out.Data, &info); err != nil {
		t.Fatal(err)
	}
	if info.Status != "healthy" || info.Version != "1.2.3" {
		t.Errorf("health = %+v", info)
	}
	if info.Models == nil || info.Models.MaxSize != 8 {
		t.Errorf("Models = %+v, want cache stats", info.Models)
	}
	if out.Meta == nil || out.Meta.RequestID == "" {
		t.Errorf("Meta = %+v, want a request ID", out.Meta)
	}
	if resp.Header.Get(logging.RequestIDHeader) != out.Meta.RequestID {
		t.Errorf("header request ID %q differs from body %q",
			resp.Header.Get(logging.RequestIDHeader), out.Meta.RequestID)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}

func TestHealthWithoutCache(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	_, out := do(t, http.MethodGet, ts.URL+"/api/v1/health", "")
	var info HealthInfo
	if err := json.Unmarshal(out.Data, &info); err != nil {
		t.Fatal(err)
	}
	if info.Models != nil || info.Markups != nil {
		t.Errorf("cache stats reported without a cache: %+v", info)
	}
	if info.Version != "dev" {
		t.Errorf("Version = %q, want dev", info.Version)
	}
}

func TestConvertEndpoints(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	resp, out := do(t, http.MethodPost, ts.URL+"/api/v1/model", `{"markup":"<p>a <b>b</b></p>"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("model status = %d, error = %+v", resp.StatusCode, out.Error)
	}
	var res ConvertResult
	if err := json.Unmarshal(out.Data, &res); err != nil {
		t.Fatal(err)
	}
	doc, err := document.Decode(res.Model)
	if err != nil {
		t.Fatalf("Decode(model) error: %v", err)
	}
	if doc.Text() != "a b" || res.Hash != doc.Hash() {
		t.Errorf("model = %q hash %q", doc.Text(), res.Hash)
	}

	body, _ := json.Marshal(ConvertRequest{Model: res.Model})
	resp, out = do(t, http.MethodPost, ts.URL+"/api/v1/markup", string(body))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("markup status = %d, error = %+v", resp.StatusCode, out.Error)
	}
	res = ConvertResult{}
	if err := json.Unmarshal(out.Data, &res); err != nil {
		t.Fatal(err)
	}
	if want := "<html><p>a <b>b</b></p>\n</html>"; res.Markup != want {
		t.Errorf("markup = %q, want %q", res.Markup, want)
	}
}

func TestConvertErrors(t *testing.T) {
	_, ts := newTestServer(t, Config{MaxBodyBytes: 128})

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"not json", http.MethodPost, "/api/v1/model", "<p>x</p>", http.StatusBadRequest, "INVALID_INPUT"},
		{"bad image size", http.MethodPost, "/api/v1/model", `{"markup":"<img src=\"a\" width=\"x\">"}`, http.StatusBadRequest, "INVALID_INPUT"},
		{"missing model", http.MethodPost, "/api/v1/markup", `{}`, http.StatusBadRequest, "INVALID_INPUT"},
		{"invalid model", http.MethodPost, "/api/v1/markup", `{"model":{"text":"a","spans":[{"kind":"bold","start":0,"end":9}]}}`, http.StatusBadRequest, "INVALID_INPUT"},
		{"too large", http.MethodPost, "/api/v1/model", `{"markup":"` + strings.Repeat("x", 200) + `"}`, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, out := do(t, tt.method, ts.URL+tt.path, tt.body)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d (%+v)", resp.StatusCode, tt.status, out.Error)
			}
			if out.Success || out.Error == nil || out.Error.Code != tt.code {
				t.Errorf("error = %+v, want code %s", out.Error, tt.code)
			}
		})
	}

	resp, _ := do(t, http.MethodGet, ts.URL+"/api/v1/model", "")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/v1/model status = %d, want 405", resp.StatusCode)
	}
}

func TestCORS(t *testing.T) {
	_, ts := newTestServer(t, Config{AllowedOrigins: []string{"https://app.example.com"}})

	resp, _ := do(t, http.MethodOptions, ts.URL+"/api/v1/model", "", "Origin", "https://app.example.com")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}

	resp, _ = do(t, http.MethodOptions, ts.URL+"/api/v1/model", "", "Origin", "https://evil.example.org")
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("disallowed preflight status = %d, want 403", resp.StatusCode)
	}

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/v1/health", "", "Origin", "https://evil.example.org")
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Access-Control-Allow-Origin") != "" {
		t.Errorf("disallowed origin got status %d and CORS headers", resp.StatusCode)
	}
}

func TestIsOriginAllowed(t *testing.T) {
	tests := []struct {
		origin  string
		allowed []string
		want    bool
	}{
		{"", []string{"*"}, false},
		{"https://a.com", []string{"*"}, true},
		{"https://a.com", []string{"https://a.com"}, true},
		{"https://b.com", []string{"https://a.com"}, false},
		{"https://app.example.com", []string{"*.example.com"}, true},
		{"https://notexample.com", []string{"*.example.com"}, false},
	}
	for _, tt := range tests {
		if got := isOriginAllowed(tt.origin, tt.allowed); got != tt.want {
			t.Errorf("isOriginAllowed(%q, %v) = %v, want %v", tt.origin, tt.allowed, got, tt.want)
		}
	}
}

func TestDocuments(t *testing.T) {
	st, err := store.OpenMemory(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	_, ts := newTestServer(t, Config{Store: st})
	base := ts.URL + "/api/v1/documents"

	resp, out := do(t, http.MethodGet, base, "")
	if resp.StatusCode != http.StatusOK || string(out.Data) != "[]" {
		t.Fatalf("empty list = %d %s", resp.StatusCode, out.Data)
	}

	resp, out = do(t, http.MethodPut, base+"/note", `{"markup":"<p><i>x</i></p>"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT status = %d (%+v)", resp.StatusCode, out.Error)
	}
	var info DocumentInfo
	if err := json.Unmarshal(out.Data, &info); err != nil {
		t.Fatal(err)
	}
	if info.Name != "note" || info.Markup != "<html><p><i>x</i></p>\n</html>" || info.Hash == "" {
		t.Errorf("PUT = %+v", info)
	}

	resp, out = do(t, http.MethodGet, base+"/note", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET status = %d", resp.StatusCode)
	}
	var got DocumentInfo
	if err := json.Unmarshal(out.Data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Hash != info.Hash || got.Markup != info.Markup {
		t.Errorf("GET = %+v, want %+v", got, info)
	}

	_, out = do(t, http.MethodGet, base, "")
	if out.Meta == nil || out.Meta.Total != 1 {
		t.Errorf("list meta = %+v, want total 1", out.Meta)
	}

	resp, _ = do(t, http.MethodDelete, base+"/note", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("DELETE status = %d, want 204", resp.StatusCode)
	}
	resp, out = do(t, http.MethodGet, base+"/note", "")
	if resp.StatusCode != http.StatusNotFound || out.Error.Code != "NOT_FOUND" {
		t.Errorf("GET after delete = %d %+v", resp.StatusCode, out.Error)
	}
}

func TestDocumentsDisabledWithoutStore(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	resp, _ := do(t, http.MethodGet, ts.URL+"/api/v1/documents", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func dial(t *testing.T, ts *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func exchange(t *testing.T, conn *websocket.Conn, req any) ConvertResult {
	t.Helper()
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("WriteJSON() error: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var res ConvertResult
	if err := conn.ReadJSON(&res); err != nil {
		t.Fatalf("ReadJSON() error: %v", err)
	}
	return res
}

func TestWebSocket(t *testing.T) {
	_, ts := newTestServer(t, Config{CacheSize: 4})
	conn := dial(t, ts, nil)

	res := exchange(t, conn, ConvertRequest{ID: "1", Op: "to-model", Markup: "<ul><li>a</li></ul>"})
	if res.ID != "1" || res.Error != "" {
		t.Fatalf("to-model = %+v", res)
	}
	doc, err := document.Decode(res.Model)
	if err != nil {
		t.Fatal(err)
	}
	items := doc.SpansOf(spans.CategoryParagraph)
	if len(items) != 1 || items[0].Kind != spans.KindUnorderedListItem {
		t.Errorf("spans = %+v, want one list item", items)
	}

	res = exchange(t, conn, ConvertRequest{ID: "2", Op: "to-markup", Model: res.Model})
	if want := "<html><ul>\n<li>a</li>\n</ul>\n</html>"; res.ID != "2" || res.Markup != want {
		t.Errorf("to-markup = %+v, want markup %q", res, want)
	}

	res = exchange(t, conn, ConvertRequest{ID: "3", Op: "roundtrip", Markup: "<p>a</p>\n<p>b</p>"})
	if res.Markup != "<html><p>a</p>\n<p>b</p>\n</html>" || len(res.Model) == 0 {
		t.Errorf("roundtrip = %+v", res)
	}

	res = exchange(t, conn, ConvertRequest{ID: "4", Op: "compile"})
	if res.ID != "4" || !strings.Contains(res.Error, "unknown op") {
		t.Errorf("unknown op = %+v", res)
	}

	res = exchange(t, conn, json.RawMessage(`"not an object"`))
	if res.Error == "" {
		t.Errorf("invalid frame = %+v, want an error", res)
	}

	res = exchange(t, conn, ConvertRequest{ID: "5", Op: "to-model", Markup: `<img src="a" width="wide">`})
	if res.ID != "5" || res.Error == "" {
		t.Errorf("bad markup = %+v, want an error", res)
	}
}

func TestWebSocketOriginRejected(t *testing.T) {
	_, ts := newTestServer(t, Config{AllowedOrigins: []string{"https://app.example.com"}})
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example.org"}})
	if err == nil {
		t.Fatal("Dial() from a disallowed origin succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %v, want 403", resp)
	}

	conn := dial(t, ts, http.Header{"Origin": {"https://app.example.com"}})
	if res := exchange(t, conn, ConvertRequest{Op: "to-model", Markup: "x"}); res.Error != "" {
		t.Errorf("allowed origin got error %q", res.Error)
	}
}

func TestWebSocketBroadcast(t *testing.T) {
	st, err := store.OpenMemory(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	s, ts := newTestServer(t, Config{Store: st})
	conn := dial(t, ts, nil)

	deadline := time.Now().Add(5 * time.Second)
	for s.hub.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, _ := do(t, http.MethodPut, ts.URL+"/api/v1/documents/a", `{"markup":"<p>x</p>"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT status = %d", resp.StatusCode)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev StoreEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON() error: %v", err)
	}
	if ev.Event != "stored" || ev.Name != "a" || ev.Hash == "" {
		t.Errorf("event = %+v", ev)
	}
}

func TestWebSocketRateLimit(t *testing.T) {
	_, ts := newTestServer(t, Config{MaxMessageRate: 1})
	conn := dial(t, ts, nil)

	for i := 0; i < 4; i++ {
		if err := conn.WriteJSON(ConvertRequest{Op: "to-model", Markup: "x"}); err != nil {
			break
		}
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
				t.Errorf("read error = %v, want policy violation close", err)
			}
			return
		}
	}
}

func TestMessageBucket(t *testing.T) {
	b := newMessageBucket(2)
	allowed := 0
	for i := 0; i < 10; i++ {
		if b.allow() {
			allowed++
		}
	}
	if allowed != 4 {
		t.Errorf("allowed %d messages in a burst, want 4", allowed)
	}

	b.last = b.last.Add(-time.Second)
	if !b.allow() {
		t.Error("bucket did not refill")
	}
}

func TestStatusFor(t *testing.T) {
	srv := New(Config{})
	_, malformed := srv.toMarkup(t.Context(), ConvertRequest{Model: json.RawMessage(`[`)})
	_, unknownKind := srv.toMarkup(t.Context(), ConvertRequest{
		Model: json.RawMessage(`{"text":"a","spans":[{"kind":"blink","start":0,"end":1}]}`),
	})

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"malformed model", malformed, http.StatusBadRequest, "INVALID_INPUT"},
		{"unknown span kind", unknownKind, http.StatusBadRequest, "UNSUPPORTED"},
		{"not found", errors.NewNotFound("document", "x"), http.StatusNotFound, "NOT_FOUND"},
		{"cancelled", context.Canceled, http.StatusServiceUnavailable, "CANCELLED"},
		{"internal", fmt.Errorf("%w: decode model", errors.ErrInternal), http.StatusInternalServerError, "INTERNAL"},
		{"other", io.ErrUnexpectedEOF, http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := statusFor(tt.err)
			if status != tt.wantStatus || code != tt.wantCode {
				t.Errorf("statusFor(%v) = %d %s, want %d %s", tt.err, status, code, tt.wantStatus, tt.wantCode)
			}
		})
	}
}
