package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"manga-translate-pipeline/internal/domain"
	ports "manga-translate-pipeline/internal/domain/ports/gateway"
)

func testGateway() *OpenAIGateway {
	log := zerolog.Nop()
	return NewOpenAIGateway(&log)
}

func chatResponse(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	return string(b)
}

func TestJoinURL(t *testing.T) {
	cases := []struct {
		base, path, want string
	}{
		{"https://api.example.com", "/v1/chat/completions", "https://api.example.com/v1/chat/completions"},
		{"https://api.example.com/v1", "/v1/chat/completions", "https://api.example.com/v1/chat/completions"},
		{"https://api.example.com/v1/", "/v1/responses", "https://api.example.com/v1/responses"},
		{"https://api.example.com/", "/v1/images/edits", "https://api.example.com/v1/images/edits"},
	}
	for _, c := range cases {
		if got := joinURL(c.base, c.path); got != c.want {
			t.Errorf("joinURL(%q, %q) = %q, want %q", c.base, c.path, got, c.want)
		}
	}
}

func TestCallExtractChatCompletions(t *testing.T) {
	var gotPath, gotAuth string
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Write([]byte(chatResponse(`{"items":[]}`)))
	}))
	defer srv.Close()

	raw, err := testGateway().CallExtract(context.Background(), ports.ExtractRequest{
		Image:        []byte("img"),
		SystemPrompt: "extract",
		ContextText:  "reading_direction=rtl",
		Config: ports.CallConfig{
			BaseURL:  srv.URL,
			Model:    "vision-model",
			Protocol: ports.ProtocolChatCompletions,
			Timeout:  5 * time.Second,
		},
		APIKey: "sk-test",
	})
	if err != nil {
		t.Fatalf("CallExtract: %v", err)
	}
	if string(raw) != `{"items":[]}` {
		t.Errorf("raw = %s", raw)
	}
	if gotPath != "/v1/chat/completions" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotReq.Model != "vision-model" || len(gotReq.Messages) != 2 {
		t.Errorf("request = %+v", gotReq)
	}
	if gotReq.Messages[0].Role != "system" {
		t.Errorf("first message role = %q", gotReq.Messages[0].Role)
	}
}

func TestCallExtractResponsesProtocol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/responses" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"output":[{"content":[{"text":"{\"items\":[]}"}]}]}`))
	}))
	defer srv.Close()

	raw, err := testGateway().CallExtract(context.Background(), ports.ExtractRequest{
		Image:  []byte("img"),
		Config: ports.CallConfig{BaseURL: srv.URL, Protocol: ports.ProtocolResponses, Timeout: 5 * time.Second},
		APIKey: "sk-test",
	})
	if err != nil {
		t.Fatalf("CallExtract: %v", err)
	}
	if string(raw) != `{"items":[]}` {
		t.Errorf("raw = %s", raw)
	}
}

func TestCallExtractBraceScanFallback(t *testing.T) {
	// Models sometimes wrap the JSON in prose; the substring between the
	// first '{' and last '}' must be recovered.
	content := "Here is the result: {\"items\":[]} hope it helps!"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatResponse(content)))
	}))
	defer srv.Close()

	raw, err := testGateway().CallExtract(context.Background(), ports.ExtractRequest{
		Image:  []byte("img"),
		Config: ports.CallConfig{BaseURL: srv.URL, Protocol: ports.ProtocolChatCompletions, Timeout: 5 * time.Second},
		APIKey: "sk-test",
	})
	if err != nil {
		t.Fatalf("CallExtract: %v", err)
	}
	if string(raw) != `{"items":[]}` {
		t.Errorf("raw = %s", raw)
	}
}

func TestCallExtractNonJSONContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatResponse("I could not read the page, sorry.")))
	}))
	defer srv.Close()

	_, err := testGateway().CallExtract(context.Background(), ports.ExtractRequest{
		Image:  []byte("img"),
		Config: ports.CallConfig{BaseURL: srv.URL, Protocol: ports.ProtocolChatCompletions, Timeout: 5 * time.Second},
		APIKey: "sk-test",
	})
	if !domain.IsGateway(err) {
		t.Fatalf("err = %v, want gateway error", err)
	}
}

func TestCallExtractRetriesThenFails(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "upstream overloaded", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testGateway().CallExtract(context.Background(), ports.ExtractRequest{
		Image:  []byte("img"),
		Config: ports.CallConfig{BaseURL: srv.URL, Protocol: ports.ProtocolChatCompletions, Timeout: 5 * time.Second, Retries: 2},
		APIKey: "sk-test",
	})
	if !domain.IsGateway(err) {
		t.Fatalf("err = %v, want gateway error", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("attempts = %d, want retries+1 = 3", got)
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Errorf("error should name the attempt count: %v", err)
	}
}

func TestCallExtractRecoversOnRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "flake", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(chatResponse(`{"items":[]}`)))
	}))
	defer srv.Close()

	raw, err := testGateway().CallExtract(context.Background(), ports.ExtractRequest{
		Image:  []byte("img"),
		Config: ports.CallConfig{BaseURL: srv.URL, Protocol: ports.ProtocolChatCompletions, Timeout: 5 * time.Second, Retries: 1},
		APIKey: "sk-test",
	})
	if err != nil {
		t.Fatalf("CallExtract: %v", err)
	}
	if string(raw) != `{"items":[]}` {
		t.Errorf("raw = %s", raw)
	}
}

func TestCallRenderImagesEdits(t *testing.T) {
	img := []byte("edited-png-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/images/edits" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("multipart: %v", err)
		}
		if got := r.FormValue("model"); got != "image-model" {
			t.Errorf("model = %q", got)
		}
		if got := r.FormValue("response_format"); got != "b64_json" {
			t.Errorf("response_format = %q", got)
		}
		if !strings.Contains(r.FormValue("prompt"), `"items"`) {
			t.Errorf("prompt must embed the layout JSON: %q", r.FormValue("prompt"))
		}
		if _, _, err := r.FormFile("image"); err != nil {
			t.Errorf("image file: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"b64_json": base64.StdEncoding.EncodeToString(img)}},
		})
	}))
	defer srv.Close()

	got, err := testGateway().CallRender(context.Background(), ports.RenderRequest{
		Image:  []byte("original"),
		Prompt: "render",
		Layout: json.RawMessage(`{"items":[]}`),
		Config: ports.CallConfig{
			BaseURL:  srv.URL,
			Model:    "image-model",
			Protocol: ports.ProtocolImagesEdits,
			Endpoint: "/v1/images/edits",
			Timeout:  5 * time.Second,
		},
		APIKey: "sk-test",
	})
	if err != nil {
		t.Fatalf("CallRender: %v", err)
	}
	if string(got) != string(img) {
		t.Errorf("image bytes mismatch")
	}
}

func TestCallRenderResponsesInlineImage(t *testing.T) {
	img := []byte("edited-png-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"output": []map[string]any{
				{"content": []map[string]string{
					{"type": "image", "image_base64": base64.StdEncoding.EncodeToString(img)},
				}},
			},
		})
	}))
	defer srv.Close()

	got, err := testGateway().CallRender(context.Background(), ports.RenderRequest{
		Image:  []byte("original"),
		Layout: json.RawMessage(`{"items":[]}`),
		Config: ports.CallConfig{BaseURL: srv.URL, Protocol: ports.ProtocolResponses, Timeout: 5 * time.Second},
		APIKey: "sk-test",
	})
	if err != nil {
		t.Fatalf("CallRender: %v", err)
	}
	if string(got) != string(img) {
		t.Errorf("image bytes mismatch")
	}
}

func TestCallRenderRejectsImageURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"output": []map[string]any{
				{"content": []map[string]string{
					{"type": "image_url", "url": "https://cdn.example.com/out.png"},
				}},
			},
		})
	}))
	defer srv.Close()

	_, err := testGateway().CallRender(context.Background(), ports.RenderRequest{
		Image:  []byte("original"),
		Layout: json.RawMessage(`{"items":[]}`),
		Config: ports.CallConfig{BaseURL: srv.URL, Protocol: ports.ProtocolResponses, Timeout: 5 * time.Second},
		APIKey: "sk-test",
	})
	if !domain.IsGateway(err) {
		t.Fatalf("err = %v, want gateway error", err)
	}
	if !strings.Contains(err.Error(), "image URL") {
		t.Errorf("error should say the URL shape is unsupported: %v", err)
	}
}

func TestCallTimeoutCoversRetries(t *testing.T) {
	// The deadline bounds the entire call including retries, so a slow
	// provider cannot stretch it by failing fast and retrying slow.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		http.Error(w, "slow", http.StatusBadGateway)
	}))
	defer srv.Close()

	start := time.Now()
	_, err := testGateway().CallExtract(context.Background(), ports.ExtractRequest{
		Image:  []byte("img"),
		Config: ports.CallConfig{BaseURL: srv.URL, Protocol: ports.ProtocolChatCompletions, Timeout: 300 * time.Millisecond, Retries: 10},
		APIKey: "sk-test",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("call ran %v, deadline should have cut retries short", elapsed)
	}
}
