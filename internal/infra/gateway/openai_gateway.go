package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"manga-translate-pipeline/internal/domain"
	ports "manga-translate-pipeline/internal/domain/ports/gateway"
	"manga-translate-pipeline/internal/infra/metrics"
)

// Compile-time assurance this gateway satisfies the port
var _ ports.ModelGateway = (*OpenAIGateway)(nil)

// OpenAIGateway speaks the OpenAI-compatible wire protocols of both stages.
// Endpoint paths and protocol variants come from the per-call config, since
// the operator may point either stage at a different compatible provider.
type OpenAIGateway struct {
	client *http.Client
	log    *zerolog.Logger
}

func NewOpenAIGateway(log *zerolog.Logger) *OpenAIGateway {
	// No client-level timeout: each call carries its own whole-call
	// deadline from the per-stage config.
	return &OpenAIGateway{client: &http.Client{}, log: log}
}

// joinURL concatenates base and path, deduplicating an API version segment
// present on both sides ("https://host/v1" + "/v1/responses").
func joinURL(base, path string) string {
	base = strings.TrimRight(base, "/")
	if strings.HasSuffix(base, "/v1") && strings.HasPrefix(path, "/v1/") {
		return base + strings.TrimPrefix(path, "/v1")
	}
	return base + path
}

func imageDataURI(img []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(img)
}

// ---- wire shapes ----

type imageURLRef struct {
	URL string `json:"url"`
}

type contentPart struct {
	Type     string       `json:"type"`
	Text     string       `json:"text,omitempty"`
	ImageURL *imageURLRef `json:"image_url,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string for system, []contentPart for user
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat json.RawMessage `json:"response_format,omitempty"`
}

type inputMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type responsesRequest struct {
	Model          string          `json:"model"`
	Input          []inputMessage  `json:"input"`
	Temperature    float64         `json:"temperature,omitempty"`
	ResponseFormat json.RawMessage `json:"response_format,omitempty"`
}

func schemaResponseFormat(schema json.RawMessage) json.RawMessage {
	rf, _ := json.Marshal(struct {
		Type       string          `json:"type"`
		JSONSchema json.RawMessage `json:"json_schema"`
	}{Type: "json_schema", JSONSchema: schema})
	return rf
}

// ---- Stage A ----

// CallExtract issues the vision extraction request and normalizes the
// response to raw JSON. The model's text payload is parsed strictly first;
// on failure the substring between the first '{' and the last '}' is tried,
// which tolerates models that wrap JSON in prose or markdown fences.
func (g *OpenAIGateway) CallExtract(ctx context.Context, req ports.ExtractRequest) (json.RawMessage, error) {
	cfg := req.Config
	start := time.Now()

	var (
		payload any
		path    string
	)
	var responseFormat json.RawMessage
	if req.Schema != nil {
		responseFormat = schemaResponseFormat(req.Schema)
	}

	userParts := []contentPart{
		{Type: "text", Text: req.ContextText},
		{Type: "image_url", ImageURL: &imageURLRef{URL: imageDataURI(req.Image)}},
	}

	if cfg.Protocol == ports.ProtocolResponses {
		path = "/v1/responses"
		payload = responsesRequest{
			Model: cfg.Model,
			Input: []inputMessage{
				{Role: "system", Content: []contentPart{{Type: "text", Text: req.SystemPrompt}}},
				{Role: "user", Content: userParts},
			},
			Temperature:    0.2,
			ResponseFormat: responseFormat,
		}
	} else {
		path = "/v1/chat/completions"
		payload = chatRequest{
			Model: cfg.Model,
			Messages: []chatMessage{
				{Role: "system", Content: req.SystemPrompt},
				{Role: "user", Content: userParts},
			},
			Temperature:    0.2,
			ResponseFormat: responseFormat,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	respBody, err := g.postWithRetry(ctx, "A", joinURL(cfg.BaseURL, path), req.APIKey, "application/json", body, cfg)
	metrics.ObserveGatewayCall("A", cfg.Protocol, time.Since(start).Seconds(), err == nil)
	if err != nil {
		return nil, err
	}

	content, err := extractContent(respBody, cfg.Protocol)
	if err != nil {
		return nil, err
	}
	return normalizeJSON(content)
}

// extractContent reads the text payload out of either response shape.
func extractContent(respBody []byte, protocol string) (string, error) {
	if protocol == ports.ProtocolResponses {
		var payload struct {
			Output []struct {
				Content []struct {
					Text string `json:"text"`
				} `json:"content"`
			} `json:"output"`
		}
		if err := json.Unmarshal(respBody, &payload); err != nil {
			return "", domain.Gatewayf(err, "decode response")
		}
		if len(payload.Output) > 0 && len(payload.Output[0].Content) > 0 {
			return payload.Output[0].Content[0].Text, nil
		}
		return "", domain.Gatewayf(nil, "no content in model response")
	}

	var payload struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return "", domain.Gatewayf(err, "decode response")
	}
	if len(payload.Choices) > 0 && payload.Choices[0].Message.Content != "" {
		return payload.Choices[0].Message.Content, nil
	}
	return "", domain.Gatewayf(nil, "no content in model response")
}

func normalizeJSON(content string) (json.RawMessage, error) {
	var v any
	trimmed := strings.TrimSpace(content)
	if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
		return json.RawMessage(trimmed), nil
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start != -1 && end > start {
		candidate := content[start : end+1]
		if err := json.Unmarshal([]byte(candidate), &v); err == nil {
			return json.RawMessage(candidate), nil
		}
	}
	return nil, domain.Gatewayf(nil, "model content is not valid JSON")
}

// ---- Stage B ----

// CallRender issues the image-edit request and returns the edited image
// bytes. The multipart variant expects data[0].b64_json; the responses
// variant expects an inline base64 image block. A bare image URL in the
// response is unsupported and fails loudly; the gateway never downloads.
func (g *OpenAIGateway) CallRender(ctx context.Context, req ports.RenderRequest) ([]byte, error) {
	cfg := req.Config
	start := time.Now()

	if cfg.Protocol == ports.ProtocolImagesEdits {
		img, err := g.renderMultipart(ctx, req)
		metrics.ObserveGatewayCall("B", cfg.Protocol, time.Since(start).Seconds(), err == nil)
		return img, err
	}
	img, err := g.renderResponses(ctx, req)
	metrics.ObserveGatewayCall("B", cfg.Protocol, time.Since(start).Seconds(), err == nil)
	return img, err
}

func (g *OpenAIGateway) renderMultipart(ctx context.Context, req ports.RenderRequest) ([]byte, error) {
	cfg := req.Config

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("model", cfg.Model)
	_ = w.WriteField("prompt", fmt.Sprintf("%s\n\nJSON:\n%s", req.Prompt, req.Layout))
	_ = w.WriteField("response_format", "b64_json")
	part, err := w.CreateFormFile("image", "image.png")
	if err != nil {
		return nil, fmt.Errorf("multipart image: %w", err)
	}
	if _, err := part.Write(req.Image); err != nil {
		return nil, fmt.Errorf("multipart image: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("multipart finalize: %w", err)
	}

	respBody, err := g.postWithRetry(ctx, "B", joinURL(cfg.BaseURL, cfg.Endpoint), req.APIKey, w.FormDataContentType(), buf.Bytes(), cfg)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Data []struct {
			B64JSON string `json:"b64_json"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return nil, domain.Gatewayf(err, "decode response")
	}
	if len(payload.Data) == 0 || payload.Data[0].B64JSON == "" {
		return nil, domain.Gatewayf(nil, "no image data in model response")
	}
	img, err := base64.StdEncoding.DecodeString(payload.Data[0].B64JSON)
	if err != nil {
		return nil, domain.Gatewayf(err, "decode image payload")
	}
	return img, nil
}

func (g *OpenAIGateway) renderResponses(ctx context.Context, req ports.RenderRequest) ([]byte, error) {
	cfg := req.Config

	payload := responsesRequest{
		Model: cfg.Model,
		Input: []inputMessage{
			{Role: "system", Content: []contentPart{{Type: "text", Text: req.Prompt}}},
			{Role: "user", Content: []contentPart{
				{Type: "text", Text: fmt.Sprintf("JSON:\n%s", req.Layout)},
				{Type: "image_url", ImageURL: &imageURLRef{URL: imageDataURI(req.Image)}},
			}},
		},
		ResponseFormat: json.RawMessage(`{"type":"image"}`),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	respBody, err := g.postWithRetry(ctx, "B", joinURL(cfg.BaseURL, "/v1/responses"), req.APIKey, "application/json", body, cfg)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Output []struct {
			Content []struct {
				Type        string `json:"type"`
				ImageBase64 string `json:"image_base64"`
				URL         string `json:"url"`
			} `json:"content"`
		} `json:"output"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, domain.Gatewayf(err, "decode response")
	}
	for _, block := range parsed.Output {
		for _, c := range block.Content {
			if c.Type == "image" && c.ImageBase64 != "" {
				img, err := base64.StdEncoding.DecodeString(c.ImageBase64)
				if err != nil {
					return nil, domain.Gatewayf(err, "decode image payload")
				}
				return img, nil
			}
			if c.Type == "image_url" && c.URL != "" {
				// Deliberate refusal: following a URL would silently pull
				// bytes the operator never audited.
				return nil, domain.Gatewayf(nil, "model returned an image URL instead of inline data; unsupported")
			}
		}
	}
	return nil, domain.Gatewayf(nil, "no image data in model response")
}

// ---- shared retry ----

// postWithRetry attempts the request up to cfg.Retries+1 times with no
// backoff; every attempt error is swallowed until attempts are exhausted,
// then the last one surfaces. The whole call, retries included, runs under
// the stage timeout.
func (g *OpenAIGateway) postWithRetry(ctx context.Context, stage, url, apiKey, contentType string, body []byte, cfg ports.CallConfig) ([]byte, error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		respBody, err := g.post(ctx, url, apiKey, contentType, body)
		if err == nil {
			metrics.IncGatewayAttempt(stage, "ok")
			return respBody, nil
		}
		metrics.IncGatewayAttempt(stage, "error")
		g.log.Debug().Err(err).Str("url", url).Int("attempt", attempt+1).Msg("gateway attempt failed")
		lastErr = err
	}
	return nil, domain.Gatewayf(lastErr, "call failed after %d attempts", retries+1)
}

func (g *OpenAIGateway) post(ctx context.Context, url, apiKey, contentType string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, snippet(respBody))
	}
	return respBody, nil
}

func snippet(b []byte) string {
	const max = 200
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
