package gateway

import (
	"context"
	"encoding/json"
	"time"
)

// Protocol variants spoken by compatible providers. The two variants of a
// stage are functionally equivalent; the operator picks one per model.
const (
	ProtocolChatCompletions = "chat_completions"
	ProtocolResponses       = "responses"
	ProtocolImagesEdits     = "images_edits"
)

// CallConfig is the slice of effective configuration a single model call
// needs. Timeout bounds the whole call; Retries is the number of extra
// attempts after the first.
type CallConfig struct {
	BaseURL  string
	Model    string
	Protocol string
	Endpoint string // Stage B only: override path for the images-edits call
	Timeout  time.Duration
	Retries  int
}

type ExtractRequest struct {
	Image        []byte
	SystemPrompt string
	ContextText  string
	Schema       json.RawMessage // optional response-format constraint
	Config       CallConfig
	APIKey       string
}

type RenderRequest struct {
	Image  []byte
	Prompt string
	Layout json.RawMessage // serialized Stage A structured data
	Config CallConfig
	APIKey string
}

// ModelGateway issues Stage A and Stage B calls to the configured provider,
// retrying and normalizing the response shape. CallExtract returns the
// model's structured output as raw JSON; CallRender returns the edited
// image bytes.
type ModelGateway interface {
	CallExtract(ctx context.Context, req ExtractRequest) (json.RawMessage, error)
	CallRender(ctx context.Context, req RenderRequest) ([]byte, error)
}
