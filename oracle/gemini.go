// Package oracle talks to the generative AI model used as price-discovery
// oracle. Requests enable web and map grounding; replies are returned as raw
// text plus grounding chunks for the normalizer.
package oracle

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/giygas/pharmaprice-api/entities"
	"github.com/giygas/pharmaprice-api/logging"
)

const DefaultBaseURL = "https://generativelanguage.googleapis.com"

var (
	ErrMissingAPIKey = errors.New("missing GEMINI_API_KEY")
	ErrMissingModel  = errors.New("missing GEMINI_MODEL")
	ErrEmptyResponse = errors.New("empty gemini response")
)

// APIError is a non-200 answer from the oracle endpoint.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini api error: status %d: %s", e.StatusCode, e.Body)
}

// InlineImage is an encoded image sent as inline binary data.
type InlineImage struct {
	MIMEType string
	Data     []byte
}

// Request is one oracle call.
type Request struct {
	Prompt   string
	Image    *InlineImage
	Location *entities.Location
}

// Reply is the raw oracle answer.
type Reply struct {
	Text   string
	Chunks []entities.GroundingChunk
}

// GeminiClient calls the generateContent endpoint.
type GeminiClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewGeminiClient creates a client. The http client carries no timeout of its
// own; callers bound the call through the context.
func NewGeminiClient(apiKey, model, baseURL string) *GeminiClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &GeminiClient{
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// WithHTTPClient swaps the underlying http client (tests).
func (g *GeminiClient) WithHTTPClient(c *http.Client) *GeminiClient {
	g.httpClient = c
	return g
}

// Model returns the configured model name.
func (g *GeminiClient) Model() string {
	return g.model
}

// Configured reports whether an API key and model are present.
func (g *GeminiClient) Configured() bool {
	return g.apiKey != "" && g.model != ""
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type tool struct {
	GoogleSearch *struct{} `json:"googleSearch,omitempty"`
	GoogleMaps   *struct{} `json:"googleMaps,omitempty"`
}

type latLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type toolConfig struct {
	RetrievalConfig struct {
		LatLng latLng `json:"latLng"`
	} `json:"retrievalConfig"`
}

type generateRequest struct {
	Contents   []content   `json:"contents"`
	Tools      []tool      `json:"tools"`
	ToolConfig *toolConfig `json:"toolConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		GroundingMetadata *struct {
			GroundingChunks []entities.GroundingChunk `json:"groundingChunks"`
		} `json:"groundingMetadata"`
	} `json:"candidates"`
}

// buildRequestBody builds the generateContent payload: one text part, an
// optional inline image part, search and maps grounding, optional location.
func buildRequestBody(req Request) generateRequest {
	parts := []part{{Text: req.Prompt}}
	if req.Image != nil && len(req.Image.Data) > 0 {
		parts = append(parts, part{InlineData: &inlineData{
			MIMEType: req.Image.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(req.Image.Data),
		}})
	}

	body := generateRequest{
		Contents: []content{{Role: "user", Parts: parts}},
		Tools: []tool{
			{GoogleSearch: &struct{}{}},
			{GoogleMaps: &struct{}{}},
		},
	}

	if req.Location != nil {
		tc := &toolConfig{}
		tc.RetrievalConfig.LatLng = latLng{
			Latitude:  req.Location.Latitude,
			Longitude: req.Location.Longitude,
		}
		body.ToolConfig = tc
	}

	return body
}

// Generate sends the request and returns the concatenated candidate text with
// its grounding chunks.
func (g *GeminiClient) Generate(ctx context.Context, req Request) (*Reply, error) {
	if g.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if g.model == "" {
		return nil, ErrMissingModel
	}

	payload, err := json.Marshal(buildRequestBody(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.baseURL, g.model)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logging.Warn("Failed to close oracle response body", "error", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	logging.Debug("Oracle raw response", "status", resp.StatusCode, "size", len(raw))

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var decoded generateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("failed to parse response envelope: %w", err)
	}

	if len(decoded.Candidates) == 0 {
		return nil, ErrEmptyResponse
	}

	candidate := decoded.Candidates[0]

	var text strings.Builder
	for _, p := range candidate.Content.Parts {
		text.WriteString(p.Text)
	}

	reply := &Reply{Text: text.String()}
	if candidate.GroundingMetadata != nil {
		reply.Chunks = candidate.GroundingMetadata.GroundingChunks
	}

	return reply, nil
}
