package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/dershov/screenassist/internal/config"
	"github.com/dershov/screenassist/internal/domain"
)

// Client talks to the Gemini generateContent endpoint. It is a thin,
// replaceable boundary: one request per analysis, prompt text and still
// image in a single multi-part payload, credential passed as a request
// parameter.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:    cfg.GeminiBaseURL,
		model:      cfg.GeminiModel,
		httpClient: &http.Client{Timeout: config.RequestTimeout},
	}
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Analyze sends the prompt and image together and returns the first
// textual reply. A response without a usable reply is not an error; the
// fixed fallback text is returned instead so every request produces
// exactly one reply.
func (c *Client) Analyze(ctx context.Context, apiKey string, image domain.StillImage, prompt string) (string, error) {
	if apiKey == "" {
		return "", domain.ErrMissingCredential
	}

	genReq := generateRequest{
		Contents: []content{{
			Parts: []part{
				{Text: prompt},
				{InlineData: &inlineData{
					MIMEType: image.MIMEType,
					Data:     base64.StdEncoding.EncodeToString(image.Data),
				}},
			},
		}},
	}

	payload, err := json.Marshal(genReq)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		c.baseURL, c.model, url.QueryEscape(apiKey))

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("analysis request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("analysis request failed with status %d", resp.StatusCode)
	}

	var genResp generateResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}

	if len(genResp.Candidates) == 0 ||
		len(genResp.Candidates[0].Content.Parts) == 0 ||
		genResp.Candidates[0].Content.Parts[0].Text == "" {
		return config.FallbackReply, nil
	}

	return genResp.Candidates[0].Content.Parts[0].Text, nil
}
