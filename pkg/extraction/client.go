package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sujithprog/receipt-scanner/domain"
)

// receiptPrompt asks for every field the normalizer knows how to map.
const receiptPrompt = "Extract all information from this receipt, including: store name, " +
	"date, items purchased, prices, subtotal, tax, and total amount. " +
	"Format the response as a structured JSON object."

const defaultMaxTokens = 1000

type (
	// Client extracts receipt text from an image via a vision-capable
	// completion endpoint. The returned text is free-form and is expected,
	// but not guaranteed, to contain a JSON object.
	Client interface {
		ExtractReceipt(ctx context.Context, imageURL string) (string, error)
	}

	visionClient struct {
		apiURL     string
		apiKey     string
		model      string
		httpClient *http.Client
	}

	chatRequest struct {
		Model     string        `json:"model"`
		Messages  []chatMessage `json:"messages"`
		MaxTokens int           `json:"max_tokens"`
	}

	chatMessage struct {
		Role    string        `json:"role"`
		Content []contentPart `json:"content"`
	}

	contentPart struct {
		Type     string        `json:"type"`
		Text     string        `json:"text,omitempty"`
		ImageURL *imageContent `json:"image_url,omitempty"`
	}

	imageContent struct {
		URL string `json:"url"`
	}

	chatResponse struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
)

func NewClient(apiURL, apiKey, model string) Client {
	return &visionClient{
		apiURL: apiURL,
		apiKey: apiKey,
		model:  model,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (c *visionClient) ExtractReceipt(ctx context.Context, imageURL string) (string, error) {
	requestBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []contentPart{
					{Type: "text", Text: receiptPrompt},
					{Type: "image_url", ImageURL: &imageContent{URL: imageURL}},
				},
			},
		},
		MaxTokens: defaultMaxTokens,
	}

	requestJSON, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrExtractionFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewBuffer(requestJSON))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrExtractionFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrExtractionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: vision API error: %s - %s", domain.ErrExtractionFailed, resp.Status, string(bodyBytes))
	}

	var completion chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrExtractionFailed, err)
	}

	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%w: empty completion", domain.ErrExtractionFailed)
	}

	return completion.Choices[0].Message.Content, nil
}
