package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/benforcapita/play-app-sub000/config"
)

// SheetExtractor is the contract the worker needs from the LLM gateway.
type SheetExtractor interface {
	ExtractSheet(ctx context.Context, fileName, contentType, fileDataURL string) (string, error)
}

// LLMClient talks to an OpenRouter-compatible chat-completions API to turn a
// character-sheet image or PDF into structured JSON.
type LLMClient struct {
	config     *config.LLMConfig
	httpClient *http.Client
}

func NewLLMClient(cfg *config.LLMConfig) *LLMClient {
	return &LLMClient{
		config: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

type chatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
	Plugins        []plugin          `json:"plugins,omitempty"`
}

// chatMessage content is a plain string for system messages and a slice of
// contentBlock for user messages carrying file payloads.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentBlock struct {
	Type     string         `json:"type"`
	Text     string         `json:"text,omitempty"`
	ImageURL *imageURLBlock `json:"image_url,omitempty"`
	File     *fileBlock     `json:"file,omitempty"`
}

type imageURLBlock struct {
	URL string `json:"url"`
}

type fileBlock struct {
	Filename string `json:"filename"`
	FileData string `json:"file_data"`
}

type plugin struct {
	ID  string     `json:"id"`
	PDF *pdfPlugin `json:"pdf,omitempty"`
}

type pdfPlugin struct {
	Engine string `json:"engine"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// HTTPStatusError reports a non-success status from the LLM API.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("llm request failed with status %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// ExtractSheet sends the stored file to the LLM and returns the assistant's
// text content, expected to be a JSON object keyed by section names.
func (h *LLMClient) ExtractSheet(ctx context.Context, fileName, contentType, fileDataURL string) (string, error) {
	reqBody := chatCompletionRequest{
		Model: h.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: extractionSystemPrompt},
			{Role: "user", Content: h.userContent(fileName, contentType, fileDataURL)},
		},
		Temperature:    0,
		ResponseFormat: map[string]string{"type": "json_object"},
	}
	if contentType == "application/pdf" {
		// The remote file parser needs an explicit engine for PDF-to-text.
		reqBody.Plugins = []plugin{{ID: "file-parser", PDF: &pdfPlugin{Engine: h.config.PDFEngine}}}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := strings.TrimRight(h.config.APIURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+h.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &HTTPStatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result chatCompletionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return result.Choices[0].Message.Content, nil
}

func (h *LLMClient) userContent(fileName, contentType, fileDataURL string) []contentBlock {
	if contentType == "application/pdf" {
		return []contentBlock{
			{Type: "text", Text: "Extract the character sheet from this PDF."},
			{Type: "file", File: &fileBlock{Filename: fileName, FileData: fileDataURL}},
		}
	}
	return []contentBlock{
		{Type: "text", Text: "Extract the character sheet from this image."},
		{Type: "image_url", ImageURL: &imageURLBlock{URL: fileDataURL}},
	}
}
