package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// GroqClient talks to the Groq OpenAI-compatible chat completions API.
type GroqClient struct {
	HTTPClient *http.Client
	APIKey     string
	Model      string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionsRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason"`
	Message      chatMessage `json:"message"`
}

type chatCompletionsResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

type streamDelta struct {
	Content string `json:"content"`
}

type streamChoice struct {
	Delta        streamDelta `json:"delta"`
	FinishReason string      `json:"finish_reason"`
}

type streamChunk struct {
	Choices []streamChoice `json:"choices"`
}

const chatEndpoint = "https://api.groq.com/openai/v1/chat/completions"

func NewGroqClient(apiKey, model string) *GroqClient {
	return &GroqClient{
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		APIKey:     apiKey,
		Model:      model,
	}
}

// Complete runs one blocking chat round trip and returns the assistant text.
func (c *GroqClient) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.post(ctx, system, user, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var cr chatCompletionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", err
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("groq: empty choices")
	}
	return strings.TrimSpace(cr.Choices[0].Message.Content), nil
}

// Stream runs a streaming completion, calling onChunk for every text delta,
// and returns the accumulated text.
func (c *GroqClient) Stream(ctx context.Context, system, user string, onChunk func(string)) (string, error) {
	resp, err := c.post(ctx, system, user, true)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			break
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if onChunk != nil {
			onChunk(delta)
		}
	}
	if err := scanner.Err(); err != nil {
		return full.String(), err
	}
	return strings.TrimSpace(full.String()), nil
}

func (c *GroqClient) post(ctx context.Context, system, user string, stream bool) (*http.Response, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("groq api key missing")
	}
	messages := []chatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
	reqBody, _ := json.Marshal(chatCompletionsRequest{
		Model:       c.Model,
		Messages:    messages,
		Temperature: 0.7,
		Stream:      stream,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, chatEndpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("groq error: status=%d body=%s", resp.StatusCode, string(b))
	}
	return resp, nil
}
