package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// WhisperClient transcribes short WAV clips through Groq's hosted Whisper.
type WhisperClient struct {
	HTTPClient *http.Client
	APIKey     string
	Model      string
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

const transcriptionEndpoint = "https://api.groq.com/openai/v1/audio/transcriptions"

func NewWhisperClient(apiKey, model string) *WhisperClient {
	return &WhisperClient{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		APIKey:     apiKey,
		Model:      model,
	}
}

// Transcribe uploads one WAV clip and returns its transcript.
func (c *WhisperClient) Transcribe(ctx context.Context, wav []byte) (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("whisper api key missing")
	}
	if len(wav) == 0 {
		return "", fmt.Errorf("whisper: empty audio")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "question.wav")
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(wav); err != nil {
		return "", err
	}
	if err := mw.WriteField("model", c.Model); err != nil {
		return "", err
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, transcriptionEndpoint, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("whisper error: status=%d body=%s", resp.StatusCode, string(b))
	}
	var tr transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", err
	}
	return strings.TrimSpace(tr.Text), nil
}
