package tts

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// MinimaxClient renders a whole explanation to a single MP3 asset. Used by
// the request/response transport, where audio is stored and replayed rather
// than streamed.
type MinimaxClient struct {
	HTTPClient *http.Client
	APIKey     string
	GroupID    string
	VoiceID    string
}

type minimaxVoiceSetting struct {
	VoiceID string  `json:"voice_id"`
	Speed   float64 `json:"speed"`
	Vol     float64 `json:"vol"`
	Pitch   int     `json:"pitch"`
}

type minimaxAudioSetting struct {
	SampleRate int    `json:"sample_rate"`
	Bitrate    int    `json:"bitrate"`
	Format     string `json:"format"`
	Channel    int    `json:"channel"`
}

type minimaxRequest struct {
	Model        string              `json:"model"`
	Text         string              `json:"text"`
	Stream       bool                `json:"stream"`
	VoiceSetting minimaxVoiceSetting `json:"voice_setting"`
	AudioSetting minimaxAudioSetting `json:"audio_setting"`
}

type minimaxResponse struct {
	Data struct {
		Audio string `json:"audio"`
	} `json:"data"`
	BaseResp struct {
		StatusCode int    `json:"status_code"`
		StatusMsg  string `json:"status_msg"`
	} `json:"base_resp"`
}

const minimaxEndpoint = "https://api.minimax.io/v1/t2a_v2"

func NewMinimaxClient(apiKey, groupID, voiceID string) *MinimaxClient {
	if voiceID == "" {
		voiceID = "English_expressive_narrator"
	}
	return &MinimaxClient{
		HTTPClient: &http.Client{Timeout: 120 * time.Second},
		APIKey:     apiKey,
		GroupID:    groupID,
		VoiceID:    voiceID,
	}
}

// Synthesize returns the full MP3 for text. The API ships audio hex-encoded
// in a JSON envelope.
func (m *MinimaxClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if m.APIKey == "" || m.GroupID == "" {
		return nil, fmt.Errorf("minimax: api key or group id missing")
	}
	if text == "" {
		return nil, fmt.Errorf("minimax: empty text")
	}

	reqBody, _ := json.Marshal(minimaxRequest{
		Model:  "speech-02-turbo",
		Text:   text,
		Stream: false,
		VoiceSetting: minimaxVoiceSetting{
			VoiceID: m.VoiceID,
			Speed:   1.0,
			Vol:     1.0,
			Pitch:   0,
		},
		AudioSetting: minimaxAudioSetting{
			SampleRate: 32000,
			Bitrate:    128000,
			Format:     "mp3",
			Channel:    1,
		},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, minimaxEndpoint+"?GroupId="+m.GroupID, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+m.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("minimax error: status=%d body=%s", resp.StatusCode, string(b))
	}

	var mr minimaxResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return nil, err
	}
	if mr.BaseResp.StatusCode != 0 {
		return nil, fmt.Errorf("minimax error: code=%d msg=%s", mr.BaseResp.StatusCode, mr.BaseResp.StatusMsg)
	}
	if mr.Data.Audio == "" {
		return nil, fmt.Errorf("minimax: empty audio payload")
	}
	audio, err := hex.DecodeString(mr.Data.Audio)
	if err != nil {
		return nil, fmt.Errorf("minimax: decode audio hex: %w", err)
	}
	return audio, nil
}
