package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPSynthesizer calls an external synthesis service:
//
//	POST {BaseURL}/synthesize {"text": ..., "voice_id": ...}
//	-> {"audio_ref": ..., "audio": <base64>, "content_type": ..., "quality": ..., "duration_ms": ...}
//
// A response carries audio_ref, audio bytes, or both.
type HTTPSynthesizer struct {
	BaseURL string
	Client  *http.Client
}

type synthesizeRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id"`
}

type synthesizeResponse struct {
	AudioRef    string `json:"audio_ref"`
	Audio       []byte `json:"audio"`
	ContentType string `json:"content_type"`
	Quality     string `json:"quality"`
	DurationMS  int64  `json:"duration_ms"`
}

func (h HTTPSynthesizer) Synthesize(ctx context.Context, text, voiceID string) (Audio, error) {
	body, err := json.Marshal(synthesizeRequest{Text: text, VoiceID: voiceID})
	if err != nil {
		return Audio{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(h.BaseURL, "/")+"/synthesize", bytes.NewReader(body))
	if err != nil {
		return Audio{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Audio{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Audio{}, fmt.Errorf("synthesize: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var out synthesizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Audio{}, fmt.Errorf("synthesize: decode: %w", err)
	}
	return Audio{
		Data:        out.Audio,
		ContentType: out.ContentType,
		Ref:         out.AudioRef,
		Quality:     out.Quality,
		Duration:    time.Duration(out.DurationMS) * time.Millisecond,
	}, nil
}
