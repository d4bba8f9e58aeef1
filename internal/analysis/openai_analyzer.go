package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const systemPrompt = `Role: You are "Sense", a real-time copilot for professional interviewers.
Objective: monitor the candidate's video frame and report behavioral signals and proctoring alerts.

Analysis:
1. Candidate sentiment and vocal confidence.
2. Eye movement and screen focus. If the eyes are not on the screen, add "looking_away_from_screen" to proctoring_alerts.
3. Proctoring anomalies (another person, external devices, reading from another source).
4. Rapport with the interviewer.

Respond ONLY with a JSON object:
{
  "dominant_state": "confident | anxious | neutral | hesitant | enthusiastic",
  "engagement_score": 0-10,
  "eye_focus": "on_screen | looking_left | looking_right | looking_up | looking_down | off_camera",
  "proctoring_alerts": ["..."],
  "smart_nudge": {"action": "short coaching tip, max 8 words", "priority": "low | medium | high"},
  "technical_capture": [{"topic": "string", "sentiment": "positive | negative | neutral"}],
  "pacing": "slow | normal | fast",
  "insight": "One sentence on why the candidate feels this way right now."
}
Set smart_nudge priority to high whenever proctoring_alerts is not empty.`

// OpenAIAnalyzer calls an OpenAI-compatible chat completions endpoint with
// the sample frame as vision input. An audio clip is transcribed first and
// its transcript sent alongside the frame.
type OpenAIAnalyzer struct {
	client *openai.Client
	model  string
}

func NewOpenAIAnalyzer(apiKey, baseURL, model string) *OpenAIAnalyzer {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIAnalyzer{client: openai.NewClientWithConfig(cfg), model: model}
}

func (a *OpenAIAnalyzer) Model() string { return a.model }

func (a *OpenAIAnalyzer) Analyze(ctx context.Context, s Sample) (Fields, error) {
	frame, err := imageDataURL(s.Video)
	if err != nil {
		return nil, err
	}
	clip, err := decodeAudio(s.Audio)
	if err != nil {
		return nil, err
	}

	parts := []openai.ChatMessagePart{
		{Type: openai.ChatMessagePartTypeText, Text: "Analyze this interview segment."},
		{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
			URL:    frame,
			Detail: openai.ImageURLDetailLow,
		}},
	}
	if transcript := a.transcribe(ctx, clip); transcript != "" {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeText,
			Text: "Candidate audio transcript: " + transcript,
		})
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion: no choices")
	}
	return decodeFields(resp.Choices[0].Message.Content)
}

// transcribe returns the clip's transcript. A failed transcription only
// costs the audio signal, so it is logged and the frame analyzed alone.
func (a *OpenAIAnalyzer) transcribe(ctx context.Context, clip *audioClip) string {
	if clip == nil {
		return ""
	}
	resp, err := a.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: "segment." + clip.ext,
		Reader:   bytes.NewReader(clip.data),
	})
	if err != nil {
		zap.L().Warn("analysis.transcribe", zap.Int("bytes", len(clip.data)), zap.Error(err))
		return ""
	}
	return strings.TrimSpace(resp.Text)
}

// decodeFields parses a model reply, tolerating markdown code fences.
func decodeFields(text string) (Fields, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		lines = lines[1:]
		if n := len(lines); n > 0 && strings.HasPrefix(strings.TrimSpace(lines[n-1]), "```") {
			lines = lines[:n-1]
		}
		text = strings.Join(lines, "\n")
	}

	var f Fields
	if err := sonic.UnmarshalString(text, &f); err != nil {
		return nil, fmt.Errorf("decode analyzer reply: %w", err)
	}
	return f, nil
}

// imageDataURL accepts raw base64 or a data URL and returns a data URL.
func imageDataURL(video string) (string, error) {
	payload := video
	prefix := "data:image/jpeg;base64,"
	if strings.HasPrefix(video, "data:") {
		i := strings.Index(video, ",")
		if i < 0 || !strings.HasPrefix(video, "data:image") {
			return "", fmt.Errorf("%w: unsupported video data URL", ErrInvalidSample)
		}
		prefix, payload = video[:i+1], video[i+1:]
	}
	if payload == "" {
		return "", fmt.Errorf("%w: empty video", ErrInvalidSample)
	}
	if _, err := base64.StdEncoding.DecodeString(payload); err != nil {
		return "", fmt.Errorf("%w: video is not base64: %v", ErrInvalidSample, err)
	}
	return prefix + payload, nil
}

type audioClip struct {
	data []byte
	ext  string
}

// decodeAudio accepts raw base64 or an audio data URL. An empty input means
// the sample carries no audio.
func decodeAudio(audio string) (*audioClip, error) {
	if audio == "" {
		return nil, nil
	}
	payload, ext := audio, "wav"
	if strings.HasPrefix(audio, "data:") {
		i := strings.Index(audio, ",")
		if i < 0 || !strings.HasPrefix(audio, "data:audio/") {
			return nil, fmt.Errorf("%w: unsupported audio data URL", ErrInvalidSample)
		}
		mime := strings.TrimPrefix(audio[:i], "data:audio/")
		if j := strings.IndexByte(mime, ';'); j >= 0 {
			mime = mime[:j]
		}
		if mime != "" {
			ext = strings.TrimPrefix(mime, "x-")
		}
		payload = audio[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: audio is not base64: %v", ErrInvalidSample, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty audio", ErrInvalidSample)
	}
	return &audioClip{data: data, ext: ext}, nil
}
