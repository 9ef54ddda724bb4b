package tutor

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/harsh8423/BookX-AI-based-digital-content-explainer/internal/session"
)

// Transcriber converts a captured WAV question to text.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// Chat produces the tutor's answer text.
type Chat interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// ChatStreamer is an optional Chat extension that emits the answer as a
// stream of fragments before returning the whole text.
type ChatStreamer interface {
	Stream(ctx context.Context, system, user string, onChunk func(string)) (string, error)
}

// Synthesizer renders the answer as a playable audio payload.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

const answerSystemPrompt = "You are a patient tutor answering a student's spoken question about material " +
	"they are listening to. Answer conversationally in at most four sentences, grounded in the " +
	"explanation context you are given. If the question is unrelated to the material, gently steer back to it."

// Service answers voice questions in one blocking round trip through the
// transcription, chat, and synthesis providers.
type Service struct {
	stt         Transcriber
	chat        Chat
	tts         Synthesizer
	audioFormat string
}

func NewService(stt Transcriber, chat Chat, tts Synthesizer) *Service {
	return &Service{stt: stt, chat: chat, tts: tts, audioFormat: "mp3"}
}

func (s *Service) Ask(ctx context.Context, pdfID string, questionAudio []byte, explanationText, topic string) (*session.QAResult, error) {
	return s.AskStream(ctx, pdfID, questionAudio, explanationText, topic, session.QAHooks{})
}

// AskStream is Ask with mid-flight observation: the transcript fires as soon
// as transcription finishes, and answer fragments fire as the model emits
// them when the chat provider supports streaming.
func (s *Service) AskStream(ctx context.Context, pdfID string, questionAudio []byte, explanationText, topic string, hooks session.QAHooks) (*session.QAResult, error) {
	question, err := s.stt.Transcribe(ctx, questionAudio)
	if err != nil {
		return nil, fmt.Errorf("transcribe question: %w", err)
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question transcript empty")
	}
	log.Printf("[%s] question: %q", pdfID, question)
	if hooks.OnTranscript != nil {
		hooks.OnTranscript(question)
	}

	user := buildPrompt(topic, explanationText, question)
	var answer string
	if streamer, ok := s.chat.(ChatStreamer); ok && hooks.OnAnswerDelta != nil {
		answer, err = streamer.Stream(ctx, answerSystemPrompt, user, hooks.OnAnswerDelta)
	} else {
		answer, err = s.chat.Complete(ctx, answerSystemPrompt, user)
	}
	if err != nil {
		return nil, fmt.Errorf("answer question: %w", err)
	}
	if answer == "" {
		return nil, fmt.Errorf("empty answer")
	}

	audio, err := s.tts.Synthesize(ctx, answer)
	if err != nil {
		return nil, fmt.Errorf("synthesize answer: %w", err)
	}

	return &session.QAResult{
		QuestionText: question,
		AnswerText:   answer,
		AnswerAudio:  audio,
		AudioFormat:  s.audioFormat,
	}, nil
}

// AskText answers an already-written question, skipping transcription. The
// result still carries synthesized audio so HTTP clients can play the answer;
// QuestionText stays empty because nothing was transcribed.
func (s *Service) AskText(ctx context.Context, pdfID, question, explanationText, topic string) (*session.QAResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("empty question")
	}
	answer, err := s.chat.Complete(ctx, answerSystemPrompt, buildPrompt(topic, explanationText, question))
	if err != nil {
		return nil, fmt.Errorf("answer question: %w", err)
	}
	if answer == "" {
		return nil, fmt.Errorf("empty answer")
	}
	audio, err := s.tts.Synthesize(ctx, answer)
	if err != nil {
		return nil, fmt.Errorf("synthesize answer: %w", err)
	}
	return &session.QAResult{
		AnswerText:  answer,
		AnswerAudio: audio,
		AudioFormat: s.audioFormat,
	}, nil
}

func buildPrompt(topic, explanationText, question string) string {
	var b strings.Builder
	if topic != "" {
		b.WriteString("Topic: ")
		b.WriteString(topic)
		b.WriteString("\n\n")
	}
	if explanationText != "" {
		b.WriteString("Explanation the student is listening to:\n")
		b.WriteString(truncate(explanationText, 6000))
		b.WriteString("\n\n")
	}
	b.WriteString("Student's question: ")
	b.WriteString(question)
	return b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
