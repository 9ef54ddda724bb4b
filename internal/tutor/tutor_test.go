package tutor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/harsh8423/BookX-AI-based-digital-content-explainer/internal/session"
)

type fakeSTT struct {
	text string
	err  error
}

func (f fakeSTT) Transcribe(ctx context.Context, wav []byte) (string, error) { return f.text, f.err }

type fakeChat struct {
	answer   string
	err      error
	gotUser  string
	gotSys   string
}

func (f *fakeChat) Complete(ctx context.Context, system, user string) (string, error) {
	f.gotSys = system
	f.gotUser = user
	return f.answer, f.err
}

type fakeTTS struct {
	audio []byte
	err   error
	calls int
}

func (f *fakeTTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	f.calls++
	return f.audio, f.err
}

func TestService_AskComposesFullRoundTrip(t *testing.T) {
	chat := &fakeChat{answer: "Entropy counts microstates."}
	tts := &fakeTTS{audio: []byte{0xFF, 0xFB}}
	svc := NewService(fakeSTT{text: " what is entropy? "}, chat, tts)

	res, err := svc.Ask(context.Background(), "pdf-1", []byte("RIFF..."), "Entropy is a measure of disorder.", "Thermodynamics")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if res.QuestionText != "what is entropy?" {
		t.Fatalf("question = %q", res.QuestionText)
	}
	if res.AnswerText != "Entropy counts microstates." {
		t.Fatalf("answer = %q", res.AnswerText)
	}
	if string(res.AnswerAudio) != string(tts.audio) || res.AudioFormat != "mp3" {
		t.Fatalf("audio payload mismatch: %+v", res)
	}
	if !strings.Contains(chat.gotUser, "Topic: Thermodynamics") {
		t.Fatalf("prompt missing topic: %q", chat.gotUser)
	}
	if !strings.Contains(chat.gotUser, "Entropy is a measure of disorder.") {
		t.Fatalf("prompt missing explanation context: %q", chat.gotUser)
	}
	if !strings.Contains(chat.gotUser, "Student's question: what is entropy?") {
		t.Fatalf("prompt missing question: %q", chat.gotUser)
	}
}

func TestService_AskFailsOnEmptyTranscript(t *testing.T) {
	tts := &fakeTTS{}
	svc := NewService(fakeSTT{text: "   "}, &fakeChat{answer: "x"}, tts)
	if _, err := svc.Ask(context.Background(), "pdf-1", []byte("RIFF"), "", ""); err == nil {
		t.Fatalf("expected error on empty transcript")
	}
	if tts.calls != 0 {
		t.Fatalf("synthesis must not run without a transcript")
	}
}

func TestService_AskPropagatesStageErrors(t *testing.T) {
	boom := errors.New("stt down")
	svc := NewService(fakeSTT{err: boom}, &fakeChat{}, &fakeTTS{})
	if _, err := svc.Ask(context.Background(), "pdf-1", []byte("RIFF"), "", ""); !errors.Is(err, boom) {
		t.Fatalf("expected stt error, got %v", err)
	}

	svc = NewService(fakeSTT{text: "q"}, &fakeChat{err: boom}, &fakeTTS{})
	if _, err := svc.Ask(context.Background(), "pdf-1", []byte("RIFF"), "", ""); !errors.Is(err, boom) {
		t.Fatalf("expected chat error, got %v", err)
	}

	svc = NewService(fakeSTT{text: "q"}, &fakeChat{answer: "a"}, &fakeTTS{err: boom})
	if _, err := svc.Ask(context.Background(), "pdf-1", []byte("RIFF"), "", ""); !errors.Is(err, boom) {
		t.Fatalf("expected tts error, got %v", err)
	}
}

type streamChat struct {
	fakeChat
	deltas []string
}

func (f *streamChat) Stream(ctx context.Context, system, user string, onChunk func(string)) (string, error) {
	var full strings.Builder
	for _, d := range f.deltas {
		full.WriteString(d)
		if onChunk != nil {
			onChunk(d)
		}
	}
	return full.String(), nil
}

func TestService_AskStreamDeliversTranscriptThenDeltas(t *testing.T) {
	chat := &streamChat{deltas: []string{"Entropy counts ", "microstates."}}
	svc := NewService(fakeSTT{text: "what is entropy?"}, chat, &fakeTTS{audio: []byte{1}})

	var got []string
	res, err := svc.AskStream(context.Background(), "pdf-1", []byte("RIFF"), "", "",
		session.QAHooks{
			OnTranscript:  func(text string) { got = append(got, "transcript:"+text) },
			OnAnswerDelta: func(delta string) { got = append(got, delta) },
		})
	if err != nil {
		t.Fatalf("ask stream: %v", err)
	}
	if res.AnswerText != "Entropy counts microstates." {
		t.Fatalf("answer = %q", res.AnswerText)
	}
	want := []string{"transcript:what is entropy?", "Entropy counts ", "microstates."}
	if len(got) != len(want) {
		t.Fatalf("hook calls = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("hook order: got %v want %v", got, want)
		}
	}
}

func TestService_AskStreamWithoutDeltaHookUsesComplete(t *testing.T) {
	chat := &streamChat{}
	chat.answer = "whole answer"
	svc := NewService(fakeSTT{text: "q"}, chat, &fakeTTS{audio: []byte{1}})

	res, err := svc.AskStream(context.Background(), "pdf-1", []byte("RIFF"), "", "", session.QAHooks{})
	if err != nil {
		t.Fatalf("ask stream: %v", err)
	}
	if res.AnswerText != "whole answer" {
		t.Fatalf("expected the blocking completion path, got %q", res.AnswerText)
	}
}

func TestService_AskTextSkipsTranscription(t *testing.T) {
	chat := &fakeChat{answer: "Because entropy rises."}
	tts := &fakeTTS{audio: []byte{7}}
	svc := NewService(fakeSTT{err: errors.New("must not be called")}, chat, tts)

	res, err := svc.AskText(context.Background(), "pdf-1", "why?", "Entropy.", "Thermo")
	if err != nil {
		t.Fatalf("ask text: %v", err)
	}
	if res.QuestionText != "" {
		t.Fatalf("text questions carry no transcript, got %q", res.QuestionText)
	}
	if res.AnswerText != "Because entropy rises." || tts.calls != 1 {
		t.Fatalf("answer = %q, synth calls = %d", res.AnswerText, tts.calls)
	}

	if _, err := svc.AskText(context.Background(), "pdf-1", "  ", "", ""); err == nil {
		t.Fatalf("expected error on blank question")
	}
}

func TestService_PromptTruncatesLongExplanations(t *testing.T) {
	chat := &fakeChat{answer: "a"}
	svc := NewService(fakeSTT{text: "q"}, chat, &fakeTTS{audio: []byte{1}})
	long := strings.Repeat("x", 20000)
	if _, err := svc.Ask(context.Background(), "pdf-1", []byte("RIFF"), long, ""); err != nil {
		t.Fatalf("ask: %v", err)
	}
	if len(chat.gotUser) > 7000 {
		t.Fatalf("prompt not truncated: %d bytes", len(chat.gotUser))
	}
}
