package session

import (
	"context"
	"errors"

	"github.com/harsh8423/BookX-AI-based-digital-content-explainer/internal/capture"
	"github.com/harsh8423/BookX-AI-based-digital-content-explainer/internal/playback"
)

// State is the lifecycle position of one explanation session.
type State int

const (
	Idle State = iota
	Generating
	Playing
	Paused
	AwaitingQuestion
	AnsweringQuestion
	Completed
	Stopped
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Generating:
		return "generating"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case AwaitingQuestion:
		return "awaiting_question"
	case AnsweringQuestion:
		return "answering_question"
	case Completed:
		return "completed"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether no further transitions are possible except a fresh
// request.
func (s State) Terminal() bool {
	return s == Completed || s == Stopped || s == Failed
}

var (
	// ErrTimeout marks a generation or Q&A round trip that exceeded the
	// configured bound.
	ErrTimeout = errors.New("session: request timed out")
	// ErrInvalidState rejects an operation not valid from the current state.
	ErrInvalidState = errors.New("session: operation not valid in current state")
)

// GenerateParams carries one explanation request to the transport.
type GenerateParams struct {
	PDFID           string
	Topic           string
	SectionTitle    string
	SubsectionTitle string
	StartPage       int
	EndPage         int
	// Content / ReadingContent are optional pre-extracted texts forwarded by
	// the streaming client; the request/response strategy extracts its own.
	Content        string
	ReadingContent string
}

// Content is what a transport strategy produced: the transcript, a playable
// audio source, and whether a previously generated asset was reused.
type Content struct {
	TextContent string
	Audio       playback.Source
	AudioURL    string // set when the audio is a resolved asset
	Cached      bool
}

// Transport hides how explanation content arrives; both delivery strategies
// satisfy it.
type Transport interface {
	Generate(ctx context.Context, params GenerateParams) (*Content, error)
}

// QAResult is one answered user question.
type QAResult struct {
	QuestionText string
	AnswerText   string
	AnswerAudio  []byte
	AudioFormat  string
}

// QAService answers a captured voice question in one blocking round trip.
type QAService interface {
	Ask(ctx context.Context, pdfID string, questionAudio []byte, explanationText, topic string) (*QAResult, error)
}

// QAHooks observe a Q&A round trip while it runs. Both callbacks are
// optional and fire from the goroutine driving the round trip.
type QAHooks struct {
	// OnTranscript delivers the question text as soon as transcription ends.
	OnTranscript func(text string)
	// OnAnswerDelta delivers each answer fragment as the model emits it.
	OnAnswerDelta func(delta string)
}

// QAStreamService is an optional QAService extension whose transcript and
// answer text are observable mid-flight. The controller prefers it when the
// service implements it and the host registered the matching events.
type QAStreamService interface {
	QAService
	AskStream(ctx context.Context, pdfID string, questionAudio []byte, explanationText, topic string, hooks QAHooks) (*QAResult, error)
}

// Capture is the slice of the audio capture unit the controller drives.
type Capture interface {
	Begin() error
	Feed(frame []int16)
	End() (*capture.Question, error)
	Abort()
}

// Player is the slice of the playback session manager the controller drives.
type Player interface {
	PlayMain(ctx context.Context, src playback.Source) error
	PauseMain()
	PauseForQuestion()
	PlayQA(payload []byte) error
	OnMainComplete(func())
	OnQAComplete(func())
	Stop()
}

// SavedNote is the payload emitted to the notes collaborator when a session
// completes naturally.
type SavedNote struct {
	PDFID           string
	Topic           string
	SectionTitle    string
	SubsectionTitle string
	StartPage       int
	EndPage         int
	ReadingContent  string
	TextContent     string
	AudioRef        string
}

// NoteSaver persists completed explanations. Storage must be idempotent per
// (pdf, topic, section, subsection).
type NoteSaver interface {
	SaveNote(ctx context.Context, note SavedNote) error
}

// Events lets the host react to session activity. All callbacks are optional
// and are invoked outside the controller lock.
type Events struct {
	// OnStateChange fires on every transition.
	OnStateChange func(old, new State)
	// OnWarning reports recovered, non-fatal conditions (device unavailable,
	// silence discard).
	OnWarning func(err error)
	// OnFailure reports the terminal error when the session moves to Failed.
	OnFailure func(err error)
	// OnQuestionTranscribed delivers the transcript of a captured question.
	OnQuestionTranscribed func(text string)
	// OnAnswerDelta delivers answer fragments while the tutor is responding.
	// Fires only when the Q&A service supports streaming.
	OnAnswerDelta func(delta string)
	// OnAnswer delivers the tutor's answer text before its audio plays.
	OnAnswer func(questionText, answerText string)
}
