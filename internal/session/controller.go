package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harsh8423/BookX-AI-based-digital-content-explainer/internal/capture"
	"github.com/harsh8423/BookX-AI-based-digital-content-explainer/internal/playback"
)

// Controller owns one explanation session's state machine. Every transition
// happens inside its lock; collaborator callbacks run after the lock is
// released, in transition order.
type Controller struct {
	id        string
	pdfID     string
	transport Transport
	qa        QAService
	capt      Capture
	player    Player
	notes     NoteSaver
	events    Events
	timeout   time.Duration

	mu              sync.Mutex
	state           State
	params          GenerateParams
	textContent     string
	audioSrc        playback.Source
	audioRef        string
	cached          bool
	resumeTo        State // state to return to once a question round ends
	tutorResponding bool
	lastErr         error
}

// NewController wires a controller for one pdf. timeout bounds generation and
// Q&A round trips; zero means 45s.
func NewController(pdfID string, tr Transport, qa QAService, capt Capture, player Player, notes NoteSaver, events Events, timeout time.Duration) *Controller {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	c := &Controller{
		id:        uuid.NewString()[:8],
		pdfID:     pdfID,
		transport: tr,
		qa:        qa,
		capt:      capt,
		player:    player,
		notes:     notes,
		events:    events,
		timeout:   timeout,
		state:     Idle,
	}
	player.OnMainComplete(c.handleMainComplete)
	player.OnQAComplete(c.handleQAComplete)
	return c
}

// ID returns the short session identifier used in logs.
func (c *Controller) ID() string { return c.id }

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// TutorResponding reports whether a Q&A round trip is in flight.
func (c *Controller) TutorResponding() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tutorResponding
}

// TextContent returns the explanation transcript once generated.
func (c *Controller) TextContent() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.textContent
}

// Cached reports whether the backend reused a previously generated asset.
func (c *Controller) Cached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cached
}

// Err returns the terminal error after a move to Failed.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Request generates explanation content and starts main playback. Valid from
// Idle and from any terminal state (a user-initiated re-request). The
// transport's error message is surfaced verbatim; there is no retry here.
func (c *Controller) Request(ctx context.Context, params GenerateParams) error {
	c.mu.Lock()
	if c.state != Idle && !c.state.Terminal() {
		c.mu.Unlock()
		return fmt.Errorf("%w: request from %s", ErrInvalidState, c.state)
	}
	c.params = params
	c.lastErr = nil
	notify := c.setStateLocked(Generating)
	c.mu.Unlock()
	notify()

	genCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	content, err := c.transport.Generate(genCtx, params)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(genCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s", ErrTimeout, c.timeout)
		}
		c.fail(err)
		return err
	}

	c.mu.Lock()
	c.textContent = content.TextContent
	c.audioSrc = content.Audio
	c.audioRef = content.AudioURL
	c.cached = content.Cached
	src := content.Audio
	notify = c.setStateLocked(Playing)
	c.mu.Unlock()
	notify()

	if err := c.player.PlayMain(ctx, src); err != nil {
		c.fail(err)
		return err
	}
	return nil
}

// Pause halts main playback keeping position.
func (c *Controller) Pause() error {
	c.mu.Lock()
	if c.state != Playing {
		c.mu.Unlock()
		return fmt.Errorf("%w: pause from %s", ErrInvalidState, c.state)
	}
	notify := c.setStateLocked(Paused)
	c.mu.Unlock()
	c.player.PauseMain()
	notify()
	return nil
}

// Resume continues main playback from the retained position.
func (c *Controller) Resume(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Paused {
		c.mu.Unlock()
		return fmt.Errorf("%w: resume from %s", ErrInvalidState, c.state)
	}
	src := c.audioSrc
	notify := c.setStateLocked(Playing)
	c.mu.Unlock()
	notify()
	return c.player.PlayMain(ctx, src)
}

// Stop releases playback and capture and moves to Stopped. Valid from any
// non-terminal state and idempotent once stopped.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.state.Terminal() {
		c.mu.Unlock()
		return
	}
	notify := c.setStateLocked(Stopped)
	c.mu.Unlock()
	c.player.Stop()
	c.capt.Abort()
	notify()
}

// AskQuestion pauses main playback and opens the capture. Only valid while
// Playing or Paused. A capture-device failure is reported as a warning and
// leaves the session state untouched.
func (c *Controller) AskQuestion() error {
	c.mu.Lock()
	if c.state != Playing && c.state != Paused {
		c.mu.Unlock()
		return fmt.Errorf("%w: ask from %s", ErrInvalidState, c.state)
	}
	prior := c.state
	c.mu.Unlock()

	// pause first so the capture never races audible output; this also
	// supersedes any pending resume from an earlier exchange
	c.player.PauseForQuestion()

	if err := c.capt.Begin(); err != nil {
		if errors.Is(err, capture.ErrDeviceUnavailable) {
			log.Printf("[%s] capture device unavailable: %v", c.id, err)
			c.warn(err)
			// no state transition; restart output if the user was listening
			if prior == Playing {
				c.mu.Lock()
				src := c.audioSrc
				c.mu.Unlock()
				_ = c.player.PlayMain(context.Background(), src)
			}
			return nil
		}
		return err
	}

	c.mu.Lock()
	c.resumeTo = prior
	notify := c.setStateLocked(AwaitingQuestion)
	c.mu.Unlock()
	notify()
	return nil
}

// EndQuestion seals the capture and runs the Q&A round trip. A silent capture
// returns straight to the prior state without contacting the service.
func (c *Controller) EndQuestion(ctx context.Context) error {
	c.mu.Lock()
	if c.state != AwaitingQuestion {
		c.mu.Unlock()
		return fmt.Errorf("%w: end question from %s", ErrInvalidState, c.state)
	}
	prior := c.resumeTo
	c.mu.Unlock()

	q, err := c.capt.End()
	if err != nil {
		if errors.Is(err, capture.ErrSilenceDiscarded) {
			c.warn(err)
			c.returnTo(prior)
			return nil
		}
		c.fail(err)
		return err
	}

	c.mu.Lock()
	notify := c.setStateLocked(AnsweringQuestion)
	c.tutorResponding = true
	text := c.textContent
	topic := c.params.Topic
	c.mu.Unlock()
	notify()

	qaCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	var result *QAResult
	streamer, streaming := c.qa.(QAStreamService)
	if streaming && (c.events.OnQuestionTranscribed != nil || c.events.OnAnswerDelta != nil) {
		result, err = streamer.AskStream(qaCtx, c.pdfID, q.AudioPayload, text, topic, QAHooks{
			OnTranscript:  c.events.OnQuestionTranscribed,
			OnAnswerDelta: c.events.OnAnswerDelta,
		})
	} else {
		streaming = false
		result, err = c.qa.Ask(qaCtx, c.pdfID, q.AudioPayload, text, topic)
	}
	c.mu.Lock()
	c.tutorResponding = false
	c.mu.Unlock()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(qaCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s", ErrTimeout, c.timeout)
		}
		c.fail(err)
		return err
	}

	// the streaming path already delivered the transcript through its hook
	if !streaming && c.events.OnQuestionTranscribed != nil && result.QuestionText != "" {
		c.events.OnQuestionTranscribed(result.QuestionText)
	}
	if c.events.OnAnswer != nil {
		c.events.OnAnswer(result.QuestionText, result.AnswerText)
	}

	if err := c.player.PlayQA(result.AnswerAudio); err != nil {
		c.fail(err)
		return err
	}
	return nil
}

// FeedQuestionAudio forwards raw capture frames while a question is open.
func (c *Controller) FeedQuestionAudio(frame []int16) {
	c.mu.Lock()
	open := c.state == AwaitingQuestion
	c.mu.Unlock()
	if open {
		c.capt.Feed(frame)
	}
}

// handleMainComplete runs when the main track drains naturally.
func (c *Controller) handleMainComplete() {
	c.mu.Lock()
	if c.state != Playing {
		// stop or a raced transition already owns the state
		c.mu.Unlock()
		return
	}
	notify := c.setStateLocked(Completed)
	note := SavedNote{
		PDFID:           c.pdfID,
		Topic:           c.params.Topic,
		SectionTitle:    c.params.SectionTitle,
		SubsectionTitle: c.params.SubsectionTitle,
		StartPage:       c.params.StartPage,
		EndPage:         c.params.EndPage,
		ReadingContent:  c.params.ReadingContent,
		TextContent:     c.textContent,
		AudioRef:        c.audioRef,
	}
	saver := c.notes
	c.mu.Unlock()
	notify()
	if saver != nil {
		if err := saver.SaveNote(context.Background(), note); err != nil {
			log.Printf("[%s] note save failed: %v", c.id, err)
		}
	}
}

// handleQAComplete runs once per answered question; the playback manager
// guarantees exactly-once delivery.
func (c *Controller) handleQAComplete() {
	c.mu.Lock()
	if c.state != AnsweringQuestion {
		c.mu.Unlock()
		return
	}
	notify := c.setStateLocked(c.resumeTo)
	c.mu.Unlock()
	notify()
}

func (c *Controller) returnTo(prior State) {
	c.mu.Lock()
	src := c.audioSrc
	notify := c.setStateLocked(prior)
	c.mu.Unlock()
	notify()
	if prior == Playing {
		_ = c.player.PlayMain(context.Background(), src)
	}
}

func (c *Controller) fail(err error) {
	c.mu.Lock()
	if c.state.Terminal() {
		c.mu.Unlock()
		return
	}
	c.lastErr = err
	notify := c.setStateLocked(Failed)
	c.mu.Unlock()
	c.player.Stop()
	c.capt.Abort()
	log.Printf("[%s] session failed: %v", c.id, err)
	notify()
	if c.events.OnFailure != nil {
		c.events.OnFailure(err)
	}
}

func (c *Controller) warn(err error) {
	if c.events.OnWarning != nil {
		c.events.OnWarning(err)
	}
}

// setStateLocked records a transition and returns the deferred notification;
// callers hold the lock and invoke the returned func after releasing it.
func (c *Controller) setStateLocked(next State) func() {
	old := c.state
	if old == next {
		return func() {}
	}
	c.state = next
	log.Printf("[%s] %s -> %s", c.id, old, next)
	cb := c.events.OnStateChange
	if cb == nil {
		return func() {}
	}
	return func() { cb(old, next) }
}
