package explainws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/harsh8423/BookX-AI-based-digital-content-explainer/internal/capture"
	"github.com/harsh8423/BookX-AI-based-digital-content-explainer/internal/notes"
	"github.com/harsh8423/BookX-AI-based-digital-content-explainer/internal/playback"
	"github.com/harsh8423/BookX-AI-based-digital-content-explainer/internal/session"
)

// NoteFinder looks up the saved note for a section, nil when absent.
type NoteFinder interface {
	FindNote(ctx context.Context, pdfID, topic, sectionTitle, subsectionTitle string) (*notes.Note, error)
}

// Deps are the collaborators shared by all connections. Each connection gets
// its own recorder, playback manager, and session controller.
type Deps struct {
	Transport session.Transport
	Tutor     session.QAService
	Saver     session.NoteSaver
	Notes     NoteFinder
	Timeout   time.Duration
}

// Handler serves the interactive explanation socket. One socket carries one
// session at a time; a new start command replaces the finished session.
type Handler struct {
	deps     Deps
	upgrader websocket.Upgrader
}

func NewHandler(deps Deps) *Handler {
	return &Handler{
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) Register(e *echo.Echo, auth echo.MiddlewareFunc) {
	e.GET("/ws/explain/:pdfID", h.Serve, auth)
}

func (h *Handler) Serve(c echo.Context) error {
	pdfID := c.Param("pdfID")
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	conn := &wsConn{ws: ws}

	// microphone codec is fixed per connection: raw PCM16 by default, Opus
	// packets when the client asks for them at connect time
	captureRate := capture.TargetSampleRate
	if c.QueryParam("codec") == "opus" {
		captureRate = 48000
	}
	recorder := capture.NewRecorder(nil, captureRate)
	var feeder *capture.OpusFeeder
	if captureRate == 48000 {
		feeder, err = capture.NewOpusFeeder(recorder)
		if err != nil {
			_ = ws.Close()
			return err
		}
	}
	manager := playback.NewManager(conn)

	// the event callbacks need the controller they belong to; bind late
	var ctrl *session.Controller
	events := h.events(conn, func() (string, bool) {
		return ctrl.TextContent(), ctrl.Cached()
	})
	ctrl = session.NewController(pdfID, h.deps.Transport, h.deps.Tutor, recorder, manager,
		h.deps.Saver, events, h.deps.Timeout)

	log.Printf("[%s] explain socket open (session %s)", pdfID, ctrl.ID())
	conn.send(serverMsg{Type: msgConnected})

	h.readLoop(c.Request().Context(), conn, ctrl, feeder, pdfID)

	ctrl.Stop()
	manager.Stop()
	_ = ws.Close()
	log.Printf("[%s] explain socket closed (session %s)", pdfID, ctrl.ID())
	return nil
}

// events maps session activity onto wire messages. State transitions carry
// enough context to disambiguate: a move to Playing can mean fresh content,
// a user resume, or the automatic resume after an answer.
func (h *Handler) events(conn *wsConn, info func() (text string, cached bool)) session.Events {
	return session.Events{
		OnStateChange: func(old, new session.State) {
			switch {
			case new == session.Playing && old == session.Generating:
				text, cached := info()
				conn.send(serverMsg{Type: msgExplanationStart, Text: text, Cached: cached})
			case new == session.Playing && (old == session.Paused || old == session.AwaitingQuestion):
				conn.send(serverMsg{Type: msgExplanationResumed, State: new.String()})
			case new == session.Playing && old == session.AnsweringQuestion:
				conn.send(serverMsg{Type: msgTutorAudioComplete})
				conn.send(serverMsg{Type: msgExplanationResumed, State: new.String()})
			case new == session.Paused && old == session.AnsweringQuestion:
				conn.send(serverMsg{Type: msgTutorAudioComplete})
				conn.send(serverMsg{Type: msgExplanationPaused, State: new.String()})
			case new == session.Paused:
				conn.send(serverMsg{Type: msgExplanationPaused, State: new.String()})
			case new == session.AwaitingQuestion:
				conn.send(serverMsg{Type: msgQuestionReceived, State: new.String()})
			case new == session.AnsweringQuestion:
				conn.send(serverMsg{Type: msgTutorAudioStart})
			case new == session.Completed:
				conn.send(serverMsg{Type: msgExplanationComplete, State: new.String()})
			case new == session.Stopped:
				conn.send(serverMsg{Type: msgExplanationStopped, State: new.String()})
			}
		},
		OnWarning: func(err error) {
			conn.send(serverMsg{Type: msgWarning, Message: err.Error()})
		},
		OnFailure: func(err error) {
			conn.send(serverMsg{Type: msgError, Message: err.Error()})
		},
		OnQuestionTranscribed: func(text string) {
			conn.send(serverMsg{Type: msgTranscript, Text: text})
		},
		OnAnswerDelta: func(delta string) {
			conn.send(serverMsg{Type: msgTutorResponseChunk, Chunk: delta})
		},
		OnAnswer: func(question, answer string) {
			conn.send(serverMsg{Type: msgTutorResponseDone, Response: answer})
		},
	}
}

func (h *Handler) readLoop(ctx context.Context, conn *wsConn, ctrl *session.Controller, feeder *capture.OpusFeeder, pdfID string) {
	for {
		msgType, data, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}
		switch msgType {
		case websocket.BinaryMessage:
			// the first audio frame opens the question capture; an explicit
			// start_question command is also accepted
			if ctrl.State() != session.AwaitingQuestion {
				if err := ctrl.AskQuestion(); err != nil {
					log.Printf("[%s] question frame dropped: %v", pdfID, err)
					continue
				}
			}
			if feeder != nil {
				// the recorder ignores packets outside an open question
				if err := feeder.FeedPacket(data); err != nil {
					log.Printf("[%s] opus packet dropped: %v", pdfID, err)
				}
				continue
			}
			ctrl.FeedQuestionAudio(capture.DecodePCM16LE(data))
		case websocket.TextMessage:
			var cmd clientMsg
			if err := json.Unmarshal(data, &cmd); err != nil {
				conn.send(serverMsg{Type: msgError, Message: "invalid message"})
				continue
			}
			h.handleCommand(ctx, conn, ctrl, pdfID, cmd)
		}
	}
}

func (h *Handler) handleCommand(ctx context.Context, conn *wsConn, ctrl *session.Controller, pdfID string, cmd clientMsg) {
	switch cmd.Type {
	case cmdStartExplanation:
		go func() {
			if h.deps.Notes != nil {
				note, err := h.deps.Notes.FindNote(ctx, pdfID, cmd.Topic, cmd.SectionTitle, cmd.SubsectionTitle)
				if err != nil {
					log.Printf("[%s] note lookup failed: %v", pdfID, err)
				} else if note != nil {
					conn.send(serverMsg{Type: msgExistingNoteFound, Note: &noteMsg{
						ID:              note.ID.String(),
						Topic:           note.Topic,
						SectionTitle:    note.SectionTitle,
						SubsectionTitle: note.SubsectionTitle,
						AudioURL:        note.AudioURL,
						CreatedAt:       note.CreatedAt.Format(time.RFC3339),
					}})
				}
			}
			// Rejections (e.g. a second start while one explanation is
			// already playing) return before the failure event fires, so
			// the error goes back over the socket here.
			if err := ctrl.Request(ctx, session.GenerateParams{
				PDFID:           pdfID,
				Topic:           cmd.Topic,
				SectionTitle:    cmd.SectionTitle,
				SubsectionTitle: cmd.SubsectionTitle,
				StartPage:       cmd.StartPage,
				EndPage:         cmd.EndPage,
				Content:         cmd.Content,
				ReadingContent:  cmd.ReadingContent,
			}); err != nil {
				conn.send(serverMsg{Type: msgError, Message: err.Error()})
			}
		}()
	case cmdPauseExplanation:
		if err := ctrl.Pause(); err != nil {
			conn.send(serverMsg{Type: msgError, Message: err.Error()})
		}
	case cmdResumeExplanation:
		if err := ctrl.Resume(ctx); err != nil {
			conn.send(serverMsg{Type: msgError, Message: err.Error()})
		}
	case cmdStopExplanation:
		ctrl.Stop()
	case cmdStartQuestion:
		if err := ctrl.AskQuestion(); err != nil {
			conn.send(serverMsg{Type: msgError, Message: err.Error()})
		}
	case cmdEndQuestion:
		go func() {
			if err := ctrl.EndQuestion(ctx); err != nil {
				conn.send(serverMsg{Type: msgError, Message: err.Error()})
			}
		}()
	default:
		conn.send(serverMsg{Type: msgError, Message: "unknown message type"})
	}
}

// wsConn serializes all writes on one socket and doubles as the playback
// sink, so paced audio and event messages share a single writer.
type wsConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *wsConn) send(msg serverMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.WriteJSON(msg); err != nil {
		log.Printf("ws write failed: %v", err)
	}
}

// WriteAudio implements playback.Sink.
func (c *wsConn) WriteAudio(kind playback.Kind, chunk []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(serverMsg{
		Type:  msgAudioChunk,
		Track: kind.String(),
		Data:  base64.StdEncoding.EncodeToString(chunk),
	})
}

// Reset implements playback.Sink. Delivery is paced chunk by chunk, so there
// is no queued audio to drop on our side; clients clear their own buffers on
// pause and stop messages.
func (c *wsConn) Reset() {}
