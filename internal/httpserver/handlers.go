package httpserver

import (
	"context"
	"encoding/base64"
	"io"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/harsh8423/BookX-AI-based-digital-content-explainer/internal/notes"
	"github.com/harsh8423/BookX-AI-based-digital-content-explainer/internal/session"
)

// Tutor answers questions about explained material, spoken or typed.
type Tutor interface {
	Ask(ctx context.Context, pdfID string, questionAudio []byte, explanationText, topic string) (*session.QAResult, error)
	AskText(ctx context.Context, pdfID, question, explanationText, topic string) (*session.QAResult, error)
}

// NotesLister reads back saved explanations.
type NotesLister interface {
	NotesForPDF(ctx context.Context, pdfID string) ([]notes.Note, error)
}

// Handlers bundles the HTTP API surface. The explain endpoint runs the
// request/response transport synchronously; interactive playback belongs to
// the WebSocket surface.
type Handlers struct {
	Explainer session.Transport
	Tutor     Tutor
	Notes     NotesLister
}

func NewHandlers(explainer session.Transport, tutor Tutor, notesLister NotesLister) Handlers {
	return Handlers{Explainer: explainer, Tutor: tutor, Notes: notesLister}
}

func (h Handlers) Register(e *echo.Echo, auth echo.MiddlewareFunc) {
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	g := e.Group("/pdfs/:pdfID", auth)
	g.POST("/explain", h.explain)
	g.POST("/qa", h.qaText)
	g.POST("/qa/audio", h.qaAudio)
	g.GET("/notes", h.listNotes)
}

type explainRequest struct {
	Topic           string `json:"topic"`
	SectionTitle    string `json:"section_title"`
	SubsectionTitle string `json:"subsection_title"`
	StartPage       int    `json:"start_page"`
	EndPage         int    `json:"end_page"`
	Content         string `json:"content"`
	ReadingContent  string `json:"reading_content"`
}

type explainResponse struct {
	TextContent string `json:"text_content"`
	AudioURL    string `json:"audio_url,omitempty"`
	AudioBase64 string `json:"audio_base64,omitempty"`
	Topic       string `json:"topic"`
	StartPage   int    `json:"start_page"`
	EndPage     int    `json:"end_page"`
	Cached      bool   `json:"cached"`
}

func (h Handlers) explain(c echo.Context) error {
	var req explainRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Topic == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "topic required")
	}
	if req.Content == "" && req.ReadingContent == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content required")
	}

	content, err := h.Explainer.Generate(c.Request().Context(), session.GenerateParams{
		PDFID:           c.Param("pdfID"),
		Topic:           req.Topic,
		SectionTitle:    req.SectionTitle,
		SubsectionTitle: req.SubsectionTitle,
		StartPage:       req.StartPage,
		EndPage:         req.EndPage,
		Content:         req.Content,
		ReadingContent:  req.ReadingContent,
	})
	if err != nil {
		log.Printf("explain failed for pdf=%s topic=%q: %v", c.Param("pdfID"), req.Topic, err)
		return echo.NewHTTPError(http.StatusBadGateway, "explanation generation failed")
	}

	resp := explainResponse{
		TextContent: content.TextContent,
		AudioURL:    content.AudioURL,
		Topic:       req.Topic,
		StartPage:   req.StartPage,
		EndPage:     req.EndPage,
		Cached:      content.Cached,
	}
	// inline audio only when there is no durable asset to point at
	if content.AudioURL == "" && content.Audio != nil {
		audio, err := content.Audio.Bytes(c.Request().Context())
		if err == nil {
			resp.AudioBase64 = base64.StdEncoding.EncodeToString(audio)
		}
	}
	return c.JSON(http.StatusOK, resp)
}

type qaTextRequest struct {
	Question        string `json:"question"`
	ExplanationText string `json:"explanation_text"`
	Topic           string `json:"topic"`
}

type qaResponse struct {
	QuestionText string `json:"question_text"`
	AnswerText   string `json:"answer_text"`
	AudioBase64  string `json:"audio_base64"`
	AudioFormat  string `json:"audio_format"`
}

func (h Handlers) qaText(c echo.Context) error {
	var req qaTextRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Question == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question required")
	}
	result, err := h.Tutor.AskText(c.Request().Context(), c.Param("pdfID"), req.Question, req.ExplanationText, req.Topic)
	if err != nil {
		log.Printf("qa failed for pdf=%s: %v", c.Param("pdfID"), err)
		return echo.NewHTTPError(http.StatusBadGateway, "answer generation failed")
	}
	return c.JSON(http.StatusOK, qaResponse{
		AnswerText:  result.AnswerText,
		AudioBase64: base64.StdEncoding.EncodeToString(result.AnswerAudio),
		AudioFormat: result.AudioFormat,
	})
}

func (h Handlers) qaAudio(c echo.Context) error {
	file, err := c.FormFile("audio_file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "audio file required")
	}
	f, err := file.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable audio file")
	}
	defer f.Close()
	audio, err := io.ReadAll(io.LimitReader(f, 25<<20))
	if err != nil || len(audio) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "empty audio file")
	}

	result, err := h.Tutor.Ask(c.Request().Context(), c.Param("pdfID"), audio,
		c.FormValue("explanation_text"), c.FormValue("topic"))
	if err != nil {
		log.Printf("voice qa failed for pdf=%s: %v", c.Param("pdfID"), err)
		return echo.NewHTTPError(http.StatusBadGateway, "answer generation failed")
	}
	return c.JSON(http.StatusOK, qaResponse{
		QuestionText: result.QuestionText,
		AnswerText:   result.AnswerText,
		AudioBase64:  base64.StdEncoding.EncodeToString(result.AnswerAudio),
		AudioFormat:  result.AudioFormat,
	})
}

func (h Handlers) listNotes(c echo.Context) error {
	if h.Notes == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "notes storage not configured")
	}
	rows, err := h.Notes.NotesForPDF(c.Request().Context(), c.Param("pdfID"))
	if err != nil {
		log.Printf("list notes failed for pdf=%s: %v", c.Param("pdfID"), err)
		return echo.NewHTTPError(http.StatusInternalServerError, "could not list notes")
	}
	out := make([]map[string]any, 0, len(rows))
	for _, n := range rows {
		out = append(out, map[string]any{
			"id":               n.ID.String(),
			"topic":            n.Topic,
			"section_title":    n.SectionTitle,
			"subsection_title": n.SubsectionTitle,
			"start_page":       n.StartPage,
			"end_page":         n.EndPage,
			"text_content":     n.TextContent,
			"audio_url":        n.AudioURL,
			"updated_at":       n.UpdatedAt,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"notes": out})
}
