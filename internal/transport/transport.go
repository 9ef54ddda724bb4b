package transport

import (
	"errors"
	"strconv"
	"strings"

	"github.com/harsh8423/BookX-AI-based-digital-content-explainer/internal/session"
)

var (
	// ErrGenerationFailed wraps upstream synthesis or text generation errors.
	ErrGenerationFailed = errors.New("explanation generation failed")
	// ErrTransportClosed is returned once a transport is shut down.
	ErrTransportClosed = errors.New("transport closed")
)

const explanationSystemPrompt = "You are an engaging audio narrator explaining textbook material to a student. " +
	"Explain the given content clearly and conversationally, as continuous spoken prose with no headings, " +
	"lists, or markdown. Stay close to the source material and keep a steady teaching pace."

// explanationPrompt renders the generation request as the user message.
func explanationPrompt(p session.GenerateParams) string {
	var b strings.Builder
	if p.Topic != "" {
		b.WriteString("Topic: ")
		b.WriteString(p.Topic)
		b.WriteString("\n")
	}
	if p.SectionTitle != "" {
		b.WriteString("Section: ")
		b.WriteString(p.SectionTitle)
		if p.SubsectionTitle != "" {
			b.WriteString(" / ")
			b.WriteString(p.SubsectionTitle)
		}
		b.WriteString("\n")
	}
	if p.StartPage != 0 || p.EndPage != 0 {
		b.WriteString("Pages ")
		b.WriteString(strconv.Itoa(p.StartPage))
		b.WriteString(" to ")
		b.WriteString(strconv.Itoa(p.EndPage))
		b.WriteString("\n")
	}
	b.WriteString("\nMaterial to explain:\n")
	if p.Content != "" {
		b.WriteString(p.Content)
	} else {
		b.WriteString(p.ReadingContent)
	}
	return b.String()
}
