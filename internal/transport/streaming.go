package transport

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/harsh8423/BookX-AI-based-digital-content-explainer/internal/capture"
	"github.com/harsh8423/BookX-AI-based-digital-content-explainer/internal/notes"
	"github.com/harsh8423/BookX-AI-based-digital-content-explainer/internal/playback"
	"github.com/harsh8423/BookX-AI-based-digital-content-explainer/internal/session"
)

// TextStreamer produces explanation text as a stream of deltas.
type TextStreamer interface {
	Stream(ctx context.Context, system, user string, onChunk func(string)) (string, error)
}

// SpeechStreamer synthesizes text as a live stream of 16 kHz linear16 chunks.
type SpeechStreamer interface {
	StreamPCM16k(ctx context.Context, text string) (<-chan []byte, <-chan error)
}

// ObjectStore persists a finished asset and returns its public URL.
type ObjectStore interface {
	Upload(key, contentType string, data []byte) (string, error)
}

// NoteFinder reports a previously completed note for the same section.
type NoteFinder interface {
	FindNote(ctx context.Context, pdfID, topic, sectionTitle, subsectionTitle string) (*notes.Note, error)
}

// AssetFetcher retrieves a stored audio asset by key.
type AssetFetcher interface {
	Download(key string) ([]byte, error)
}

// Progress lets the host observe generation as it happens. Both callbacks are
// optional and fire from the generating goroutine.
type Progress struct {
	OnTextDelta  func(delta string)
	OnAudioChunk func(chunk []byte)
}

// Streaming generates explanations over live provider streams. Text deltas
// and audio chunks are observable while generation runs, but the content is
// handed to playback only once the audio stream completes; a half-delivered
// stream never plays.
type Streaming struct {
	text     TextStreamer
	speech   SpeechStreamer
	store    ObjectStore
	finder   NoteFinder
	fetch    AssetFetcher
	progress Progress
	closed   atomic.Bool
}

func NewStreaming(text TextStreamer, speech SpeechStreamer, store ObjectStore, progress Progress) *Streaming {
	return &Streaming{text: text, speech: speech, store: store, progress: progress}
}

// EnableNoteReuse makes Generate serve completed sections from their saved
// note instead of regenerating: stored audio replays as-is, and a note whose
// audio asset is gone gets fresh narration for its stored text.
func (t *Streaming) EnableNoteReuse(finder NoteFinder, fetch AssetFetcher) {
	t.finder = finder
	t.fetch = fetch
}

// Close marks the transport unusable. In-flight generations are cancelled
// through their contexts by the caller.
func (t *Streaming) Close() {
	t.closed.Store(true)
}

func (t *Streaming) Generate(ctx context.Context, params session.GenerateParams) (*session.Content, error) {
	if t.closed.Load() {
		return nil, ErrTransportClosed
	}

	if t.finder != nil {
		if content := t.reuseNote(ctx, params); content != nil {
			return content, nil
		}
	}

	text, err := t.text.Stream(ctx, explanationSystemPrompt, explanationPrompt(params), t.progress.OnTextDelta)
	if err != nil {
		return nil, fmt.Errorf("%w: text stream: %v", ErrGenerationFailed, err)
	}
	if text == "" {
		return nil, fmt.Errorf("%w: empty explanation text", ErrGenerationFailed)
	}
	return t.narrate(ctx, params, text, false)
}

// reuseNote serves a previously completed section from its saved note. A nil
// return means generation should proceed normally.
func (t *Streaming) reuseNote(ctx context.Context, params session.GenerateParams) *session.Content {
	note, err := t.finder.FindNote(ctx, params.PDFID, params.Topic, params.SectionTitle, params.SubsectionTitle)
	if err != nil {
		log.Printf("streaming transport: note lookup failed: %v", err)
		return nil
	}
	if note == nil || note.TextContent == "" {
		return nil
	}

	if note.AudioURL != "" && t.fetch != nil {
		key := notes.CacheKey(params.PDFID, params.Topic, params.StartPage, params.EndPage) + ".wav"
		wav, err := t.fetch.Download(key)
		if err == nil {
			if pcm, _, derr := capture.DecodeWAV(wav); derr == nil {
				return &session.Content{
					TextContent: note.TextContent,
					Audio:       playback.BytesSource(pcm),
					AudioURL:    note.AudioURL,
					Cached:      true,
				}
			}
		}
		log.Printf("streaming transport: stored audio unusable, renarrating: %v", err)
	}

	// audio asset missing; narrate the stored text again
	content, err := t.narrate(ctx, params, note.TextContent, true)
	if err != nil {
		log.Printf("streaming transport: renarration failed, regenerating: %v", err)
		return nil
	}
	return content
}

// narrate synthesizes text into the playback asset and uploads the durable
// copy when object storage is configured.
func (t *Streaming) narrate(ctx context.Context, params session.GenerateParams, text string, cached bool) (*session.Content, error) {
	buf := playback.NewChunkBuffer()
	pcmCh, errCh := t.speech.StreamPCM16k(ctx, text)
	for chunk := range pcmCh {
		buf.Append(chunk)
		if t.progress.OnAudioChunk != nil {
			t.progress.OnAudioChunk(chunk)
		}
	}
	if serr := <-errCh; serr != nil {
		return nil, fmt.Errorf("%w: speech stream: %v", ErrGenerationFailed, serr)
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("%w: no audio produced", ErrGenerationFailed)
	}
	buf.Complete()

	pcm, err := buf.Bytes(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	var audioURL string
	if t.store != nil {
		wav := capture.EncodeWAV(capture.DecodePCM16LE(pcm), capture.TargetSampleRate)
		key := notes.CacheKey(params.PDFID, params.Topic, params.StartPage, params.EndPage) + ".wav"
		audioURL, err = t.store.Upload(key, "audio/wav", wav)
		if err != nil {
			// playback proceeds from memory; only the durable copy is lost
			log.Printf("streaming transport: asset upload failed: %v", err)
			audioURL = ""
		}
	}

	return &session.Content{
		TextContent: text,
		Audio:       playback.BytesSource(pcm),
		AudioURL:    audioURL,
		Cached:      cached,
	}, nil
}
