package transport

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/harsh8423/BookX-AI-based-digital-content-explainer/internal/notes"
	"github.com/harsh8423/BookX-AI-based-digital-content-explainer/internal/playback"
	"github.com/harsh8423/BookX-AI-based-digital-content-explainer/internal/session"
)

// TextGenerator produces the whole explanation text in one call.
type TextGenerator interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Synthesizer renders text as one complete audio asset.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Cache is the explanation cache index.
type Cache interface {
	LookupExplanation(ctx context.Context, key string) (*notes.CachedExplanation, error)
	InsertExplanation(ctx context.Context, row notes.CachedExplanation) error
}

// AssetStore stores and retrieves finished audio assets.
type AssetStore interface {
	Upload(key, contentType string, data []byte) (string, error)
	Download(key string) ([]byte, error)
}

// RequestResponse generates explanations as whole assets with a single text
// call followed by a single synthesis call. Identical requests are served
// from the cache without touching the providers.
type RequestResponse struct {
	chat   TextGenerator
	tts    Synthesizer
	cache  Cache
	store  AssetStore
	closed atomic.Bool
}

func NewRequestResponse(chat TextGenerator, tts Synthesizer, cache Cache, store AssetStore) *RequestResponse {
	return &RequestResponse{chat: chat, tts: tts, cache: cache, store: store}
}

func (t *RequestResponse) Close() {
	t.closed.Store(true)
}

func (t *RequestResponse) Generate(ctx context.Context, params session.GenerateParams) (*session.Content, error) {
	if t.closed.Load() {
		return nil, ErrTransportClosed
	}

	key := notes.CacheKey(params.PDFID, params.Topic, params.StartPage, params.EndPage)

	if t.cache != nil {
		hit, err := t.cache.LookupExplanation(ctx, key)
		if err != nil {
			log.Printf("transport: cache lookup failed, regenerating: %v", err)
		} else if hit != nil {
			return &session.Content{
				TextContent: hit.TextContent,
				Audio:       &assetSource{store: t.store, key: key + ".mp3"},
				AudioURL:    hit.AudioURL,
				Cached:      true,
			}, nil
		}
	}

	text, err := t.chat.Complete(ctx, explanationSystemPrompt, explanationPrompt(params))
	if err != nil {
		return nil, fmt.Errorf("%w: generate text: %v", ErrGenerationFailed, err)
	}
	if text == "" {
		return nil, fmt.Errorf("%w: empty explanation text", ErrGenerationFailed)
	}

	audio, err := t.tts.Synthesize(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: synthesize: %v", ErrGenerationFailed, err)
	}

	var audioURL string
	if t.store != nil {
		audioURL, err = t.store.Upload(key+".mp3", "audio/mpeg", audio)
		if err != nil {
			log.Printf("transport: asset upload failed: %v", err)
			audioURL = ""
		}
	}
	if t.cache != nil && audioURL != "" {
		err := t.cache.InsertExplanation(ctx, notes.CachedExplanation{
			CacheKey:    key,
			PDFID:       params.PDFID,
			Topic:       params.Topic,
			StartPage:   params.StartPage,
			EndPage:     params.EndPage,
			TextContent: text,
			AudioURL:    audioURL,
		})
		if err != nil {
			log.Printf("transport: cache insert failed: %v", err)
		}
	}

	return &session.Content{
		TextContent: text,
		Audio:       playback.BytesSource(audio),
		AudioURL:    audioURL,
		Cached:      false,
	}, nil
}

// assetSource fetches a stored asset lazily, at play time.
type assetSource struct {
	store AssetStore
	key   string
}

func (a *assetSource) Bytes(ctx context.Context) ([]byte, error) {
	if a.store == nil {
		return nil, fmt.Errorf("%w: no asset store configured", ErrGenerationFailed)
	}
	data, err := a.store.Download(a.key)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch cached asset: %v", ErrGenerationFailed, err)
	}
	return data, nil
}
