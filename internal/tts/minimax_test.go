package tts

import (
	"context"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func redirectTo(srv *httptest.Server) *http.Client {
	return &http.Client{Timeout: time.Second, Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		req.URL.Scheme = "http"
		req.URL.Host = srv.Listener.Addr().String()
		return http.DefaultTransport.RoundTrip(req)
	})}
}

func TestMinimax_RejectsMissingCredentials(t *testing.T) {
	m := NewMinimaxClient("", "", "")
	if _, err := m.Synthesize(context.Background(), "hello"); err == nil {
		t.Fatalf("expected error with missing credentials")
	}
	m = NewMinimaxClient("key", "group", "")
	if _, err := m.Synthesize(context.Background(), ""); err == nil {
		t.Fatalf("expected error with empty text")
	}
}

func TestMinimax_DecodesHexAudio(t *testing.T) {
	mp3 := []byte{0xFF, 0xFB, 0x90, 0x00, 0x01, 0x02}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("GroupId"); got != "group-1" {
			t.Errorf("GroupId = %q", got)
		}
		_, _ = w.Write([]byte(`{"data":{"audio":"` + hex.EncodeToString(mp3) + `"},"base_resp":{"status_code":0}}`))
	}))
	defer srv.Close()

	m := NewMinimaxClient("key", "group-1", "")
	m.HTTPClient = redirectTo(srv)
	audio, err := m.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if string(audio) != string(mp3) {
		t.Fatalf("decoded audio mismatch: %x", audio)
	}
}

func TestMinimax_SurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{},"base_resp":{"status_code":1004,"status_msg":"invalid key"}}`))
	}))
	defer srv.Close()
	m := NewMinimaxClient("key", "group-1", "")
	m.HTTPClient = redirectTo(srv)
	if _, err := m.Synthesize(context.Background(), "hello"); err == nil {
		t.Fatalf("expected api error")
	}
}

func TestMinimax_RejectsBadHex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"audio":"zz-not-hex"},"base_resp":{"status_code":0}}`))
	}))
	defer srv.Close()
	m := NewMinimaxClient("key", "group-1", "")
	m.HTTPClient = redirectTo(srv)
	if _, err := m.Synthesize(context.Background(), "hello"); err == nil {
		t.Fatalf("expected hex decode error")
	}
}

func TestDeepgram_StreamPCM16k_NoKey(t *testing.T) {
	d := NewDeepgramClient("", "")
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	pcmCh, errCh := d.StreamPCM16k(ctx, "hello")
	select {
	case err := <-errCh:
		if err == nil {
			t.Fatalf("expected error when api key missing")
		}
	case <-pcmCh:
	case <-time.After(300 * time.Millisecond):
		t.Fatalf("timeout waiting for error")
	}
}

func TestDeepgram_ForwardPCMBlocksInsteadOfDropping(t *testing.T) {
	out := make(chan []byte, 1)
	out <- []byte{0x01}

	done := make(chan error, 1)
	go func() { done <- forwardPCM(context.Background(), out, []byte{0x02, 0x03}) }()

	select {
	case <-done:
		t.Fatalf("forward returned while the channel was full")
	case <-time.After(20 * time.Millisecond):
	}

	if got := <-out; got[0] != 0x01 {
		t.Fatalf("first chunk = %x", got)
	}
	if err := <-done; err != nil {
		t.Fatalf("forward: %v", err)
	}
	if got := <-out; len(got) != 2 || got[0] != 0x02 {
		t.Fatalf("second chunk = %x", got)
	}
}

func TestDeepgram_ForwardPCMHonorsCancel(t *testing.T) {
	out := make(chan []byte) // no consumer
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- forwardPCM(ctx, out, []byte{0x01}) }()
	cancel()
	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expected context error")
		}
	case <-time.After(time.Second):
		t.Fatalf("forward did not observe cancellation")
	}
}
