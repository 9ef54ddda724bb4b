package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/harsh8423/BookX-AI-based-digital-content-explainer/internal/notes"
	"github.com/harsh8423/BookX-AI-based-digital-content-explainer/internal/playback"
	"github.com/harsh8423/BookX-AI-based-digital-content-explainer/internal/session"
)

type fakeExplainer struct {
	content *session.Content
	err     error
	got     session.GenerateParams
}

func (f *fakeExplainer) Generate(ctx context.Context, p session.GenerateParams) (*session.Content, error) {
	f.got = p
	return f.content, f.err
}

type fakeTutor struct {
	result *session.QAResult
	err    error
}

func (f *fakeTutor) Ask(ctx context.Context, pdfID string, audio []byte, text, topic string) (*session.QAResult, error) {
	return f.result, f.err
}

func (f *fakeTutor) AskText(ctx context.Context, pdfID, question, text, topic string) (*session.QAResult, error) {
	if f.result == nil {
		return nil, f.err
	}
	// text questions have no transcript
	res := *f.result
	res.QuestionText = ""
	return &res, f.err
}

type fakeNotes struct {
	rows []notes.Note
	err  error
}

func (f *fakeNotes) NotesForPDF(ctx context.Context, pdfID string) ([]notes.Note, error) {
	return f.rows, f.err
}

func newTestServer(explainer session.Transport, tutor Tutor, lister NotesLister, secret string) *httptest.Server {
	e := New()
	NewHandlers(explainer, tutor, lister).Register(e, RequireJWT(secret))
	return httptest.NewServer(e)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(&fakeExplainer{}, &fakeTutor{}, &fakeNotes{}, "")
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestExplain_RequiresAuth(t *testing.T) {
	srv := newTestServer(&fakeExplainer{}, &fakeTutor{}, &fakeNotes{}, "secret")
	defer srv.Close()

	body := strings.NewReader(`{"topic":"Thermo","content":"text"}`)
	resp, err := http.Post(srv.URL+"/pdfs/pdf-1/explain", "application/json", body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
}

func TestExplain_GeneratesWithValidToken(t *testing.T) {
	explainer := &fakeExplainer{content: &session.Content{
		TextContent: "Entropy measures disorder.",
		AudioURL:    "https://assets.example/k.mp3",
		Cached:      true,
	}}
	srv := newTestServer(explainer, &fakeTutor{}, &fakeNotes{}, "secret")
	defer srv.Close()

	token, err := MintToken("secret", "user-1", time.Minute)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/pdfs/pdf-7/explain",
		strings.NewReader(`{"topic":"Thermo","start_page":10,"end_page":13,"content":"material"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var out explainResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.TextContent != "Entropy measures disorder." || !out.Cached {
		t.Fatalf("unexpected response: %+v", out)
	}
	if explainer.got.PDFID != "pdf-7" || explainer.got.StartPage != 10 {
		t.Fatalf("params not forwarded: %+v", explainer.got)
	}
}

func TestExplain_InlinesAudioWhenNoAssetURL(t *testing.T) {
	explainer := &fakeExplainer{content: &session.Content{
		TextContent: "text",
		Audio:       playback.BytesSource([]byte{1, 2, 3}),
	}}
	srv := newTestServer(explainer, &fakeTutor{}, &fakeNotes{}, "")
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/pdfs/p/explain", "application/json",
		strings.NewReader(`{"topic":"T","content":"c"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	var out explainResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.AudioBase64 == "" {
		t.Fatalf("expected inlined audio when no asset URL")
	}
}

func TestExplain_ValidationAndUpstreamErrors(t *testing.T) {
	srv := newTestServer(&fakeExplainer{err: errors.New("down")}, &fakeTutor{}, &fakeNotes{}, "")
	defer srv.Close()

	resp, _ := http.Post(srv.URL+"/pdfs/p/explain", "application/json",
		strings.NewReader(`{"content":"c"}`))
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without topic, got %d", resp.StatusCode)
	}

	resp, _ = http.Post(srv.URL+"/pdfs/p/explain", "application/json",
		strings.NewReader(`{"topic":"T","content":"c"}`))
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 on generation failure, got %d", resp.StatusCode)
	}
}

func TestQAText(t *testing.T) {
	tutor := &fakeTutor{result: &session.QAResult{
		AnswerText:  "Because entropy rises.",
		AnswerAudio: []byte{1, 2},
		AudioFormat: "mp3",
	}}
	srv := newTestServer(&fakeExplainer{}, tutor, &fakeNotes{}, "")
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/pdfs/p/qa", "application/json",
		strings.NewReader(`{"question":"why?","explanation_text":"Entropy.","topic":"Thermo"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["answer_text"] != "Because entropy rises." {
		t.Fatalf("answer = %q", out["answer_text"])
	}
	if out["question_text"] != "" {
		t.Fatalf("text qa must not carry a transcript, got %q", out["question_text"])
	}
	if out["audio_base64"] == "" || out["audio_format"] != "mp3" {
		t.Fatalf("expected synthesized answer audio, got %+v", out)
	}
}

func TestQAAudio_MultipartRoundTrip(t *testing.T) {
	tutor := &fakeTutor{result: &session.QAResult{
		QuestionText: "what is entropy?",
		AnswerText:   "disorder",
		AnswerAudio:  []byte{9, 9},
		AudioFormat:  "mp3",
	}}
	srv := newTestServer(&fakeExplainer{}, tutor, &fakeNotes{}, "")
	defer srv.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("audio_file", "q.wav")
	_, _ = fw.Write([]byte("RIFFaudio"))
	_ = mw.WriteField("topic", "Thermo")
	mw.Close()

	resp, err := http.Post(srv.URL+"/pdfs/p/qa/audio", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["question_text"] != "what is entropy?" || out["audio_format"] != "mp3" {
		t.Fatalf("unexpected payload: %v", out)
	}
	if out["audio_base64"] == "" {
		t.Fatalf("expected answer audio")
	}
}

func TestQAAudio_MissingFile(t *testing.T) {
	srv := newTestServer(&fakeExplainer{}, &fakeTutor{}, &fakeNotes{}, "")
	defer srv.Close()
	resp, _ := http.Post(srv.URL+"/pdfs/p/qa/audio", "application/json", strings.NewReader("{}"))
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without audio file, got %d", resp.StatusCode)
	}
}

func TestRequireJWT_RejectsWrongSignature(t *testing.T) {
	srv := newTestServer(&fakeExplainer{}, &fakeTutor{}, &fakeNotes{}, "secret")
	defer srv.Close()

	token, _ := MintToken("other-secret", "user-1", time.Minute)
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/pdfs/p/qa",
		strings.NewReader(`{"question":"q"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 on wrong signature, got %d", resp.StatusCode)
	}
}

func TestRequireJWT_AcceptsQueryToken(t *testing.T) {
	srv := newTestServer(&fakeExplainer{}, &fakeTutor{result: &session.QAResult{AnswerText: "a"}}, &fakeNotes{}, "secret")
	defer srv.Close()

	token, _ := MintToken("secret", "user-1", time.Minute)
	resp, err := http.Post(srv.URL+"/pdfs/p/qa?token="+token, "application/json",
		strings.NewReader(`{"question":"q"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with query token, got %d", resp.StatusCode)
	}
}
