package explainws

// serverMsg is the envelope for every text frame sent to the client. Audio
// rides in the Data field base64-encoded; binary frames are never sent.
// Field names mirror the client protocol: transcripts use "text", tutor
// answer fragments use "chunk", and the finished answer uses "response".
type serverMsg struct {
	Type     string   `json:"type"`
	Track    string   `json:"track,omitempty"`
	Data     string   `json:"data,omitempty"`
	Text     string   `json:"text,omitempty"`
	Chunk    string   `json:"chunk,omitempty"`
	Response string   `json:"response,omitempty"`
	Message  string   `json:"message,omitempty"`
	Note     *noteMsg `json:"note,omitempty"`
	AudioURL string   `json:"audio_url,omitempty"`
	Cached   bool     `json:"cached,omitempty"`
	State    string   `json:"state,omitempty"`
}

// noteMsg is the payload of an existing_note_found event.
type noteMsg struct {
	ID              string `json:"id"`
	Topic           string `json:"topic"`
	SectionTitle    string `json:"section_title"`
	SubsectionTitle string `json:"subsection_title"`
	AudioURL        string `json:"audio_url"`
	CreatedAt       string `json:"created_at"`
}

// clientMsg is every JSON command a client may send. Binary frames carry
// question audio and have no envelope.
type clientMsg struct {
	Type            string `json:"type"`
	Topic           string `json:"topic"`
	SectionTitle    string `json:"section_title"`
	SubsectionTitle string `json:"subsection_title"`
	StartPage       int    `json:"start_page"`
	EndPage         int    `json:"end_page"`
	Content         string `json:"content"`
	ReadingContent  string `json:"reading_content"`
}

// Server message types.
const (
	msgConnected           = "connected"
	msgExplanationStart    = "explanation_start"
	msgExistingNoteFound   = "existing_note_found"
	msgAudioChunk          = "audio_chunk"
	msgExplanationComplete = "explanation_complete"
	msgExplanationPaused   = "explanation_paused"
	msgExplanationResumed  = "explanation_resumed"
	msgExplanationStopped  = "explanation_stopped"
	msgQuestionReceived    = "question_received"
	msgTranscript          = "transcript"
	msgTutorResponseChunk  = "tutor_response_chunk"
	msgTutorResponseDone   = "tutor_response_complete"
	msgTutorAudioStart     = "tutor_audio_start"
	msgTutorAudioComplete  = "tutor_audio_complete"
	msgWarning             = "warning"
	msgError               = "error"
)

// Client message types.
const (
	cmdStartExplanation  = "start_explanation"
	cmdPauseExplanation  = "pause_explanation"
	cmdResumeExplanation = "resume_explanation"
	cmdStopExplanation   = "stop_explanation"
	cmdStartQuestion     = "start_question"
	cmdEndQuestion       = "end_question"
)
