package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress string

	GroqAPIKey    string
	GroqChatModel string
	GroqSTTModel  string

	DeepgramAPIKey string
	DeepgramModel  string

	MinimaxAPIKey  string
	MinimaxGroupID string
	MinimaxVoice   string

	SupabaseURL        string
	SupabaseServiceKey string
	SupabaseBucket     string

	PostgresDSN string

	JWTSecret string

	// RequestTimeout bounds generation and Q&A round trips.
	RequestTimeout time.Duration
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file loaded")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	groqKey := os.Getenv("GROQ_API_KEY")
	if groqKey == "" {
		log.Println("Warning: GROQ_API_KEY not set - tutor answers and transcription will not work")
	}
	chatModel := os.Getenv("GROQ_CHAT_MODEL")
	if chatModel == "" {
		chatModel = "llama-3.1-8b-instant"
	}
	sttModel := os.Getenv("GROQ_STT_MODEL")
	if sttModel == "" {
		sttModel = "whisper-large-v3"
	}

	deepgramKey := os.Getenv("DEEPGRAM_API_KEY")
	if deepgramKey == "" {
		log.Println("Warning: DEEPGRAM_API_KEY not set - streamed narration will not work")
	}
	deepgramModel := os.Getenv("DEEPGRAM_MODEL")
	if deepgramModel == "" {
		deepgramModel = "aura-2-thalia-en"
	}

	minimaxKey := os.Getenv("MINIMAX_API_KEY")
	minimaxGroup := os.Getenv("MINIMAX_GROUP_ID")
	if minimaxKey == "" || minimaxGroup == "" {
		log.Println("Warning: MINIMAX_API_KEY / MINIMAX_GROUP_ID not set - narration assets will not be synthesized")
	}
	minimaxVoice := os.Getenv("MINIMAX_VOICE_ID")

	supabaseURL := os.Getenv("SUPABASE_URL")
	supabaseKey := os.Getenv("SUPABASE_SERVICE_ROLE_KEY")
	supabaseBucket := os.Getenv("SUPABASE_BUCKET")
	if supabaseBucket == "" {
		supabaseBucket = "explanations"
	}
	if supabaseURL == "" || supabaseKey == "" {
		log.Println("Warning: SUPABASE_URL / SUPABASE_SERVICE_ROLE_KEY not set - audio uploads will fail")
	}

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Println("Warning: POSTGRES_DSN not set - notes and explanation cache disabled")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Println("Warning: JWT_SECRET not set - API auth disabled")
	}

	timeout := 45 * time.Second
	if raw := os.Getenv("REQUEST_TIMEOUT_SECONDS"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			timeout = time.Duration(secs) * time.Second
		} else {
			log.Printf("Warning: invalid REQUEST_TIMEOUT_SECONDS=%q, using default", raw)
		}
	}

	log.Printf("config: HTTP_ADDRESS=%s request_timeout=%s", addr, timeout)
	return Config{
		HTTPAddress:        addr,
		GroqAPIKey:         groqKey,
		GroqChatModel:      chatModel,
		GroqSTTModel:       sttModel,
		DeepgramAPIKey:     deepgramKey,
		DeepgramModel:      deepgramModel,
		MinimaxAPIKey:      minimaxKey,
		MinimaxGroupID:     minimaxGroup,
		MinimaxVoice:       minimaxVoice,
		SupabaseURL:        supabaseURL,
		SupabaseServiceKey: supabaseKey,
		SupabaseBucket:     supabaseBucket,
		PostgresDSN:        dsn,
		JWTSecret:          jwtSecret,
		RequestTimeout:     timeout,
	}
}
