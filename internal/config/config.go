package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by TERRACE_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("TERRACE_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// APIKey is the shared bearer key for the tool/RPC layer. Empty disables auth.
func APIKey() string {
	return os.Getenv("API_KEY")
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

func AnthropicAPIKey() string {
	return os.Getenv("ANTHROPIC_API_KEY")
}

// EmbeddingProvider returns the configured embedding provider.
// Valid values: openai, mock
func EmbeddingProvider() string {
	p := os.Getenv("EMBEDDING_PROVIDER")
	if p == "" {
		return "openai"
	}
	return p
}

// InterpretProvider returns the provider backing the interpretive selector.
// Valid values: openai, anthropic, mock
func InterpretProvider() string {
	p := os.Getenv("INTERPRET_PROVIDER")
	if p == "" {
		return "openai"
	}
	return p
}

// InterpretAPIKey returns the API key for the configured interpretive provider.
func InterpretAPIKey() string {
	switch InterpretProvider() {
	case "anthropic":
		return AnthropicAPIKey()
	case "mock":
		return ""
	default:
		return OpenAIAPIKey()
	}
}

// ScoutTimeout bounds each scout call during fan-out.
// Defaults to 800ms if not set.
func ScoutTimeout() time.Duration {
	ms, err := strconv.Atoi(os.Getenv("SCOUT_TIMEOUT_MS"))
	if err != nil || ms <= 0 {
		return 800 * time.Millisecond
	}
	return time.Duration(ms) * time.Millisecond
}

// TemperatureHigh is the threshold above which terrace 2 always fires and
// an exploration round is issued. Defaults to 0.6.
func TemperatureHigh() float64 {
	return floatEnv("TEMPERATURE_HIGH", 0.6)
}

// TemperatureLow is the synthesis-class escalation threshold. Defaults to 0.25.
func TemperatureLow() float64 {
	return floatEnv("TEMPERATURE_LOW", 0.25)
}

// ConsolidationInterval is the background worker cadence. Defaults to 1h.
func ConsolidationInterval() time.Duration {
	mins, err := strconv.Atoi(os.Getenv("CONSOLIDATION_INTERVAL_MINUTES"))
	if err != nil || mins <= 0 {
		return time.Hour
	}
	return time.Duration(mins) * time.Minute
}

// DecayInterval is the salience decay worker cadence. Defaults to 6h.
func DecayInterval() time.Duration {
	mins, err := strconv.Atoi(os.Getenv("DECAY_INTERVAL_MINUTES"))
	if err != nil || mins <= 0 {
		return 6 * time.Hour
	}
	return time.Duration(mins) * time.Minute
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

func floatEnv(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return def
	}
	return v
}
