package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env         string `mapstructure:"ENV"`
	Port        string `mapstructure:"PORT"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	AdminKey    string `mapstructure:"ADMIN_KEY"`

	// Serverless function endpoints; when unset the deterministic mocks
	// are used. LLM_* switches to a direct OpenAI-compatible backend.
	AIURL      string `mapstructure:"AI_URL"`
	LLMBaseURL string `mapstructure:"LLM_BASE_URL"`
	LLMModel   string `mapstructure:"LLM_MODEL"`
	LLMAPIKey  string `mapstructure:"LLM_API_KEY"`

	CORSAllowed     string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout  time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	AITimeout       time.Duration `mapstructure:"AI_TIMEOUT"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	CountryDefault  string        `mapstructure:"COUNTRY_DEFAULT"`
	MaxUploadSizeMB int64         `mapstructure:"MAX_UPLOAD_MB"`

	ConfidenceThreshold float64       `mapstructure:"CONFIDENCE_THRESHOLD"`
	MaxQuestions        int           `mapstructure:"MAX_QUESTIONS"`
	AICacheSize         int           `mapstructure:"AI_CACHE_SIZE"`
	SessionTTL          time.Duration `mapstructure:"SESSION_TTL"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("AI_TIMEOUT", "12s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("COUNTRY_DEFAULT", "Brasil")
	v.SetDefault("MAX_UPLOAD_MB", 20)
	v.SetDefault("CONFIDENCE_THRESHOLD", 0.7)
	v.SetDefault("MAX_QUESTIONS", 5)
	v.SetDefault("AI_CACHE_SIZE", 256)
	v.SetDefault("SESSION_TTL", "30m")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
