package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/zhengjr9/genrelay/internal/gemini"
	"github.com/zhengjr9/genrelay/internal/retry"
)

const (
	BackendRelay  = "relay"
	BackendDirect = "direct"
)

type Config struct {
	GeminiAPIKey     string `mapstructure:"gemini-api-key"`
	GeminiBaseURL    string `mapstructure:"gemini-base-url" validate:"omitempty,url"`
	Model            string `mapstructure:"gemini-model" validate:"required"`
	SpeechModel      string `mapstructure:"speech-model"`
	Backend          string `mapstructure:"backend" validate:"oneof=relay direct"`
	UpstreamProxyURL string `mapstructure:"upstream-proxy-url" validate:"omitempty,url"`

	ListenAddr     string        `mapstructure:"listen-addr" validate:"required"`
	RequestTimeout time.Duration `mapstructure:"request-timeout" validate:"gt=0"`
	MaxBodyBytes   int64         `mapstructure:"max-body-bytes" validate:"gt=0"`
	LogLevel       string        `mapstructure:"log-level" validate:"oneof=debug info warn error"`
	LogFormat      string        `mapstructure:"log-format" validate:"oneof=json text"`

	Retry          retry.Policy `mapstructure:",squash"`
	RateLimitRPS   float64      `mapstructure:"rate-limit-rps" validate:"gte=0"`
	RateLimitBurst int          `mapstructure:"rate-limit-burst" validate:"gte=0"`
	MaxConcurrent  int64        `mapstructure:"max-concurrent" validate:"gte=0"`
	ValidateSchema bool         `mapstructure:"validate-schema"`

	// A2A
	A2AEnabled bool   `mapstructure:"a2a-enabled"`
	A2APort    int    `mapstructure:"a2a-port" validate:"gt=0,lt=65536"`
	AgentName  string `mapstructure:"agent-name" validate:"required_if=A2AEnabled true"`
	AgentDesc  string `mapstructure:"agent-desc"`
	AgentTone  string `mapstructure:"agent-tone" validate:"omitempty,oneof=professional friendly concise academic"`
}

// RegisterFlags declares every setting on fs. Each flag can also be set
// through the matching upper-snake environment variable (gemini-api-key is
// GEMINI_API_KEY) or a YAML file named by --config.
func RegisterFlags(fs *pflag.FlagSet) {
	def := retry.DefaultPolicy()

	fs.String("config", "", "Optional YAML config file")

	fs.String("gemini-api-key", "", "Server-side Gemini API key (callers may send their own)")
	fs.String("gemini-base-url", "", "Gemini API or relay base URL (empty for the public endpoint)")
	fs.String("gemini-model", gemini.DefaultModel, "Model used when a request names none")
	fs.String("speech-model", "", "Model used for speech synthesis")
	fs.String("backend", BackendRelay, "Backend transport: relay (REST) or direct (genai SDK)")
	fs.String("upstream-proxy-url", "", "HTTP/HTTPS proxy for outbound Gemini requests (e.g. http://proxy:8080)")

	fs.String("listen-addr", ":8080", "HTTP listen address")
	fs.Duration("request-timeout", 120*time.Second, "Timeout for a single upstream call")
	fs.Int64("max-body-bytes", 20<<20, "Maximum request body size")
	fs.String("log-level", "info", "Log level: debug, info, warn, error")
	fs.String("log-format", "json", "Log format: json or text")

	fs.Int("max-retries", def.MaxRetries, "Retries after the first attempt for transient failures")
	fs.Duration("retry-initial-delay", def.InitialDelay, "Delay before the first retry")
	fs.Float64("retry-multiplier", def.Multiplier, "Backoff multiplier between retries")
	fs.Duration("retry-max-delay", 0, "Cap on a single retry delay (0 for none)")
	fs.Float64("rate-limit-rps", 0, "Upstream calls per second across all requests (0 for unlimited)")
	fs.Int("rate-limit-burst", 1, "Token bucket burst for rate-limit-rps")
	fs.Int64("max-concurrent", 0, "Maximum in-flight upstream calls (0 for unlimited)")
	fs.Bool("validate-schema", true, "Check JSON responses against the requested response schema")

	fs.Bool("a2a-enabled", false, "Enable the A2A server alongside the proxy")
	fs.Int("a2a-port", 8000, "A2A server listen port")
	fs.String("agent-name", "genrelay", "A2A AgentCard name")
	fs.String("agent-desc", "Polishes text through Gemini, exposed via the A2A protocol", "A2A AgentCard description")
	fs.String("agent-tone", "", "Tone the A2A agent polishes in: professional, friendly, concise or academic (empty for the studio default)")
}

// Load resolves the configuration from flags, environment, an optional config
// file and defaults, in that order of precedence.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and the retry policy.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
