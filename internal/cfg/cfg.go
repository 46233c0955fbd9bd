package cfg

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"
)

// Config holds the firstline service settings. It satisfies the go-core
// cfg.Registerable and cfg.Validatable interfaces.
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APIToken              string
	L3AuthCodes           string
	SessionTTL            time.Duration
	MaxInflightDeliveries int
	DirectoryFile         string
	DatabaseURL           string
	KafkaBrokers          string
	KafkaTopic            string
	SlackWebhookURL       string
	TelegramToken         string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 3978, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "comma-separated bearer tokens for /api/v1 (empty = no auth)")
	fs.StringVar(&c.L3AuthCodes, "l3-auth-codes", "", "comma-separated codes that unlock L3 escalation")
	fs.DurationVar(&c.SessionTTL, "session-ttl", 30*time.Minute, "idle time after which a draft is discarded")
	fs.IntVar(&c.MaxInflightDeliveries, "max-inflight-deliveries", 16, "concurrent summary deliveries (1..1024)")
	fs.StringVar(&c.DirectoryFile, "directory-file", "", "YAML contact directory (empty = builtin)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL for the report archive (empty = disabled)")
	fs.StringVar(&c.KafkaBrokers, "kafka-brokers", "", "comma-separated Kafka brokers for report events (empty = disabled)")
	fs.StringVar(&c.KafkaTopic, "kafka-topic", "firstline.summaries", "Kafka topic for report events")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "default Slack webhook for summaries")
	fs.StringVar(&c.TelegramToken, "telegram-token", "", "Telegram bot token (empty = transport disabled)")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if len(c.AuthCodes()) == 0 {
		errs = append(errs, errors.New("L3_AUTH_CODES is required"))
	}

	if c.SessionTTL < time.Minute || c.SessionTTL > 24*time.Hour {
		errs = append(errs, fmt.Errorf("invalid SESSION_TTL %s (must be 1m..24h)", c.SessionTTL))
	}

	if c.MaxInflightDeliveries <= 0 || c.MaxInflightDeliveries > 1024 {
		errs = append(errs, fmt.Errorf("invalid MAX_INFLIGHT_DELIVERIES %d (must be 1..1024)", c.MaxInflightDeliveries))
	}

	// A broker list without a topic has nowhere to write
	if len(c.Brokers()) > 0 && strings.TrimSpace(c.KafkaTopic) == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// AuthCodes returns the configured L3 authorization codes.
func (c *Config) AuthCodes() []string { return splitList(c.L3AuthCodes) }

// APITokens returns the accepted API bearer tokens.
func (c *Config) APITokens() []string { return splitList(c.APIToken) }

// Brokers returns the configured Kafka broker addresses.
func (c *Config) Brokers() []string { return splitList(c.KafkaBrokers) }

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
