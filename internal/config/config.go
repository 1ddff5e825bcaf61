package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	BotToken            string
	AdminUserIDs        []int64
	BotTransport        string
	WebhookURL          string
	WebhookListenAddr   string
	BotPollingIntervalS int
	DataDir             string
	RegistryBackend     string
	DatabasePath        string
	RegistryJSONPath    string
	MongoURI            string
	MongoDBName         string
	HTTPTimeout         time.Duration
	HealthPort          int
	LogLevel            string
	LogFilePath         string
	LogMaxSizeMB        int
	LogMaxBackups       int
	LogMaxAgeDays       int

	ProbeMaxRetries      int
	ProbeRetryDelay      time.Duration
	ProbeBackoff         string
	ProbeReferenceUserID int64
	InviteTimeout        time.Duration
	InviteLinkTTL        time.Duration
	AdminSweepInterval   time.Duration
	AdminSweepAutoStart  bool
}

func LoadFromEnv() (Config, error) {
	dataDir := defaultString(os.Getenv("DATA_DIR"), "./data")
	adminIDs, err := parseInt64List(os.Getenv("ADMIN_USER_IDS"))
	if err != nil {
		return Config{}, fmt.Errorf("parse ADMIN_USER_IDS: %w", err)
	}
	referenceIDs, err := parseInt64List(os.Getenv("PROBE_REFERENCE_USER_ID"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PROBE_REFERENCE_USER_ID: %w", err)
	}
	var referenceID int64
	if len(referenceIDs) > 0 {
		referenceID = referenceIDs[0]
	}

	pollingInterval, err := parseIntWithDefault("BOT_POLLING_INTERVAL_SECONDS", 2)
	if err != nil {
		return Config{}, err
	}
	httpTimeoutMs, err := parseIntWithDefault("HTTP_TIMEOUT_MS", 60000)
	if err != nil {
		return Config{}, err
	}
	healthPort, err := parseIntWithDefault("HEALTH_PORT", 4098)
	if err != nil {
		return Config{}, err
	}
	maxRetries, err := parseIntWithDefault("PROBE_MAX_RETRIES", 3)
	if err != nil {
		return Config{}, err
	}
	retryDelayMs, err := parseIntWithDefault("PROBE_RETRY_DELAY_MS", 1000)
	if err != nil {
		return Config{}, err
	}
	inviteTimeoutS, err := parseIntWithDefault("INVITE_TIMEOUT_SECONDS", 60)
	if err != nil {
		return Config{}, err
	}
	inviteTTLS, err := parseIntWithDefault("INVITE_LINK_TTL_SECONDS", 60)
	if err != nil {
		return Config{}, err
	}
	sweepMinutes, err := parseIntWithDefault("ADMIN_SWEEP_INTERVAL_MINUTES", 60)
	if err != nil {
		return Config{}, err
	}
	sweepAutoStart, err := parseBoolWithDefault("ADMIN_SWEEP_AUTOSTART", false)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		BotToken:             strings.TrimSpace(os.Getenv("BOT_TOKEN")),
		AdminUserIDs:         adminIDs,
		BotTransport:         defaultString(os.Getenv("BOT_TRANSPORT"), "polling"),
		WebhookURL:           strings.TrimSpace(os.Getenv("WEBHOOK_URL")),
		WebhookListenAddr:    defaultString(os.Getenv("WEBHOOK_LISTEN_ADDR"), ":8090"),
		BotPollingIntervalS:  pollingInterval,
		DataDir:              dataDir,
		RegistryBackend:      strings.ToLower(defaultString(os.Getenv("REGISTRY_BACKEND"), "sqlite")),
		DatabasePath:         filepath.Join(dataDir, "promoter.db"),
		RegistryJSONPath:     defaultString(os.Getenv("REGISTRY_JSON_PATH"), filepath.Join(dataDir, "chats.json")),
		MongoURI:             strings.TrimSpace(os.Getenv("MONGO_URI")),
		MongoDBName:          defaultString(os.Getenv("MONGO_DB_NAME"), "admin_promoter"),
		HTTPTimeout:          time.Duration(httpTimeoutMs) * time.Millisecond,
		HealthPort:           healthPort,
		LogLevel:             defaultString(os.Getenv("LOG_LEVEL"), "info"),
		LogFilePath:          filepath.Join(dataDir, "logs", "promoter.log"),
		LogMaxSizeMB:         10,
		LogMaxBackups:        5,
		LogMaxAgeDays:        14,
		ProbeMaxRetries:      maxRetries,
		ProbeRetryDelay:      time.Duration(retryDelayMs) * time.Millisecond,
		ProbeBackoff:         strings.ToLower(defaultString(os.Getenv("PROBE_BACKOFF"), "fixed")),
		ProbeReferenceUserID: referenceID,
		InviteTimeout:        time.Duration(inviteTimeoutS) * time.Second,
		InviteLinkTTL:        time.Duration(inviteTTLS) * time.Second,
		AdminSweepInterval:   time.Duration(sweepMinutes) * time.Minute,
		AdminSweepAutoStart:  sweepAutoStart,
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// OperatorChatID is where asynchronous reports go when no command chat is known.
func (c Config) OperatorChatID() int64 {
	if len(c.AdminUserIDs) == 0 {
		return 0
	}
	return c.AdminUserIDs[0]
}

func validate(cfg Config) error {
	if cfg.BotToken == "" {
		return errors.New("BOT_TOKEN is required")
	}
	if len(cfg.AdminUserIDs) == 0 {
		return errors.New("ADMIN_USER_IDS is required")
	}
	if cfg.BotTransport != "polling" && cfg.BotTransport != "webhook" {
		return fmt.Errorf("BOT_TRANSPORT must be polling or webhook: got %q", cfg.BotTransport)
	}
	if cfg.BotTransport == "webhook" && cfg.WebhookURL == "" {
		return errors.New("WEBHOOK_URL is required when BOT_TRANSPORT=webhook")
	}
	switch cfg.RegistryBackend {
	case "sqlite", "json":
	case "mongo":
		if cfg.MongoURI == "" {
			return errors.New("MONGO_URI is required when REGISTRY_BACKEND=mongo")
		}
	default:
		return fmt.Errorf("REGISTRY_BACKEND must be sqlite, json or mongo: got %q", cfg.RegistryBackend)
	}
	if cfg.ProbeBackoff != "fixed" && cfg.ProbeBackoff != "exponential" {
		return fmt.Errorf("PROBE_BACKOFF must be fixed or exponential: got %q", cfg.ProbeBackoff)
	}
	if cfg.ProbeMaxRetries <= 0 {
		return fmt.Errorf("PROBE_MAX_RETRIES must be > 0: got %d", cfg.ProbeMaxRetries)
	}
	if cfg.InviteTimeout <= 0 || cfg.InviteLinkTTL <= 0 {
		return errors.New("INVITE_TIMEOUT_SECONDS and INVITE_LINK_TTL_SECONDS must be > 0")
	}
	if cfg.AdminSweepInterval <= 0 {
		return fmt.Errorf("ADMIN_SWEEP_INTERVAL_MINUTES must be > 0: got %s", cfg.AdminSweepInterval)
	}
	if cfg.HealthPort <= 0 {
		return fmt.Errorf("HEALTH_PORT must be > 0: got %d", cfg.HealthPort)
	}
	return nil
}

func parseIntWithDefault(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be integer: %w", key, err)
	}
	return v, nil
}

func parseBoolWithDefault(key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be boolean: %w", key, err)
	}
	return v, nil
}

func parseInt64List(raw string) ([]int64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	parts := strings.Split(trimmed, ",")
	out := make([]int64, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		v, err := strconv.ParseInt(item, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid numeric ID %q: %w", item, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}
