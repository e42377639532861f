package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures environment driven configuration values for the scheduler service.
type Config struct {
	SQLitePath        string
	SQLiteBusyTimeout time.Duration

	LogLevel  string
	LogFormat string

	// AMQPURL selects the broker for booking events. Empty means events are only logged.
	AMQPURL   string
	AMQPQueue string

	// RedisAddr selects a shared membership cache. Empty means an in-process cache.
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	MembershipCacheTTL time.Duration

	MaxDescriptionLength int
	AllowPastForAdmins   bool
	Location             *time.Location

	RelayInterval  time.Duration
	RelayBatchSize int
}

// LoadDotEnv copies variables from the given .env files (default ".env") into the
// process environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf(".env ファイルを読み込めません (%s): %w", path, err)
		}
	}
	return nil
}

// Load parses configuration values from the current process environment.
//
// The loader applies sensible defaults for optional fields and reports every
// malformed variable in a single error.
func Load() (Config, error) {
	cfg := Config{
		SQLitePath:           "scheduler.db",
		SQLiteBusyTimeout:    30 * time.Second,
		LogLevel:             "info",
		LogFormat:            "json",
		AMQPQueue:            "scheduler.events",
		MembershipCacheTTL:   30 * time.Second,
		MaxDescriptionLength: 1000,
		Location:             time.UTC,
		RelayInterval:        time.Second,
		RelayBatchSize:       50,
	}

	invalid := make([]string, 0, 2)

	if path := strings.TrimSpace(os.Getenv("SCHEDULER_SQLITE_PATH")); path != "" {
		cfg.SQLitePath = path
	}
	parseDuration("SCHEDULER_SQLITE_BUSY_TIMEOUT", &cfg.SQLiteBusyTimeout, &invalid)

	if level := strings.ToLower(strings.TrimSpace(os.Getenv("SCHEDULER_LOG_LEVEL"))); level != "" {
		switch level {
		case "debug", "info", "warn", "error":
			cfg.LogLevel = level
		default:
			invalid = append(invalid, "SCHEDULER_LOG_LEVEL")
		}
	}
	if format := strings.ToLower(strings.TrimSpace(os.Getenv("SCHEDULER_LOG_FORMAT"))); format != "" {
		switch format {
		case "json", "text":
			cfg.LogFormat = format
		default:
			invalid = append(invalid, "SCHEDULER_LOG_FORMAT")
		}
	}

	cfg.AMQPURL = strings.TrimSpace(os.Getenv("SCHEDULER_AMQP_URL"))
	if queue := strings.TrimSpace(os.Getenv("SCHEDULER_AMQP_QUEUE")); queue != "" {
		cfg.AMQPQueue = queue
	}

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("SCHEDULER_REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("SCHEDULER_REDIS_PASSWORD")
	if dbValue := strings.TrimSpace(os.Getenv("SCHEDULER_REDIS_DB")); dbValue != "" {
		db, err := strconv.Atoi(dbValue)
		if err != nil || db < 0 {
			invalid = append(invalid, "SCHEDULER_REDIS_DB")
		} else {
			cfg.RedisDB = db
		}
	}
	parseDuration("SCHEDULER_MEMBERSHIP_CACHE_TTL", &cfg.MembershipCacheTTL, &invalid)

	if lengthValue := strings.TrimSpace(os.Getenv("SCHEDULER_MAX_DESCRIPTION_LENGTH")); lengthValue != "" {
		length, err := strconv.Atoi(lengthValue)
		if err != nil || length <= 0 {
			invalid = append(invalid, "SCHEDULER_MAX_DESCRIPTION_LENGTH")
		} else {
			cfg.MaxDescriptionLength = length
		}
	}

	if allowValue := strings.TrimSpace(os.Getenv("SCHEDULER_ALLOW_PAST_FOR_ADMINS")); allowValue != "" {
		allow, err := strconv.ParseBool(allowValue)
		if err != nil {
			invalid = append(invalid, "SCHEDULER_ALLOW_PAST_FOR_ADMINS")
		} else {
			cfg.AllowPastForAdmins = allow
		}
	}

	if zone := strings.TrimSpace(os.Getenv("SCHEDULER_TIMEZONE")); zone != "" {
		location, err := time.LoadLocation(zone)
		if err != nil {
			invalid = append(invalid, "SCHEDULER_TIMEZONE")
		} else {
			cfg.Location = location
		}
	}

	parseDuration("SCHEDULER_RELAY_INTERVAL", &cfg.RelayInterval, &invalid)
	if batchValue := strings.TrimSpace(os.Getenv("SCHEDULER_RELAY_BATCH_SIZE")); batchValue != "" {
		batch, err := strconv.Atoi(batchValue)
		if err != nil || batch <= 0 {
			invalid = append(invalid, "SCHEDULER_RELAY_BATCH_SIZE")
		} else {
			cfg.RelayBatchSize = batch
		}
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("環境変数の値が不正です: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

func parseDuration(key string, target *time.Duration, invalid *[]string) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		*invalid = append(*invalid, key)
		return
	}
	*target = d
}
