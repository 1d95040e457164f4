// Package config assembles the server configuration from defaults, an
// optional .env file, DEPOT_* environment variables and command-line flags,
// in that order of precedence (later wins).
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything cmd/depot needs to start.
type Config struct {
	DBPath    string
	Addr      string
	AdminUser string
	LogPath   string
	TokenTTL  time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	KafkaBrokers  []string
	KafkaTopic    string
	KafkaUsername string
	KafkaPassword string
	KafkaTLS      bool

	RelayInterval time.Duration
	RelayBatch    int
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		DBPath:        "depot.sqlite3",
		Addr:          ":8080",
		AdminUser:     "Admin",
		TokenTTL:      12 * time.Hour,
		CacheTTL:      30 * time.Second,
		KafkaTopic:    "depot.notifications",
		RelayInterval: 5 * time.Second,
		RelayBatch:    50,
	}
}

// CacheEnabled reports whether a Redis address was configured.
func (c Config) CacheEnabled() bool { return c.RedisAddr != "" }

// RelayEnabled reports whether at least one Kafka broker was configured.
func (c Config) RelayEnabled() bool { return len(c.KafkaBrokers) > 0 }

// Usage is printed for -h.
const Usage = `Usage: depot [flags]

Flags:
  -d, -db <path>          SQLite database path (default: depot.sqlite3)
  -a, -addr <host:port>   listen address (default: :8080)
  -u, -user <name>        admin username on first run (default: Admin)
  -l, -log <path>         log file path (default: no file, stdout/stderr only)
  -e, -env <path>         .env file to load (default: .env, ignored if missing)
  -h, -help               show this help and exit

Environment:
  DEPOT_DB, DEPOT_ADDR, DEPOT_ADMIN_USER, DEPOT_LOG, DEPOT_TOKEN_TTL
  DEPOT_REDIS_ADDR, DEPOT_REDIS_PASSWORD, DEPOT_REDIS_DB, DEPOT_CACHE_TTL
  DEPOT_KAFKA_BROKERS (comma separated), DEPOT_KAFKA_TOPIC,
  DEPOT_KAFKA_USERNAME, DEPOT_KAFKA_PASSWORD, DEPOT_KAFKA_TLS
  DEPOT_RELAY_INTERVAL, DEPOT_RELAY_BATCH
`

// Load parses args (without the program name). It returns flag.ErrHelp
// when -h was given.
func Load(args []string) (*Config, error) {
	envFile := findEnvFile(args)
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", envFile, err)
	}

	cfg := Default()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	fset := flag.NewFlagSet("depot", flag.ContinueOnError)
	fset.SetOutput(io.Discard)
	fset.Usage = func() {}

	fset.StringVar(&cfg.DBPath, "db", cfg.DBPath, "")
	fset.StringVar(&cfg.DBPath, "d", cfg.DBPath, "")
	fset.StringVar(&cfg.Addr, "addr", cfg.Addr, "")
	fset.StringVar(&cfg.Addr, "a", cfg.Addr, "")
	fset.StringVar(&cfg.AdminUser, "user", cfg.AdminUser, "")
	fset.StringVar(&cfg.AdminUser, "u", cfg.AdminUser, "")
	fset.StringVar(&cfg.LogPath, "log", cfg.LogPath, "")
	fset.StringVar(&cfg.LogPath, "l", cfg.LogPath, "")
	var ignored string
	fset.StringVar(&ignored, "env", envFile, "")
	fset.StringVar(&ignored, "e", envFile, "")

	if err := fset.Parse(args); err != nil {
		return nil, err
	}
	if fset.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", fset.Arg(0))
	}
	return &cfg, nil
}

// findEnvFile picks the -e/-env value before the full parse, since the file
// has to be loaded before flag defaults are computed.
func findEnvFile(args []string) string {
	for i, a := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(a, "-"), "=")
		if !strings.HasPrefix(a, "-") || (name != "e" && name != "env") {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ".env"
}

func (c *Config) applyEnv() error {
	c.DBPath = getEnv("DEPOT_DB", c.DBPath)
	c.Addr = getEnv("DEPOT_ADDR", c.Addr)
	c.AdminUser = getEnv("DEPOT_ADMIN_USER", c.AdminUser)
	c.LogPath = getEnv("DEPOT_LOG", c.LogPath)
	c.RedisAddr = getEnv("DEPOT_REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnv("DEPOT_REDIS_PASSWORD", c.RedisPassword)
	c.KafkaTopic = getEnv("DEPOT_KAFKA_TOPIC", c.KafkaTopic)
	c.KafkaUsername = getEnv("DEPOT_KAFKA_USERNAME", c.KafkaUsername)
	c.KafkaPassword = getEnv("DEPOT_KAFKA_PASSWORD", c.KafkaPassword)

	if v := getEnv("DEPOT_KAFKA_BROKERS", ""); v != "" {
		c.KafkaBrokers = nil
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				c.KafkaBrokers = append(c.KafkaBrokers, b)
			}
		}
	}

	var err error
	if c.TokenTTL, err = getDuration("DEPOT_TOKEN_TTL", c.TokenTTL); err != nil {
		return err
	}
	if c.CacheTTL, err = getDuration("DEPOT_CACHE_TTL", c.CacheTTL); err != nil {
		return err
	}
	if c.RelayInterval, err = getDuration("DEPOT_RELAY_INTERVAL", c.RelayInterval); err != nil {
		return err
	}
	if c.RedisDB, err = getInt("DEPOT_REDIS_DB", c.RedisDB); err != nil {
		return err
	}
	if c.RelayBatch, err = getInt("DEPOT_RELAY_BATCH", c.RelayBatch); err != nil {
		return err
	}
	if v := getEnv("DEPOT_KAFKA_TLS", ""); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DEPOT_KAFKA_TLS: %w", err)
		}
		c.KafkaTLS = b
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return i, nil
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := getEnv(key, "")
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: must be positive", key)
	}
	return d, nil
}
