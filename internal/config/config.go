package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/efreitasn/finance/internal/domain"
)

// Quote sources.
const (
	QuoteSourceYahoo = "yahoo"
	QuoteSourceFile  = "file"
)

// Config holds all runtime configuration for the finance server.
type Config struct {
	Port            int
	LogLevel        string
	DatabaseURL     string // empty selects the in-memory store
	StoreTimeout    time.Duration
	QuoteSource     string
	QuotesFile      string
	QuoteTimeout    time.Duration
	YahooBaseURL    string
	InitialCash     decimal.Decimal
	SessionTTL      time.Duration
	BcryptCost      int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// source resolves a key from the environment first, then from the
// optional YAML file, whose keys are the lower-cased variable names.
type source struct {
	file map[string]any
}

// Load reads configuration from environment variables, applies defaults,
// and validates values. It returns an error for any invalid value.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with a YAML file supplying values for every variable
// that is not set in the environment. An empty path means no file.
func LoadFile(path string) (*Config, error) {
	src := &source{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &src.file); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	port, err := src.getInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("invalid PORT: %d out of range", port)
	}

	logLevel := src.getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	storeTimeout, err := src.getDuration("STORE_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid STORE_TIMEOUT: %w", err)
	}

	quoteSource := src.getStr("QUOTE_SOURCE", QuoteSourceYahoo)
	quotesFile := src.getStr("QUOTES_FILE", "")
	switch quoteSource {
	case QuoteSourceYahoo:
	case QuoteSourceFile:
		if quotesFile == "" {
			return nil, fmt.Errorf("QUOTES_FILE is required when QUOTE_SOURCE=%s", QuoteSourceFile)
		}
	default:
		return nil, fmt.Errorf("invalid QUOTE_SOURCE: %q, must be one of: yahoo, file", quoteSource)
	}

	quoteTimeout, err := src.getDuration("QUOTE_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid QUOTE_TIMEOUT: %w", err)
	}

	initialCash, err := domain.ParseAmount(src.getStr("INITIAL_CASH", "10000.00"))
	if err != nil {
		return nil, fmt.Errorf("invalid INITIAL_CASH: %w", err)
	}

	sessionTTL, err := src.getDuration("SESSION_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid SESSION_TTL: %w", err)
	}

	bcryptCost, err := src.getInt("BCRYPT_COST", bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("invalid BCRYPT_COST: %w", err)
	}
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("invalid BCRYPT_COST: %d, must be between %d and %d", bcryptCost, bcrypt.MinCost, bcrypt.MaxCost)
	}

	readTimeout, err := src.getDuration("READ_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid READ_TIMEOUT: %w", err)
	}

	writeTimeout, err := src.getDuration("WRITE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WRITE_TIMEOUT: %w", err)
	}

	idleTimeout, err := src.getDuration("IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid IDLE_TIMEOUT: %w", err)
	}

	shutdownTimeout, err := src.getDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	return &Config{
		Port:            port,
		LogLevel:        logLevel,
		DatabaseURL:     src.getStr("DATABASE_URL", ""),
		StoreTimeout:    storeTimeout,
		QuoteSource:     quoteSource,
		QuotesFile:      quotesFile,
		QuoteTimeout:    quoteTimeout,
		YahooBaseURL:    strings.TrimRight(src.getStr("YAHOO_BASE_URL", "https://query2.finance.yahoo.com"), "/"),
		InitialCash:     initialCash,
		SessionTTL:      sessionTTL,
		BcryptCost:      bcryptCost,
		ReadTimeout:     readTimeout,
		WriteTimeout:    writeTimeout,
		IdleTimeout:     idleTimeout,
		ShutdownTimeout: shutdownTimeout,
	}, nil
}

func (s *source) lookup(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	if v, ok := s.file[strings.ToLower(key)]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

func (s *source) getStr(key, defaultVal string) string {
	v := s.lookup(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func (s *source) getInt(key string, defaultVal int) (int, error) {
	v := s.lookup(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func (s *source) getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := s.lookup(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
