package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/saboarena/tournament-engine/handicap"
	"github.com/saboarena/tournament-engine/seeding"
)

// Config holds every setting of the server, read from the environment.
type Config struct {
	// DatabaseURL selects Postgres. Without it the server runs on an
	// in-memory repository seeded from FixtureFile.
	DatabaseURL  string
	FixtureFile  string
	JWTSecretKey string
	ServerPort   int

	BracketMaxParticipants int
	DefaultRaceTo          int
	SeedingMode            seeding.Mode
	SeedingSalt            string
	HandicapMode           handicap.Mode
	UnrankedAsK            bool

	// ArchiveInterval of zero disables the archive sweep.
	ArchiveInterval time.Duration

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicBaseURL   string

	AllowedOrigins []string
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromLookup(os.LookupEnv)
}

// FromLookup builds the configuration from an arbitrary variable source.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	cfg := &Config{
		DatabaseURL:       get("DATABASE_URL", ""),
		FixtureFile:       get("FIXTURE_FILE", ""),
		JWTSecretKey:      get("JWT_SECRET_KEY", ""),
		SeedingSalt:       get("SEEDING_SALT", ""),
		R2AccountID:       get("R2_ACCOUNT_ID", ""),
		R2AccessKeyID:     get("R2_ACCESS_KEY_ID", ""),
		R2SecretAccessKey: get("R2_SECRET_ACCESS_KEY", ""),
		R2BucketName:      get("R2_BUCKET_NAME", ""),
		R2PublicBaseURL:   get("R2_PUBLIC_BASE_URL", ""),
	}

	if cfg.DatabaseURL != "" && cfg.JWTSecretKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	var err error
	if cfg.ServerPort, err = strconv.Atoi(get("SERVER_PORT", "8080")); err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT environment variable: %w", err)
	}
	if cfg.ServerPort <= 0 || cfg.ServerPort > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", cfg.ServerPort)
	}

	if cfg.BracketMaxParticipants, err = strconv.Atoi(get("BRACKET_MAX_PARTICIPANTS", "256")); err != nil {
		return nil, fmt.Errorf("invalid BRACKET_MAX_PARTICIPANTS environment variable: %w", err)
	}
	if cfg.BracketMaxParticipants < 2 {
		return nil, fmt.Errorf("BRACKET_MAX_PARTICIPANTS must be at least 2, got %d", cfg.BracketMaxParticipants)
	}

	if cfg.DefaultRaceTo, err = strconv.Atoi(get("DEFAULT_RACE_TO", "8")); err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_RACE_TO environment variable: %w", err)
	}
	if cfg.DefaultRaceTo <= 0 {
		return nil, fmt.Errorf("DEFAULT_RACE_TO must be positive, got %d", cfg.DefaultRaceTo)
	}

	if cfg.SeedingMode, err = seeding.ParseMode(get("SEEDING_MODE", string(seeding.ModeByRankDesc))); err != nil {
		return nil, fmt.Errorf("invalid SEEDING_MODE environment variable: %w", err)
	}
	if cfg.HandicapMode, err = handicap.ParseMode(get("HANDICAP_MODE", string(handicap.ModeRaceExtension))); err != nil {
		return nil, fmt.Errorf("invalid HANDICAP_MODE environment variable: %w", err)
	}
	if cfg.UnrankedAsK, err = strconv.ParseBool(get("UNRANKED_AS_K", "true")); err != nil {
		return nil, fmt.Errorf("invalid UNRANKED_AS_K environment variable: %w", err)
	}

	if cfg.ArchiveInterval, err = time.ParseDuration(get("ARCHIVE_INTERVAL", "10m")); err != nil {
		return nil, fmt.Errorf("invalid ARCHIVE_INTERVAL environment variable: %w", err)
	}
	if cfg.ArchiveInterval < 0 {
		return nil, fmt.Errorf("ARCHIVE_INTERVAL must not be negative, got %s", cfg.ArchiveInterval)
	}

	for _, origin := range strings.Split(get("ALLOWED_ORIGINS", "*"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}

	return cfg, nil
}

// RequireStore reports an error when neither a database nor a fixture is
// configured, since an empty in-memory repository cannot serve any tournament.
func (c *Config) RequireStore() error {
	if c.DatabaseURL == "" && c.FixtureFile == "" {
		return fmt.Errorf("DATABASE_URL or FIXTURE_FILE environment variable must be set")
	}
	return nil
}
