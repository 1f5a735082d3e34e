package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// Config captures environment driven configuration values for the live class service.
type Config struct {
	Env                 string
	HTTPPort            int
	SQLiteDSN           string
	Location            *time.Location
	AuthSecret          string
	StreamSecret        string
	StreamTokenTTL      time.Duration
	RedisAddr           string
	MaterializeInterval time.Duration
	MaterializeHorizon  int
	UpcomingHorizon     int
}

// environment holds raw values; typed parsing happens in Load so that every
// bad variable ends up in a single report.
type environment struct {
	Env                 string `env:"LIVECLASS_ENV" env-default:"local"`
	HTTPPort            string `env:"LIVECLASS_HTTP_PORT" env-default:"8080"`
	SQLiteDSN           string `env:"LIVECLASS_SQLITE_DSN" env-default:"file:liveclass.db?_pragma=foreign_keys(1)"`
	Timezone            string `env:"LIVECLASS_TIMEZONE" env-default:"Africa/Cairo"`
	AuthSecret          string `env:"LIVECLASS_AUTH_SECRET"`
	StreamSecret        string `env:"LIVECLASS_STREAM_SECRET"`
	StreamTokenTTL      string `env:"LIVECLASS_STREAM_TOKEN_TTL" env-default:"4h"`
	RedisAddr           string `env:"LIVECLASS_REDIS_ADDR"`
	MaterializeInterval string `env:"LIVECLASS_MATERIALIZE_INTERVAL" env-default:"1m"`
	MaterializeHorizon  string `env:"LIVECLASS_MATERIALIZE_HORIZON_DAYS" env-default:"14"`
	UpcomingHorizon     string `env:"LIVECLASS_UPCOMING_HORIZON_DAYS" env-default:"14"`
}

// Load parses configuration values from the current process environment.
//
// When LIVECLASS_ENV_FILE names a dotenv file it is read first; variables
// already present in the environment take precedence over the file.
func Load() (Config, error) {
	if path := strings.TrimSpace(os.Getenv("LIVECLASS_ENV_FILE")); path != "" {
		if err := godotenv.Load(path); err != nil {
			return Config{}, fmt.Errorf("config: read env file %s: %w", path, err)
		}
	}

	var env environment
	if err := cleanenv.ReadEnv(&env); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	cfg := Config{
		Env:          strings.ToLower(strings.TrimSpace(env.Env)),
		SQLiteDSN:    strings.TrimSpace(env.SQLiteDSN),
		AuthSecret:   strings.TrimSpace(env.AuthSecret),
		StreamSecret: strings.TrimSpace(env.StreamSecret),
		RedisAddr:    strings.TrimSpace(env.RedisAddr),
	}

	missing := make([]string, 0, 2)
	invalid := make([]string, 0, 4)

	if cfg.AuthSecret == "" {
		missing = append(missing, "LIVECLASS_AUTH_SECRET")
	}
	if cfg.StreamSecret == "" {
		missing = append(missing, "LIVECLASS_STREAM_SECRET")
	}

	switch cfg.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		invalid = append(invalid, "LIVECLASS_ENV")
	}
	if port, err := strconv.Atoi(strings.TrimSpace(env.HTTPPort)); err != nil || port <= 0 || port > 65535 {
		invalid = append(invalid, "LIVECLASS_HTTP_PORT")
	} else {
		cfg.HTTPPort = port
	}
	if cfg.SQLiteDSN == "" {
		invalid = append(invalid, "LIVECLASS_SQLITE_DSN")
	}
	loc, err := time.LoadLocation(strings.TrimSpace(env.Timezone))
	if err != nil || strings.TrimSpace(env.Timezone) == "" {
		invalid = append(invalid, "LIVECLASS_TIMEZONE")
	} else {
		cfg.Location = loc
	}
	if cfg.StreamTokenTTL, err = positiveDuration(env.StreamTokenTTL); err != nil {
		invalid = append(invalid, "LIVECLASS_STREAM_TOKEN_TTL")
	}
	if cfg.MaterializeInterval, err = positiveDuration(env.MaterializeInterval); err != nil {
		invalid = append(invalid, "LIVECLASS_MATERIALIZE_INTERVAL")
	}
	if cfg.MaterializeHorizon, err = positiveInt(env.MaterializeHorizon); err != nil {
		invalid = append(invalid, "LIVECLASS_MATERIALIZE_HORIZON_DAYS")
	}
	if cfg.UpcomingHorizon, err = positiveInt(env.UpcomingHorizon); err != nil {
		invalid = append(invalid, "LIVECLASS_UPCOMING_HORIZON_DAYS")
	}

	if len(missing) > 0 || len(invalid) > 0 {
		problems := make([]string, 0, 2)
		if len(missing) > 0 {
			problems = append(problems, "missing required environment variables: "+strings.Join(missing, ", "))
		}
		if len(invalid) > 0 {
			problems = append(problems, "invalid environment variables: "+strings.Join(invalid, ", "))
		}
		return Config{}, fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}

	return cfg, nil
}

func positiveDuration(value string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %s is not positive", d)
	}
	return d, nil
}

func positiveInt(value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("%d is not positive", n)
	}
	return n, nil
}
