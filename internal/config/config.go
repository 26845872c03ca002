// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads identityd settings from a YAML file, the environment
// and command-line flags, in increasing order of precedence.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"

	"github.com/holomush/identity/internal/auth"
	"github.com/holomush/identity/internal/logging"
	"github.com/holomush/identity/internal/notify"
)

// Environment variables that carry secrets.
const (
	EnvDatabaseURL = "DATABASE_URL"
	EnvSigningKey  = "IDENTITY_SIGNING_KEY"
)

// Notifier kinds.
const (
	NotifierConsole = "console"
	NotifierSMTP    = "smtp"
)

// Tokens holds the lifetime of each token purpose.
type Tokens struct {
	VerificationTTL time.Duration `koanf:"verification_ttl"`
	ResendTTL       time.Duration `koanf:"resend_ttl"`
	ResetTTL        time.Duration `koanf:"reset_ttl"`
	SessionTTL      time.Duration `koanf:"session_ttl"`
}

// Notifier selects and configures code delivery.
type Notifier struct {
	Kind         string `koanf:"kind"`
	SMTPHost     string `koanf:"smtp_host"`
	SMTPPort     int    `koanf:"smtp_port"`
	SMTPUsername string `koanf:"smtp_username"`
	SMTPPassword string `koanf:"smtp_password"`
	From         string `koanf:"from"`
}

// Config is the complete identityd configuration.
type Config struct {
	DatabaseURL    string        `koanf:"database_url"`
	SigningKey     string        `koanf:"signing_key"`
	Issuer         string        `koanf:"issuer"`
	HashAlgorithm  string        `koanf:"hash_algorithm"`
	BcryptCost     int           `koanf:"bcrypt_cost"`
	LogFormat      string        `koanf:"log_format"`
	LogLevel       string        `koanf:"log_level"`
	Tokens         Tokens        `koanf:"tokens"`
	ThrottleWindow time.Duration `koanf:"throttle_window"`
	Notifier       Notifier      `koanf:"notifier"`
	PushgatewayURL string        `koanf:"pushgateway_url"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	lifetimes := auth.DefaultLifetimes()
	return Config{
		Issuer:        "identityd",
		HashAlgorithm: auth.AlgorithmBcrypt,
		BcryptCost:    auth.DefaultBcryptCost,
		LogFormat:     logging.FormatJSON,
		LogLevel:      "info",
		Tokens: Tokens{
			VerificationTTL: lifetimes.Verification,
			ResendTTL:       lifetimes.Resend,
			ResetTTL:        lifetimes.Reset,
			SessionTTL:      lifetimes.Session,
		},
		ThrottleWindow: auth.DefaultThrottleWindow,
		Notifier: Notifier{
			Kind:     NotifierConsole,
			SMTPPort: notify.DefaultSMTPPort,
		},
	}
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"database-url":    "database_url",
	"hash-algorithm":  "hash_algorithm",
	"bcrypt-cost":     "bcrypt_cost",
	"log-format":      "log_format",
	"log-level":       "log_level",
	"notifier":        "notifier.kind",
	"pushgateway-url": "pushgateway_url",
}

// RegisterFlags adds the overridable settings to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("database-url", "", "PostgreSQL connection URL (env "+EnvDatabaseURL+")")
	fs.String("hash-algorithm", d.HashAlgorithm, "password hash algorithm (bcrypt or argon2id)")
	fs.Int("bcrypt-cost", d.BcryptCost, "bcrypt work factor")
	fs.String("log-format", d.LogFormat, "log format (json or text)")
	fs.String("log-level", d.LogLevel, "log level (debug, info, warn, error)")
	fs.String("notifier", d.Notifier.Kind, "code delivery (console or smtp)")
	fs.String("pushgateway-url", "", "Prometheus Pushgateway URL (empty = disabled)")
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// empty), the environment and any flags in fs that were set or are absent
// from the earlier layers. fs may be nil.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("path", path).
				Wrap(err)
		}
	}

	for env, key := range map[string]string{
		EnvDatabaseURL: "database_url",
		EnvSigningKey:  "signing_key",
	} {
		if v, ok := os.LookupEnv(env); ok && v != "" {
			if err := k.Set(key, v); err != nil {
				return nil, oops.Code("CONFIG_LOAD_FAILED").With("env", env).Wrap(err)
			}
		}
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "decode").Wrap(err)
	}
	cfg.Notifier.Kind = strings.ToLower(cfg.Notifier.Kind)
	return &cfg, nil
}

func invalid(field, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").With("field", field).Errorf(format, args...)
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return invalid("database_url", "database_url is required (or set %s)", EnvDatabaseURL)
	}
	if len(c.SigningKey) < auth.MinSigningKeyLength {
		return invalid("signing_key", "signing_key must be at least %d bytes (or set %s)",
			auth.MinSigningKeyLength, EnvSigningKey)
	}
	switch c.HashAlgorithm {
	case auth.AlgorithmBcrypt, auth.AlgorithmArgon2id:
	default:
		return invalid("hash_algorithm", "hash_algorithm must be %q or %q, got %q",
			auth.AlgorithmBcrypt, auth.AlgorithmArgon2id, c.HashAlgorithm)
	}
	if c.BcryptCost != 0 && (c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost) {
		return invalid("bcrypt_cost", "bcrypt_cost must be between %d and %d, got %d",
			bcrypt.MinCost, bcrypt.MaxCost, c.BcryptCost)
	}
	if err := logging.ValidateFormat(c.LogFormat); err != nil {
		return invalid("log_format", "%s", err.Error())
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return invalid("log_level", "unknown log_level %q", c.LogLevel)
	}

	for field, ttl := range map[string]time.Duration{
		"tokens.verification_ttl": c.Tokens.VerificationTTL,
		"tokens.resend_ttl":       c.Tokens.ResendTTL,
		"tokens.reset_ttl":        c.Tokens.ResetTTL,
		"tokens.session_ttl":      c.Tokens.SessionTTL,
		"throttle_window":         c.ThrottleWindow,
	} {
		if ttl <= 0 {
			return invalid(field, "%s must be positive, got %s", field, ttl)
		}
	}

	switch c.Notifier.Kind {
	case NotifierConsole:
	case NotifierSMTP:
		if err := c.SMTP().Validate(); err != nil {
			return invalid("notifier", "%s", err.Error())
		}
	default:
		return invalid("notifier.kind", "notifier.kind must be %q or %q, got %q",
			NotifierConsole, NotifierSMTP, c.Notifier.Kind)
	}
	return nil
}

// Lifetimes returns the token lifetimes for auth.WithLifetimes.
func (c *Config) Lifetimes() auth.Lifetimes {
	return auth.Lifetimes{
		Verification: c.Tokens.VerificationTTL,
		Resend:       c.Tokens.ResendTTL,
		Reset:        c.Tokens.ResetTTL,
		Session:      c.Tokens.SessionTTL,
	}
}

// TokenConfig returns the signing settings for auth.NewTokenIssuer.
func (c *Config) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{SigningKey: []byte(c.SigningKey), Issuer: c.Issuer}
}

// SMTP returns the relay settings for notify.NewSMTPNotifier.
func (c *Config) SMTP() notify.SMTPConfig {
	return notify.SMTPConfig{
		Host:     c.Notifier.SMTPHost,
		Port:     c.Notifier.SMTPPort,
		Username: c.Notifier.SMTPUsername,
		Password: c.Notifier.SMTPPassword,
		From:     c.Notifier.From,
	}
}
