// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/identity/internal/auth"
	"github.com/holomush/identity/internal/auth/postgres"
	"github.com/holomush/identity/internal/config"
	"github.com/holomush/identity/internal/notify"
	"github.com/holomush/identity/internal/store"
)

// Deps contains injectable dependencies for identityd commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// ConfigLoader builds the configuration.
	// Default: config.Load
	ConfigLoader func(path string, fs *pflag.FlagSet) (*config.Config, error)

	// StoreFactory opens the account store. The returned func releases it.
	// Default: PostgreSQL via store.OpenPool
	StoreFactory func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (auth.AccountStore, func(), error)

	// NotifierFactory creates the code delivery channel. out is the
	// command's stderr.
	// Default: notify.NewConsoleNotifier or notify.NewSMTPNotifier
	NotifierFactory func(cfg *config.Config, out io.Writer, logger *slog.Logger) (auth.Notifier, error)

	// MigratorFactory opens a schema migrator.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// MetricsPusher pushes collected metrics to a Pushgateway.
	// Default: pushMetrics
	MetricsPusher func(ctx context.Context, url string, g prometheus.Gatherer) error

	// Clock overrides the service and token clock.
	// Default: time.Now
	Clock func() time.Time

	configFile string
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Version() (uint, bool, error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	Close() error
}

func (d *Deps) withDefaults() *Deps {
	if d == nil {
		d = &Deps{}
	}
	if d.ConfigLoader == nil {
		d.ConfigLoader = config.Load
	}
	if d.StoreFactory == nil {
		d.StoreFactory = openPostgresStore
	}
	if d.NotifierFactory == nil {
		d.NotifierFactory = newNotifier
	}
	if d.MigratorFactory == nil {
		d.MigratorFactory = func(databaseURL string) (Migrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if d.MetricsPusher == nil {
		d.MetricsPusher = pushMetrics
	}
	return d
}

func openPostgresStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (auth.AccountStore, func(), error) {
	pool, err := store.OpenPool(ctx, cfg.DatabaseURL, store.PoolOptions{Logger: logger})
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewAccountRepository(pool), pool.Close, nil
}

func newNotifier(cfg *config.Config, out io.Writer, logger *slog.Logger) (auth.Notifier, error) {
	switch cfg.Notifier.Kind {
	case config.NotifierSMTP:
		return notify.NewSMTPNotifier(cfg.SMTP(), notify.WithSMTPLogger(logger))
	case config.NotifierConsole:
		return notify.NewConsoleNotifier(out), nil
	}
	return nil, oops.Code("CONFIG_INVALID").
		With("field", "notifier.kind").
		Errorf("unknown notifier %q", cfg.Notifier.Kind)
}

func pushMetrics(ctx context.Context, url string, g prometheus.Gatherer) error {
	//nolint:wrapcheck // caller logs the failure
	return push.New(url, "identityd").Gatherer(g).PushContext(ctx)
}
