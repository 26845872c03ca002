// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/holomush/identity/internal/auth"
	"github.com/holomush/identity/internal/config"
	"github.com/holomush/identity/internal/logging"
)

// errReported marks a failure whose JSON result was already written.
var errReported = errors.New("operation failed")

// result is the JSON document every account command prints.
type result struct {
	OK                bool          `json:"ok"`
	Token             string        `json:"token,omitempty"`
	Count             *int64        `json:"count,omitempty"`
	Account           *accountView  `json:"account,omitempty"`
	Accounts          []accountView `json:"accounts,omitempty"`
	Kind              auth.Kind     `json:"kind,omitempty"`
	Message           string        `json:"message,omitempty"`
	RetryAfterSeconds int64         `json:"retry_after_seconds,omitempty"`
}

// accountView is the public projection of an account.
type accountView struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Email string     `json:"email"`
	Phone string     `json:"phone"`
	State auth.State `json:"state"`
}

func viewOf(a *auth.Account) *accountView {
	return &accountView{
		ID:    a.ID.String(),
		Name:  a.Name,
		Email: a.Email,
		Phone: a.Phone,
		State: a.State,
	}
}

// app is a fully wired service for one command invocation.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	svc      *auth.Service
	registry *prometheus.Registry
	release  func()
}

// loadConfig loads configuration and installs the configured logger as the
// slog default.
func (d *Deps) loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := d.ConfigLoader(d.configFile, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.SetDefault(logging.Options{
		Service: "identityd",
		Version: version,
		Format:  cfg.LogFormat,
		Level:   level,
		Writer:  cmd.ErrOrStderr(),
	})
	return cfg, logger, nil
}

// build wires the account service from configuration.
func (d *Deps) build(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, logger, err := d.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hasher, err := auth.NewPasswordHasher(cfg.HashAlgorithm, cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	var tokenOpts []auth.TokenOption
	serviceOpts := []auth.Option{
		auth.WithLogger(logger),
		auth.WithLifetimes(cfg.Lifetimes()),
		auth.WithThrottleWindow(cfg.ThrottleWindow),
	}
	if d.Clock != nil {
		tokenOpts = append(tokenOpts, auth.WithTokenClock(d.Clock))
		serviceOpts = append(serviceOpts, auth.WithClock(d.Clock))
	}

	tokens, err := auth.NewTokenIssuer(cfg.TokenConfig(), tokenOpts...)
	if err != nil {
		return nil, err
	}

	notifier, err := d.NotifierFactory(cfg, cmd.ErrOrStderr(), logger)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	metrics := auth.NewMetrics()
	metrics.Register(registry)
	serviceOpts = append(serviceOpts, auth.WithMetrics(metrics))

	accounts, release, err := d.StoreFactory(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	svc, err := auth.NewService(accounts, notifier, hasher, tokens, serviceOpts...)
	if err != nil {
		release()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		svc:      svc,
		registry: registry,
		release:  release,
	}, nil
}

// runOperation wires the service, runs op and prints its result.
func (d *Deps) runOperation(cmd *cobra.Command, op func(ctx context.Context, svc *auth.Service) (result, error)) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := d.build(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.release()
	defer d.flushMetrics(ctx, a)

	res, opErr := op(ctx, a.svc)
	if opErr != nil {
		kind := auth.KindOf(opErr)
		res = result{OK: false, Kind: kind, Message: auth.Message(kind)}
		if wait, ok := auth.RetryAfter(opErr); ok {
			res.RetryAfterSeconds = int64((wait + time.Second - 1) / time.Second)
		}
	} else {
		res.OK = true
	}

	if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if opErr != nil {
		return errReported
	}
	return nil
}

func (d *Deps) flushMetrics(ctx context.Context, a *app) {
	if a.cfg.PushgatewayURL == "" {
		return
	}
	if err := d.MetricsPusher(ctx, a.cfg.PushgatewayURL, a.registry); err != nil {
		a.logger.WarnContext(ctx, "best-effort metrics push failed",
			"operation", "push_metrics",
			"error", err.Error())
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	//nolint:wrapcheck // stdout write failure has no useful context to add
	return enc.Encode(v)
}
