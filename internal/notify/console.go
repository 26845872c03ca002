// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/samber/oops"

	"github.com/holomush/identity/internal/auth"
)

// ConsoleNotifier writes codes to a terminal instead of sending them.
// Local development only.
type ConsoleNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleNotifier creates a ConsoleNotifier writing to w.
func NewConsoleNotifier(w io.Writer) *ConsoleNotifier {
	return &ConsoleNotifier{w: w}
}

// SendVerificationCode prints the verification code for email.
func (c *ConsoleNotifier) SendVerificationCode(ctx context.Context, email, code string) error {
	return c.write(ctx, "verification", email, code)
}

// SendResetCode prints the reset code for email.
func (c *ConsoleNotifier) SendResetCode(ctx context.Context, email, code string) error {
	return c.write(ctx, "reset", email, code)
}

func (c *ConsoleNotifier) write(ctx context.Context, kind, email, code string) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("NOTIFY_SEND_FAILED").With("channel", "console").Wrap(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := fmt.Fprintf(c.w, "%s code for %s: %s\n", kind, email, code); err != nil {
		return oops.Code("NOTIFY_SEND_FAILED").With("channel", "console").Wrap(err)
	}
	return nil
}

var _ auth.Notifier = (*ConsoleNotifier)(nil)
