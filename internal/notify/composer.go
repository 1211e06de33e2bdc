package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/segyhp/collections-engine/internal/metrics"
	customError "github.com/segyhp/collections-engine/pkg/errors"
)

var (
	errEmptyText   = errors.New("generator returned empty text")
	errNoGenerator = errors.New("no text generator configured")
)

// Composer produces message text with a bounded call to the configured
// generator and falls back to the templates on any failure.
type Composer struct {
	gen     TextGenerator
	timeout time.Duration
	logger  *slog.Logger
}

// NewComposer accepts a nil generator, in which case templates are always used.
func NewComposer(gen TextGenerator, timeout time.Duration, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{gen: gen, timeout: timeout, logger: logger.With("component", "composer")}
}

func (c *Composer) ReminderText(ctx context.Context, r Reminder) string {
	text, err := c.generate(ctx, func(ctx context.Context) (string, error) {
		return c.gen.Reminder(ctx, r)
	})
	if err != nil {
		c.fallback(ctx, "reminder", err)
		return ReminderTemplate(r)
	}
	return text
}

func (c *Composer) LenderAlertText(ctx context.Context, a LenderAlert) string {
	text, err := c.generate(ctx, func(ctx context.Context) (string, error) {
		return c.gen.LenderAlert(ctx, a)
	})
	if err != nil {
		c.fallback(ctx, "lender_alert", err)
		return LenderAlertTemplate(a)
	}
	return text
}

type result struct {
	text string
	err  error
}

// generate runs fn under the timeout. Generators that ignore their context
// are abandoned when the deadline passes.
func (c *Composer) generate(ctx context.Context, fn func(context.Context) (string, error)) (string, error) {
	if c.gen == nil {
		return "", errNoGenerator
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		text, err := fn(ctx)
		done <- result{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", customError.WrapGenerationTimeout(ctx.Err())
	case res := <-done:
		if res.err != nil {
			if errors.Is(res.err, context.DeadlineExceeded) {
				return "", customError.WrapGenerationTimeout(res.err)
			}
			return "", res.err
		}
		text := strings.TrimSpace(res.text)
		if text == "" {
			return "", errEmptyText
		}
		return text, nil
	}
}

func (c *Composer) fallback(ctx context.Context, kind string, err error) {
	if errors.Is(err, errNoGenerator) {
		return
	}
	reason := "error"
	switch {
	case errors.Is(err, customError.ErrGenerationTimeout):
		reason = "timeout"
	case errors.Is(err, errEmptyText):
		reason = "empty"
	}
	metrics.TextFallbacks.WithLabelValues(kind, reason).Inc()
	c.logger.WarnContext(ctx, "Text generation failed, using template", "kind", kind, "reason", reason, slog.Any("error", err))
}
