// Package capture produces the PNG bytes stored as test evidence.
package capture

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Shot describes what a single evidence image should show.
type Shot struct {
	TicketKey string
	Passed    bool
	Title     string
	Text      string
	Markup    string
	Index     int
}

func (s Shot) Status() string {
	if s.Passed {
		return "APROVADO"
	}
	return "REPROVADO"
}

// Capturer renders one evidence image. Implementations may block.
type Capturer interface {
	Capture(ctx context.Context, shot Shot) ([]byte, error)
}

// Func adapts a plain function to Capturer.
type Func func(ctx context.Context, shot Shot) ([]byte, error)

func (f Func) Capture(ctx context.Context, shot Shot) ([]byte, error) { return f(ctx, shot) }

// Fallback tries Primary and, on error, renders with Secondary instead.
type Fallback struct {
	Primary   Capturer
	Secondary Capturer
	Logger    *zap.Logger
}

func (f Fallback) Capture(ctx context.Context, shot Shot) ([]byte, error) {
	data, err := f.Primary.Capture(ctx, shot)
	if err == nil {
		return data, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if f.Logger != nil {
		f.Logger.Warn("primary capture failed, using fallback",
			zap.String("ticket", shot.TicketKey), zap.Error(err))
	}
	data, ferr := f.Secondary.Capture(ctx, shot)
	if ferr != nil {
		return nil, fmt.Errorf("fallback capture: %w (primary: %v)", ferr, err)
	}
	return data, nil
}
