package repo

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/hamed0406/pushrelay/internal/domain"
)

// TargetSource yields validated target descriptors. Sources are read once
// at startup.
type TargetSource interface {
	List(ctx context.Context) ([]domain.Target, error)
}

// Multi concatenates sources in order. Every source is read even when an
// earlier one fails, so all problems surface together.
type Multi []TargetSource

func (m Multi) List(ctx context.Context) ([]domain.Target, error) {
	var (
		out  []domain.Target
		errs error
	)
	for i, s := range m {
		if s == nil {
			continue
		}
		ts, err := s.List(ctx)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("source %d: %w", i, err))
			continue
		}
		out = append(out, ts...)
	}
	if errs != nil {
		return nil, errs
	}
	return out, nil
}

var _ TargetSource = Multi(nil)
