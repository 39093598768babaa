package settings

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Repository persists raw settings rows.
type Repository interface {
	Load(ctx context.Context) (map[string]string, error)
	Save(ctx context.Context, values map[string]string) error
}

// Cache is an optional read-through layer in front of Repository.
type Cache interface {
	Get(ctx context.Context) (map[string]string, bool, error)
	Set(ctx context.Context, values map[string]string) error
	Invalidate(ctx context.Context) error
}

// Service reads and updates store settings. Cache failures are logged and
// never fail a request.
type Service struct {
	repo  Repository
	cache Cache
}

// NewService creates a Service. cache may be nil.
func NewService(repo Repository, cache Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// Get returns the current settings with defaults applied.
func (s *Service) Get(ctx context.Context) (*Settings, error) {
	lg := zctx.From(ctx)

	if s.cache != nil {
		values, ok, err := s.cache.Get(ctx)
		switch {
		case err != nil:
			lg.Warn("Settings cache read failed", zap.Error(err))
		case ok:
			st := FromMap(values)
			return &st, nil
		}
	}

	values, err := s.repo.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load settings")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, values); err != nil {
			lg.Warn("Settings cache write failed", zap.Error(err))
		}
	}

	st := FromMap(values)
	return &st, nil
}

// Save validates and stores st, then drops the cached copy.
func (s *Service) Save(ctx context.Context, st Settings) error {
	if err := st.Validate(); err != nil {
		return err
	}
	if err := s.repo.Save(ctx, st.ToMap()); err != nil {
		return errors.Wrap(err, "save settings")
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			zctx.From(ctx).Warn("Settings cache invalidation failed", zap.Error(err))
		}
	}
	return nil
}
