package order

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// AdminService implements back-office order management.
type AdminService struct {
	orders    Repository
	publisher Publisher
}

// NewAdminService creates an AdminService.
func NewAdminService(orders Repository, publisher Publisher) *AdminService {
	return &AdminService{orders: orders, publisher: publisher}
}

// List returns orders matching f, newest first.
func (s *AdminService) List(ctx context.Context, f ListFilter) ([]Order, error) {
	if f.Status != "" {
		st, err := ParseStatus(string(f.Status))
		if err != nil {
			return nil, err
		}
		f.Status = st
	}
	f.Search = strings.TrimSpace(f.Search)
	switch {
	case f.Limit <= 0:
		f.Limit = defaultListLimit
	case f.Limit > maxListLimit:
		f.Limit = maxListLimit
	}
	f.Offset = max(f.Offset, 0)

	orders, err := s.orders.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// Get returns a single order.
func (s *AdminService) Get(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrapf(err, "get order %s", id)
	}
	return o, nil
}

// UpdateStatus moves an order to target.
//
// The transition is checked against the status machine, then persisted with
// a compare-and-set on the status that was checked. The returned order
// reflects the stored state. On any error the stored order is unchanged.
func (s *AdminService) UpdateStatus(ctx context.Context, id, target string) (*Order, error) {
	to, err := ParseStatus(target)
	if err != nil {
		return nil, err
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	from := current.Status
	if !CanTransition(from, to) {
		return nil, &TransitionError{From: from, To: to}
	}

	updated, err := s.orders.UpdateStatus(ctx, id, from, to)
	if err != nil {
		if errors.Is(err, ErrStatusConflict) || errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrapf(err, "update order %s status", id)
	}

	lg := zctx.From(ctx)
	lg.Info("Order status changed",
		zap.String("order_id", id),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
	)
	if err := s.publisher.StatusChanged(ctx, updated, from); err != nil {
		lg.Warn("Publish status change", zap.String("order_id", id), zap.Error(err))
	}
	return updated, nil
}
