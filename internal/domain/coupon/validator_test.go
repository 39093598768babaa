package coupon

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCouponRepo struct {
	coupon   *Coupon
	err      error
	used     int
	countErr error

	mu          sync.Mutex
	lookedUp    []string
	countCalled int
}

func (m *mockCouponRepo) FindByCode(_ context.Context, code string) (*Coupon, error) {
	m.mu.Lock()
	m.lookedUp = append(m.lookedUp, code)
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.coupon == nil {
		return nil, ErrNotFound
	}
	c := *m.coupon
	return &c, nil
}

func (m *mockCouponRepo) CountUsage(_ context.Context, _ string) (int, error) {
	m.mu.Lock()
	m.countCalled++
	m.mu.Unlock()
	return m.used, m.countErr
}

func TestRepoValidator_Validate(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	future := fixedNow.Add(24 * time.Hour)
	past := fixedNow.Add(-24 * time.Hour)

	tests := []struct {
		name       string
		repo       *mockCouponRepo
		code       string
		subtotal   decimal.Decimal
		wantAmount decimal.Decimal
		wantErr    error
		wantReject bool
	}{
		{
			name: "valid code returns discount",
			repo: &mockCouponRepo{coupon: &Coupon{
				Code:         "SAVE10",
				DiscountType: DiscountPercent,
				Value:        nd("10"),
				IsActive:     true,
				ValidUntil:   &future,
			}},
			code:       "save10",
			subtotal:   d("100"),
			wantAmount: d("10"),
		},
		{
			name:       "unknown code is rejected",
			repo:       &mockCouponRepo{},
			code:       "BOGUS",
			subtotal:   d("100"),
			wantErr:    ErrNotFound,
			wantReject: true,
		},
		{
			name:       "blank code is rejected without lookup",
			repo:       &mockCouponRepo{},
			code:       "  ",
			subtotal:   d("100"),
			wantErr:    ErrEmptyCode,
			wantReject: true,
		},
		{
			name: "expired coupon is rejected",
			repo: &mockCouponRepo{coupon: &Coupon{
				Code:         "OLD",
				DiscountType: DiscountFixed,
				Value:        nd("5"),
				IsActive:     true,
				ValidUntil:   &past,
			}},
			code:       "OLD",
			subtotal:   d("100"),
			wantErr:    ErrExpired,
			wantReject: true,
		},
		{
			name: "usage count comes from the repository",
			repo: &mockCouponRepo{
				coupon: &Coupon{
					Code:         "ONCE",
					DiscountType: DiscountFixed,
					Value:        nd("5"),
					IsActive:     true,
					ValidUntil:   &future,
					UsageLimit:   intPtr(1),
				},
				used: 1,
			},
			code:       "ONCE",
			subtotal:   d("100"),
			wantErr:    ErrUsageLimitReached,
			wantReject: true,
		},
		{
			name:     "repository failure is unavailable, not a rejection",
			repo:     &mockCouponRepo{err: errors.New("connection refused")},
			code:     "SAVE10",
			subtotal: d("100"),
			wantErr:  ErrUnavailable,
		},
		{
			name: "usage count failure is unavailable",
			repo: &mockCouponRepo{
				coupon: &Coupon{
					Code:         "ONCE",
					DiscountType: DiscountFixed,
					Value:        nd("5"),
					IsActive:     true,
					UsageLimit:   intPtr(1),
				},
				countErr: errors.New("timeout"),
			},
			code:     "ONCE",
			subtotal: d("100"),
			wantErr:  ErrUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewRepoValidator(tt.repo)
			v.now = func() time.Time { return fixedNow }

			got, err := v.Validate(context.Background(), tt.code, tt.subtotal)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				assert.Equal(t, tt.wantReject, IsRejection(err))
				return
			}

			require.NoError(t, err)
			require.NotNil(t, got)
			assert.True(t, tt.wantAmount.Equal(got.Amount),
				"expected amount %s, got %s", tt.wantAmount, got.Amount)
		})
	}
}

func TestRepoValidator_UnavailableKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	v := NewRepoValidator(&mockCouponRepo{err: cause})

	_, err := v.Validate(context.Background(), "save10", d("100"))

	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorIs(t, err, cause)
	var unavailable *UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Contains(t, err.Error(), `find "SAVE10"`)
	assert.False(t, IsRejection(err))
}

func TestRepoValidator_LooksUpNormalizedCode(t *testing.T) {
	repo := &mockCouponRepo{}
	v := NewRepoValidator(repo)

	_, _ = v.Validate(context.Background(), "  welcome20 ", d("10"))

	require.Len(t, repo.lookedUp, 1)
	assert.Equal(t, "WELCOME20", repo.lookedUp[0])
}

func TestRepoValidator_SkipsUsageCountWithoutLimit(t *testing.T) {
	repo := &mockCouponRepo{coupon: &Coupon{
		Code:         "FREE",
		DiscountType: DiscountFixed,
		Value:        nd("1"),
		IsActive:     true,
	}}
	v := NewRepoValidator(repo)

	_, err := v.Validate(context.Background(), "FREE", d("10"))
	require.NoError(t, err)
	assert.Zero(t, repo.countCalled)
}

// Usage is not reserved, so concurrent validations against the last
// remaining use all succeed.
func TestRepoValidator_LastUseIsNotReserved(t *testing.T) {
	repo := &mockCouponRepo{
		coupon: &Coupon{
			Code:         "LAST",
			DiscountType: DiscountFixed,
			Value:        nd("5"),
			IsActive:     true,
			UsageLimit:   intPtr(3),
		},
		used: 2,
	}
	v := NewRepoValidator(repo)

	const workers = 2
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = v.Validate(context.Background(), "LAST", d("50"))
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
}
