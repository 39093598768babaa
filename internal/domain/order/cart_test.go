package order

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/shopkart/internal/domain/coupon"
)

func TestCart_AddRemoveUpdate(t *testing.T) {
	var c Cart

	require.NoError(t, c.Add(CartItem{ProductID: "p1", Price: dec("10"), Quantity: 0}))
	require.NoError(t, c.Add(CartItem{ProductID: "p2", Price: dec("2.50"), Quantity: 4}))
	assert.Equal(t, 1, c.Items[0].Quantity, "quantity floored at 1")
	require.ErrorIs(t, c.Add(CartItem{ProductID: "p1"}), ErrItemInCart)

	assert.True(t, dec("20").Equal(c.Subtotal()))

	require.NoError(t, c.UpdateQuantity("p1", 3))
	require.NoError(t, c.UpdateQuantity("p2", -5))
	assert.Equal(t, 3, c.Items[0].Quantity)
	assert.Equal(t, 1, c.Items[1].Quantity)
	require.ErrorIs(t, c.UpdateQuantity("nope", 2), ErrItemNotInCart)

	assert.True(t, c.Remove("p1"))
	assert.False(t, c.Remove("p1"))
	require.Len(t, c.Items, 1)
	assert.Equal(t, "p2", c.Items[0].ProductID)
}

func TestCart_Coupon(t *testing.T) {
	ctx := context.Background()
	c := cartOf(CartItem{ProductID: "p1", Price: dec("300"), Quantity: 1})

	t.Run("rejection leaves state unchanged", func(t *testing.T) {
		v := &mockCouponValidator{err: &coupon.Rejection{Reason: coupon.ErrBelowMinimum, Message: "min 500"}}

		err := c.ApplyCoupon(ctx, v, "BIG500")

		require.ErrorIs(t, err, coupon.ErrBelowMinimum)
		assert.Nil(t, c.Coupon)
		assert.Empty(t, c.CouponCode())
		assert.True(t, dec("300").Equal(v.subtotal))
	})

	t.Run("apply and remove", func(t *testing.T) {
		v := &mockCouponValidator{discount: &coupon.Discount{Code: "SAVE10", Amount: dec("30")}}

		require.NoError(t, c.ApplyCoupon(ctx, v, "save10"))
		assert.Equal(t, "SAVE10", c.CouponCode())

		c.RemoveCoupon()
		assert.Nil(t, c.Coupon)
	})

	t.Run("clear drops coupon", func(t *testing.T) {
		c.Coupon = &coupon.Discount{Code: "X"}
		c.Clear()
		assert.Empty(t, c.Items)
		assert.Nil(t, c.Coupon)
		assert.True(t, c.Subtotal().IsZero())
	})
}
