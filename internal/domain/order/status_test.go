package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeStatus(t *testing.T) {
	tests := map[string]Status{
		"pending":    StatusPending,
		"Pending":    StatusPending,
		" SHIPPED ":  StatusShipped,
		"Processing": StatusProcessing,
		"delivered":  StatusDelivered,
		"CANCELLED":  StatusCancelled,
		"":           StatusPending,
		"on-hold":    StatusPending,
		"refunded ":  StatusPending,
	}
	for raw, want := range tests {
		assert.Equal(t, want, NormalizeStatus(raw), "raw %q", raw)
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" Delivered")
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, s)

	_, err = ParseStatus("lost")
	require.ErrorIs(t, err, ErrUnknownStatus)

	_, err = ParseStatus("")
	require.ErrorIs(t, err, ErrUnknownStatus)
}

func TestCanTransition(t *testing.T) {
	legal := map[Status][]Status{
		StatusPending:    {StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled},
		StatusProcessing: {StatusShipped, StatusDelivered, StatusCancelled},
		StatusShipped:    {StatusDelivered, StatusCancelled},
	}

	for _, from := range Statuses {
		for _, to := range Statuses {
			want := false
			for _, l := range legal[from] {
				if l == to {
					want = true
				}
			}
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestCanTransition_Properties(t *testing.T) {
	t.Run("terminal states have no exits", func(t *testing.T) {
		for _, to := range Statuses {
			assert.False(t, CanTransition(StatusDelivered, to))
			assert.False(t, CanTransition(StatusCancelled, to))
		}
		assert.True(t, StatusDelivered.Terminal())
		assert.True(t, StatusCancelled.Terminal())
		assert.False(t, StatusShipped.Terminal())
	})

	t.Run("no backward move", func(t *testing.T) {
		assert.False(t, CanTransition(StatusShipped, StatusProcessing))
		assert.False(t, CanTransition(StatusProcessing, StatusPending))
		assert.False(t, CanTransition(StatusShipped, StatusPending))
	})

	t.Run("pending is permissive", func(t *testing.T) {
		assert.True(t, CanTransition(StatusPending, StatusDelivered))
	})

	t.Run("no self transitions", func(t *testing.T) {
		for _, s := range Statuses {
			assert.False(t, CanTransition(s, s), "%s", s)
		}
	})

	t.Run("mixed case input", func(t *testing.T) {
		assert.True(t, CanTransition("Pending", "Processing"))
		assert.False(t, CanTransition("Delivered", "cancelled"))
	})

	t.Run("unknown target is illegal", func(t *testing.T) {
		assert.False(t, CanTransition(StatusPending, "archived"))
	})
}

func TestStatus_Targets(t *testing.T) {
	assert.Equal(t, []Status{StatusDelivered, StatusCancelled}, StatusShipped.Targets())
	assert.Empty(t, StatusDelivered.Targets())

	targets := StatusPending.Targets()
	targets[0] = StatusCancelled
	assert.Equal(t, StatusProcessing, StatusPending.Targets()[0], "Targets must return a copy")
}
