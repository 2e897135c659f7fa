package realtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInProcTransportPublishDoesNotBlockWhenFull(t *testing.T) {
	transport := NewInProcTransport()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Fill the buffer with nothing draining it.
	for i := 0; i < cap(transport.ch); i++ {
		require.NoError(t, transport.Publish(ctx, []byte("x")))
	}

	cancel()
	err := transport.Publish(ctx, []byte("overflow"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInProcTransportRoundTrip(t *testing.T) {
	transport := NewInProcTransport()
	ctx := context.Background()

	ch, err := transport.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, transport.Publish(ctx, []byte("payload")))
	assert.Equal(t, []byte("payload"), <-ch)
}
