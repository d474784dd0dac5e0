package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), "cosmos-gmp-relayer", "")
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	_, span := Tracer("test").Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()

	assert.NoError(t, shutdown(context.Background()))
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitWithEndpoint(t *testing.T) {
	shutdown, err := Init(context.Background(), "cosmos-gmp-relayer", "http://localhost:4318")
	require.NoError(t, err)

	_, span := Tracer("test").Start(context.Background(), "recorded")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	// nothing listens on the endpoint, only the stop itself is checked
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
	Init(context.Background(), "cosmos-gmp-relayer", "") //nolint:errcheck
}
