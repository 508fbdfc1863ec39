package util

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestStartSpanWithoutTracer(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "Test.Span", attribute.String("storage.key", "orders"))
	defer span.End()

	assert.NotNil(t, ctx)
	assert.NotNil(t, span)
}

func TestInitTracerInstallsTracer(t *testing.T) {
	require.NoError(t, InitLogger("test"))

	tp, err := InitTracer("tableorder-test", "http://localhost:14268/api/traces")
	require.NoError(t, err)
	t.Cleanup(func() {
		tracerMu.Lock()
		tracer = nil
		tracerMu.Unlock()
		_ = tp.Shutdown(context.Background())
	})

	assert.Equal(t, tp.Tracer("tableorder-test"), GetTracer())
}
