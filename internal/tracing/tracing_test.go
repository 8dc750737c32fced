package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestSetupExportsSpans(t *testing.T) {
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	var buf bytes.Buffer
	shutdown, err := Setup(true, &buf, "chorepoints-test")
	require.NoError(t, err)

	_, span := otel.Tracer("chorepoints/test").Start(context.Background(), "chore.approve")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "chore.approve")
	assert.Contains(t, buf.String(), "chorepoints-test")
}

func TestSetupDisabled(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Setup(false, &buf, "chorepoints-test")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
	assert.Empty(t, buf.String())
}
