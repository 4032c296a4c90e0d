package plaintext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	e := New()

	text, err := e.Extract(context.Background(), []byte("\xEF\xBB\xBFhello"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "hello", text)

	text, err = e.Extract(context.Background(), []byte("bad \xff byte"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "bad \uFFFD byte", text)
}

func TestExtract_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Extract(ctx, []byte("x"), "text/plain")
	assert.ErrorIs(t, err, context.Canceled)
}
