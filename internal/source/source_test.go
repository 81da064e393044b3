package source

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestAdapter_Uninitialized(t *testing.T) {
	var buf bytes.Buffer
	a := NewAdapter[string]("calendar", nil, testLogger(&buf), nil)

	assert.False(t, a.Ready())
	assert.Equal(t, "calendar", a.Name())
	assert.Empty(t, a.Fetch(context.Background()))
	assert.Contains(t, buf.String(), "not initialized")
}

func TestAdapter_FetchError(t *testing.T) {
	var buf bytes.Buffer
	fetch := func(context.Context) ([]string, error) {
		return []string{"partial"}, errors.New("boom")
	}
	a := NewAdapter[string]("mail", fetch, testLogger(&buf), func(error) string { return "unavailable" })

	require.True(t, a.Ready())
	assert.Nil(t, a.Fetch(context.Background()))
	assert.Contains(t, buf.String(), "boom")
	assert.Contains(t, buf.String(), "kind=unavailable")
}

func TestAdapter_FetchPanic(t *testing.T) {
	var buf bytes.Buffer
	fetch := func(context.Context) ([]int, error) {
		panic("nil service")
	}
	a := NewAdapter[int]("drive", fetch, testLogger(&buf), nil)

	assert.NotPanics(t, func() {
		assert.Nil(t, a.Fetch(context.Background()))
	})
	assert.Contains(t, buf.String(), "nil service")
}

func TestAdapter_FetchSuccess(t *testing.T) {
	calls := 0
	fetch := func(context.Context) ([]int, error) {
		calls++
		return []int{3, 1, 2}, nil
	}
	a := NewAdapter[int]("drive", fetch, nil, nil)

	assert.Equal(t, []int{3, 1, 2}, a.Fetch(context.Background()))
	assert.Equal(t, 1, calls)
}
