package helpers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorTypesUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewNetworkError("fetch symbols failed", cause)

	assert.Equal(t, "fetch symbols failed: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)

	var netErr *NetworkError
	assert.True(t, errors.As(error(err), &netErr))

	var dbErr *DatabaseError
	assert.False(t, errors.As(error(err), &dbErr))
}

func TestRetryWithBackoffEventuallySucceeds(t *testing.T) {
	calls := 0
	res, err := RetryWithBackoff(context.Background(), nil, "op", 3, time.Millisecond, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, res)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoffGivesUp(t *testing.T) {
	calls := 0
	_, err := RetryWithBackoff(context.Background(), nil, "op", 2, time.Millisecond, func() (string, error) {
		calls++
		return "", errors.New("down")
	})
	assert.EqualError(t, err, "down")
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoffStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := RetryWithBackoff(ctx, nil, "op", 5, time.Hour, func() (int, error) {
		return 0, errors.New("down")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProxyManagerRotation(t *testing.T) {
	pm := NewProxyManager([]string{"10.0.0.1:8080", "", "https://10.0.0.2:443"}, "", nil)
	require.True(t, pm.HasProxies())

	first, _ := pm.GetCurrentProxy()
	assert.Equal(t, "http://10.0.0.1:8080", first)
	pm.RotateProxy()
	second, _ := pm.GetCurrentProxy()
	assert.Equal(t, "https://10.0.0.2:443", second)

	pinned := NewProxyManager(nil, "stock-cache/1.0", nil)
	assert.False(t, pinned.HasProxies())
	assert.Equal(t, "stock-cache/1.0", pinned.GetUserAgent())
}
