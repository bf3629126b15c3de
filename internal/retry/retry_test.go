package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 5*time.Second, func() error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 5*time.Second, func() error {
		calls++
		return CheckStatus(404, []byte("not found"))
	})
	assert.Equal(t, 1, calls)

	var se *StatusError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, 404, se.Code)
}

func TestDo_ReturnsLastErrorOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	err := Do(ctx, 5*time.Second, func() error {
		cancel()
		return errors.New("timeout talking to model")
	})
	assert.EqualError(t, err, "timeout talking to model")
}

func TestCheckStatus(t *testing.T) {
	assert.NoError(t, CheckStatus(200, nil))
	assert.NoError(t, CheckStatus(204, nil))

	var se *StatusError
	err := CheckStatus(503, []byte("busy"))
	assert.True(t, errors.As(err, &se))
	assert.Contains(t, err.Error(), "503")

	err = CheckStatus(401, nil)
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, 401, se.Code)
}

func TestForStatus(t *testing.T) {
	assert.NoError(t, ForStatus(400, nil))

	calls := 0
	_ = Do(context.Background(), 5*time.Second, func() error {
		calls++
		return ForStatus(400, errors.New("bad request"))
	})
	assert.Equal(t, 1, calls)

	calls = 0
	_ = Do(context.Background(), 5*time.Second, func() error {
		calls++
		if calls == 2 {
			return nil
		}
		return ForStatus(429, errors.New("rate limited"))
	})
	assert.Equal(t, 2, calls)
}
