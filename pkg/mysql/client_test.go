package mysql

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm/logger"
)

func TestRetry(t *testing.T) {
	errDown := errors.New("connection refused")

	t.Run("succeeds after failures", func(t *testing.T) {
		calls := 0
		err := retry(5, time.Millisecond, func() error {
			calls++
			if calls < 3 {
				return errDown
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("returns last error", func(t *testing.T) {
		calls := 0
		err := retry(3, time.Millisecond, func() error {
			calls++
			return errDown
		})
		assert.ErrorIs(t, err, errDown)
		assert.Equal(t, 3, calls)
	})
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, logger.Info, logLevel("info"))
	assert.Equal(t, logger.Warn, logLevel("warn"))
	assert.Equal(t, logger.Silent, logLevel("silent"))
	assert.Equal(t, logger.Error, logLevel("error"))
	assert.Equal(t, logger.Error, logLevel(""))
}
