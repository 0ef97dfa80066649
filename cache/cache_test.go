package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// 这些测试覆盖Redis不可用时的降级路径，Redis在本服务中始终是可选层

func TestGetTallyDegradedMode(t *testing.T) {
	_, err := GetTally(context.Background(), 1)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestSetAndInvalidateTallyDegradedMode(t *testing.T) {
	// 降级模式下写入与失效都是静默空操作
	SetTally(context.Background(), 1, nil)
	InvalidateTally(context.Background(), 1)
}

func TestGetClientDegradedMode(t *testing.T) {
	_, err := GetClient()
	assert.ErrorIs(t, err, ErrRedisNotAvailable)
	assert.False(t, Available())
}

func TestWithVoteLockFallsBackWithoutRedis(t *testing.T) {
	called := false
	err := WithVoteLock(1, "alice", func() error {
		called = true
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, called)

	// 回调的错误原样透传
	wantErr := errors.New("storage failed")
	err = WithVoteLock(1, "alice", func() error { return wantErr })
	assert.ErrorIs(t, err, wantErr)
}

func TestTallyKey(t *testing.T) {
	assert.Equal(t, "poll:42:tally", tallyKey(42))
}
