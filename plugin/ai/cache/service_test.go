package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestService_BasicOperations(t *testing.T) {
	svc := NewService[string](ServiceConfig{
		Capacity:        100,
		IdleTTL:         time.Minute,
		CleanupInterval: time.Hour, // Disable auto cleanup for tests
	})
	defer svc.Close()

	svc.Set("key1", "value1")
	val, ok := svc.Get("key1")
	assert.True(t, ok)
	assert.Equal(t, "value1", val)
}

func TestService_Close(t *testing.T) {
	svc := NewService[int](DefaultServiceConfig())

	// Should not panic, also when called twice
	svc.Close()
	svc.Close()
}

func TestService_CleanupExpired(t *testing.T) {
	svc := NewService[string](ServiceConfig{
		Capacity:        100,
		IdleTTL:         50 * time.Millisecond,
		CleanupInterval: 20 * time.Millisecond,
	})
	defer svc.Close()

	svc.Set("temp", "data")
	assert.Equal(t, 1, svc.Size())

	assert.Eventually(t, func() bool { return svc.Size() == 0 }, 2*time.Second, 10*time.Millisecond)
}
