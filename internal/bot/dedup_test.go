package bot

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTryAcquireOncePerMint(t *testing.T) {
	s := NewSeenSet()

	assert.True(t, s.TryAcquire("mintA"))
	assert.False(t, s.TryAcquire("mintA"))
	assert.True(t, s.TryAcquire("mintB"))
	assert.True(t, s.Seen("mintA"))
	assert.False(t, s.Seen("mintC"))
	assert.Equal(t, 2, s.Len())
}

func TestTryAcquireConcurrent(t *testing.T) {
	s := NewSeenSet()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.TryAcquire("mintA") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}
