package doublebuffer_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/domain/doublebuffer"
)

func TestReadWrite(t *testing.T) {
	b := doublebuffer.New[float32](3)
	dst := make([]float32, 3)

	assert.False(t, b.Read(dst))
	assert.Equal(t, []float32{0, 0, 0}, dst)

	assert.True(t, b.Write([]float32{1, 2, 3}))
	assert.True(t, b.Pending())
	assert.True(t, b.Read(dst))
	assert.Equal(t, []float32{1, 2, 3}, dst)
	assert.False(t, b.Pending())

	// idempotent read.
	dst = make([]float32, 3)
	assert.False(t, b.Read(dst))
	assert.Equal(t, []float32{1, 2, 3}, dst)

	// only the latest write is visible.
	assert.True(t, b.Write([]float32{4, 5, 6}))
	assert.True(t, b.Write([]float32{7, 8, 9}))
	assert.True(t, b.Write([]float32{10, 11, 12}))
	assert.True(t, b.Read(dst))
	assert.Equal(t, []float32{10, 11, 12}, dst)
	assert.Equal(t, uint64(4), b.Written())
}

func TestSetSize(t *testing.T) {
	b := doublebuffer.New[int](2)
	b.Write([]int{1, 2})
	b.SetSize(4)
	assert.Equal(t, 4, b.Size())
	assert.False(t, b.Pending())
	dst := make([]int, 4)
	assert.False(t, b.Read(dst))
	assert.Equal(t, []int{0, 0, 0, 0}, dst)
}

func TestWriteNeverBlocks(t *testing.T) {
	b := doublebuffer.New[float64](512)
	src := make([]float64, 512)
	for i := range src {
		src[i] = float64(i)
	}

	var (
		wg   sync.WaitGroup
		stop = make(chan struct{})
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		dst := make([]float64, 512)
		for {
			select {
			case <-stop:
				return
			default:
				if b.Read(dst) {
					// block is never torn.
					for i := range dst {
						if dst[i] != float64(i) {
							t.Errorf("torn read at %d: %v", i, dst[i])
							return
						}
					}
				}
			}
		}
	}()

	writes := 10000
	for i := 0; i < writes; i++ {
		start := time.Now()
		b.Write(src)
		assert.Less(t, time.Since(start), 100*time.Millisecond)
	}
	close(stop)
	wg.Wait()
	assert.Equal(t, uint64(writes), b.Written()+b.Dropped())
}

func TestDropOnContention(t *testing.T) {
	b := doublebuffer.New[int](1)
	// a reader holds the guard while the writer attempts.
	release := make(chan struct{})
	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		b.Lock()
		close(held)
		<-release
		b.Unlock()
		close(done)
	}()
	<-held
	assert.False(t, b.Write([]int{1}))
	assert.Equal(t, uint64(1), b.Dropped())
	close(release)
	<-done
	assert.True(t, b.Write([]int{1}))
}
