package jobs

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJobSystemValidatesArguments(t *testing.T) {
	_, err := NewJobSystem(0, 1)
	assert.ErrorIs(t, err, ErrNoWorkers)

	_, err = NewJobSystem(1, -1)
	assert.ErrorIs(t, err, ErrNegativeChannelSize)

	js, err := NewJobSystem(3, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, js.NumWorkers())
	require.NoError(t, js.Shutdown())
}

func TestSubmitRunsCallbacks(t *testing.T) {
	js, err := NewJobSystem(4, 16)
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		completed atomic.Int32
		failed    atomic.Int32
		workers   sync.Map
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		require.NoError(t, js.Submit(Task{
			Name: "count",
			OnStart: func(worker int) error {
				workers.Store(worker, true)
				return nil
			},
			OnComplete:           func() { completed.Add(1) },
			OnFailure:            func(error) { failed.Add(1) },
			OnCompletionCallback: wg.Done,
		}))
	}
	wg.Wait()
	require.NoError(t, js.Shutdown())

	assert.Equal(t, int32(32), completed.Load())
	assert.Zero(t, failed.Load())
	workers.Range(func(key, _ any) bool {
		w := key.(int)
		assert.True(t, w >= 0 && w < 4, "worker index %d", w)
		return true
	})
}

func TestFailingAndPanickingTasks(t *testing.T) {
	js, err := NewJobSystem(1, 4)
	require.NoError(t, err)
	defer js.Shutdown()

	errBoom := errors.New("boom")
	results := make(chan error, 3)
	submit := func(start func(int) error) {
		require.NoError(t, js.Submit(Task{
			Name:       "fail",
			OnStart:    start,
			OnComplete: func() { results <- nil },
			OnFailure:  func(err error) { results <- err },
		}))
	}

	submit(func(int) error { return errBoom })
	submit(func(int) error { panic(errBoom) })
	submit(func(int) error { panic("not an error") })

	assert.ErrorIs(t, <-results, errBoom)
	assert.ErrorIs(t, <-results, errBoom)
	last := <-results
	require.Error(t, last)
	assert.Contains(t, last.Error(), "not an error")
}

func TestTaskWithoutStartCompletes(t *testing.T) {
	js, err := NewJobSystem(1, 1)
	require.NoError(t, err)

	done := make(chan struct{})
	require.NoError(t, js.Submit(Task{OnComplete: func() { close(done) }}))
	<-done
	require.NoError(t, js.Shutdown())
}

func TestSubmitAfterShutdown(t *testing.T) {
	js, err := NewJobSystem(2, 1)
	require.NoError(t, err)
	require.NoError(t, js.Shutdown())
	require.NoError(t, js.Shutdown())

	assert.ErrorIs(t, js.Submit(Task{Name: "late"}), ErrShutdown)
}
