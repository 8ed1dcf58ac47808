package gpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/jobs"
)

// RecordFunc records into the primary command buffer of the worker running it.
type RecordFunc func(cb *CommandBuffer) error

// RecordParallel runs every record function on the job system. Each worker
// records into the primary command buffer of its own thread index, and every
// buffer that was used is queued in thread order once all functions finished.
// A buffer whose record function failed or panicked is reset instead of queued.
func (d *Device) RecordParallel(js *jobs.JobSystem, records ...RecordFunc) error {
	if js.NumWorkers() > int(d.config.NumThreads) {
		return fmt.Errorf("%w: %d workers but only %d command buffer threads", core.ErrInvalidConfig, js.NumWorkers(), d.config.NumThreads)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs   []error
		used   = make([]bool, d.config.NumThreads)
		failed = make([]bool, d.config.NumThreads)
	)

	for i, record := range records {
		record := record
		wg.Add(1)
		err := js.Submit(jobs.Task{
			Name: fmt.Sprintf("record-%d", i),
			OnStart: func(worker int) error {
				cb := d.GetCommandBuffer(uint32(worker), true)
				mu.Lock()
				used[worker] = true
				mu.Unlock()

				ok := false
				defer func() {
					if !ok {
						mu.Lock()
						failed[worker] = true
						mu.Unlock()
					}
				}()
				err := record(cb)
				ok = err == nil
				return err
			},
			OnFailure: func(err error) {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			},
			OnCompletionCallback: wg.Done,
		})
		if err != nil {
			wg.Done()
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
	}
	wg.Wait()

	for thread, u := range used {
		if !u {
			continue
		}
		cb := d.commandBuffers[d.currentFrame][thread]
		if failed[thread] {
			core.LogWarn("discarding partially recorded command buffer %d on thread %d", cb.handle, thread)
			cb.Reset()
			continue
		}
		d.QueueCommandBuffer(cb)
	}
	return errors.Join(errs...)
}
