package host

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestThread_InvokeRunsTask(t *testing.T) {
	th := NewThread(4, time.Second)
	th.Start()
	defer th.Stop()

	ran := false
	err := th.Invoke(context.Background(), func() error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if !ran {
		t.Error("task did not run")
	}
}

func TestThread_PropagatesTaskError(t *testing.T) {
	th := NewThread(4, time.Second)
	th.Start()
	defer th.Stop()

	boom := errors.New("boom")
	if err := th.Invoke(context.Background(), func() error { return boom }); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestThread_TasksAreSequential(t *testing.T) {
	th := NewThread(16, 5*time.Second)
	th.Start()
	defer th.Stop()

	// Concurrent invokers must never observe interleaved execution.
	var inside, max int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = th.Invoke(context.Background(), func() error {
				mu.Lock()
				inside++
				if inside > max {
					max = inside
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	if max != 1 {
		t.Errorf("observed %d tasks executing concurrently, want 1", max)
	}
}

func TestThread_HandoffTimeout(t *testing.T) {
	th := NewThread(1, 50*time.Millisecond)
	th.Start()
	defer th.Stop()

	// Occupy the thread and fill the queue so the next hand-off stalls.
	release := make(chan struct{})
	go func() {
		_ = th.Invoke(context.Background(), func() error {
			<-release
			return nil
		})
	}()
	time.Sleep(10 * time.Millisecond)
	go func() {
		_ = th.Invoke(context.Background(), func() error { return nil })
	}()
	time.Sleep(10 * time.Millisecond)

	err := th.Invoke(context.Background(), func() error { return nil })
	if !errors.Is(err, ErrHostTimeout) {
		t.Errorf("err = %v, want ErrHostTimeout", err)
	}
	close(release)
}

func TestThread_CompletionTimeout(t *testing.T) {
	th := NewThread(4, 50*time.Millisecond)
	th.Start()
	defer th.Stop()

	release := make(chan struct{})
	err := th.Invoke(context.Background(), func() error {
		<-release
		return nil
	})
	if !errors.Is(err, ErrHostTimeout) {
		t.Errorf("err = %v, want ErrHostTimeout", err)
	}
	close(release)
}

func TestThread_ContextCancellation(t *testing.T) {
	th := NewThread(4, time.Minute)
	th.Start()
	defer th.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	defer close(release)

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := th.Invoke(ctx, func() error {
		<-release
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestThread_PanicContained(t *testing.T) {
	th := NewThread(4, time.Second)
	th.Start()
	defer th.Stop()

	err := th.Invoke(context.Background(), func() error {
		panic("invariant violated")
	})
	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *PanicError", err)
	}
	if pe.Value != "invariant violated" {
		t.Errorf("Value = %v", pe.Value)
	}
	if len(pe.Stack) == 0 {
		t.Error("panic stack not captured")
	}

	// The thread keeps serving after a panic.
	if err := th.Invoke(context.Background(), func() error { return nil }); err != nil {
		t.Errorf("Invoke after panic error = %v", err)
	}
}

func TestThread_StoppedRejectsTasks(t *testing.T) {
	th := NewThread(4, time.Second)
	th.Start()
	th.Stop()

	if err := th.Invoke(context.Background(), func() error { return nil }); !errors.Is(err, ErrStopped) {
		t.Errorf("err = %v, want ErrStopped", err)
	}
}
