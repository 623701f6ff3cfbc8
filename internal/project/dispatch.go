package project

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrDispatcherClosed is returned by Do after the dispatcher has shut down.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// Dispatcher runs functions on the goroutine that owns the map project.
type Dispatcher interface {
	// Do runs fn on the UI goroutine and waits for it to return.
	Do(ctx context.Context, fn func()) error
}

type task struct {
	fn   func()
	done chan error
}

// EventLoop is a Dispatcher backed by one dedicated goroutine. It stands in
// for the UI goroutine when no interactive view is running.
type EventLoop struct {
	tasks  chan task
	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

var _ Dispatcher = (*EventLoop)(nil)

// NewEventLoop starts the loop goroutine. Call Close to stop it.
func NewEventLoop() *EventLoop {
	l := &EventLoop{
		tasks:  make(chan task),
		stopCh: make(chan struct{}),
	}
	l.wg.Add(1)
	go l.run()
	return l
}

func (l *EventLoop) run() {
	defer l.wg.Done()
	for {
		select {
		case <-l.stopCh:
			return
		case t := <-l.tasks:
			t.done <- runTask(t.fn)
		}
	}
}

func runTask(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatched function panicked: %v", r)
		}
	}()
	fn()
	return nil
}

// Do runs fn on the loop goroutine. If ctx ends before fn is picked up, fn
// never runs. Once picked up, Do waits for fn to finish.
func (l *EventLoop) Do(ctx context.Context, fn func()) error {
	t := task{fn: fn, done: make(chan error, 1)}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopCh:
		return ErrDispatcherClosed
	case l.tasks <- t:
	}
	return <-t.done
}

// Close stops the loop goroutine and waits for it. Safe to call multiple times.
func (l *EventLoop) Close() {
	l.once.Do(func() {
		close(l.stopCh)
	})
	l.wg.Wait()
}
