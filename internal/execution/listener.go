package execution

import (
	"context"

	"watcher/internal/trigger"
	"watcher/internal/watch"
)

// AsyncListener hands each firing to the executor and returns as soon as
// the task is accepted. The firing goroutine never waits for execution.
type AsyncListener struct {
	exec  Executor
	store watch.Store
}

func NewAsyncListener(exec Executor, store watch.Store) *AsyncListener {
	return &AsyncListener{exec: exec, store: store}
}

func (l *AsyncListener) OnFire(ctx context.Context, ev trigger.Event) error {
	return l.exec.Submit(ctx, NewTask(ev, l.store))
}

// SyncListener submits each firing and waits for the task to finish, so the
// caller can assert on its effects as soon as the firing returns.
//
// A task that ran and failed is not an error here; it is recorded like any
// other outcome. Only refusal or ctx ending early is returned.
type SyncListener struct {
	exec  Executor
	store watch.Store
}

func NewSyncListener(exec Executor, store watch.Store) *SyncListener {
	return &SyncListener{exec: exec, store: store}
}

func (l *SyncListener) OnFire(ctx context.Context, ev trigger.Event) error {
	t := NewTask(ev, l.store)
	if err := l.exec.Submit(ctx, t); err != nil {
		return err
	}
	if err := t.Wait(ctx); err != nil && !t.State().Terminal() {
		return err
	}
	return nil
}
