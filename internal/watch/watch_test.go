package watch

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watcher/internal/trigger"
	logx "watcher/pkg/logx"
)

func noop(context.Context, Context) error { return nil }

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Get(ctx, "w")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, s.Put(Watch{ID: "b", Action: noop}))
	require.NoError(t, s.Put(Watch{ID: "a", Action: noop, Timeout: time.Second}))
	require.NoError(t, s.Put(Watch{ID: "a", Action: noop, Timeout: 2 * time.Second}))
	assert.Equal(t, 2, s.Len())

	w, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, w.Timeout)

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)

	assert.True(t, s.Delete("a"))
	assert.False(t, s.Delete("a"))
}

func TestWatchValidate(t *testing.T) {
	t.Parallel()
	assert.Error(t, Watch{Action: noop}.Validate())
	assert.Error(t, Watch{ID: "w"}.Validate())
	assert.Error(t, Watch{ID: "w", Action: noop, Timeout: -1}.Validate())
	assert.NoError(t, Watch{ID: "w", Action: noop}.Validate())
}

func TestBuiltinActions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	var buf bytes.Buffer
	wc := Context{
		WatchID: "w",
		TaskID:  "t1",
		Event:   trigger.Event{Type: trigger.TypeManual},
		Log:     logx.NewWriter(&buf, "info"),
	}

	logAction, err := Builtin("log", map[string]string{"message": "disk check"})
	require.NoError(t, err)
	require.NoError(t, logAction(ctx, wc))
	assert.Contains(t, buf.String(), "disk check")
	assert.Contains(t, buf.String(), `"trigger":"manual"`)

	noopAction, err := Builtin("NOOP", nil)
	require.NoError(t, err)
	assert.NoError(t, noopAction(ctx, wc))

	failAction, err := Builtin("fail", map[string]string{"message": "nope"})
	require.NoError(t, err)
	assert.EqualError(t, failAction(ctx, wc), "nope")

	sleepAction, err := Builtin("sleep", map[string]string{"duration": "1h"})
	require.NoError(t, err)
	cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, sleepAction(cctx, wc), context.DeadlineExceeded)

	_, err = Builtin("sleep", map[string]string{"duration": "soon"})
	assert.Error(t, err)
	_, err = Builtin("email", nil)
	assert.ErrorContains(t, err, "unknown action")
}
