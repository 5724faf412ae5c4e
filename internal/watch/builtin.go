package watch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	logx "watcher/pkg/logx"
)

// Builtin action names usable from config.
const (
	KindLog   = "log"
	KindNoop  = "noop"
	KindFail  = "fail"
	KindSleep = "sleep"
)

// Builtin returns the named action configured with params.
//
//	log:   logs "message" (default "watch fired") at info; wc.Log carries the watch and task ids
//	noop:  does nothing
//	fail:  returns an error carrying "message"
//	sleep: waits "duration" (Go duration) or until canceled
func Builtin(kind string, params map[string]string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindLog:
		msg := params["message"]
		if msg == "" {
			msg = "watch fired"
		}
		return func(_ context.Context, wc Context) error {
			wc.Log.Info(msg,
				logx.String("trigger", wc.Event.Type),
				logx.Time("scheduled", wc.Event.ScheduledTime),
				logx.Duration("drift", wc.Event.Drift()),
			)
			return nil
		}, nil
	case KindNoop:
		return func(context.Context, Context) error { return nil }, nil
	case KindFail:
		msg := params["message"]
		if msg == "" {
			msg = "configured to fail"
		}
		return func(context.Context, Context) error { return errors.New(msg) }, nil
	case KindSleep:
		d, err := time.ParseDuration(strings.TrimSpace(params["duration"]))
		if err != nil || d < 0 {
			return nil, fmt.Errorf("sleep action: invalid duration %q", params["duration"])
		}
		return func(ctx context.Context, _ Context) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		}, nil
	default:
		return nil, fmt.Errorf("unknown action %q (have %s)", kind, strings.Join(BuiltinKinds(), ", "))
	}
}

func BuiltinKinds() []string {
	out := []string{KindLog, KindNoop, KindFail, KindSleep}
	sort.Strings(out)
	return out
}
