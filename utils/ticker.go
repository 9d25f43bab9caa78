package utils

import (
	"context"
	"time"

	goutils "go.viam.com/utils"

	"go.viam.com/fieldscout/logging"
)

// slowLogIntervals are the waits before each warning; the last one repeats.
var slowLogIntervals = []time.Duration{2 * time.Second, 3 * time.Second, 5 * time.Second}

// SlowLogger warns every few seconds until the returned func is called or ctx is done. Call the
// returned func once the slow operation finishes.
func SlowLogger(ctx context.Context, msg, fieldName, fieldVal string, logger logging.Logger) func() {
	ctxWithCancel, cancel := context.WithCancel(ctx)
	startTime := time.Now()
	done := make(chan struct{})
	goutils.PanicCapturingGo(func() {
		defer close(done)
		for i := 0; ; i++ {
			wait := slowLogIntervals[min(i, len(slowLogIntervals)-1)]
			if !goutils.SelectContextOrWait(ctxWithCancel, wait) {
				return
			}
			elapsed := time.Since(startTime).Round(time.Millisecond).String()
			logger.CWarnw(ctx, msg, fieldName, fieldVal, "time_elapsed", elapsed)
		}
	})
	return func() {
		cancel()
		<-done
	}
}
