package pipeline

import (
	"golang.org/x/time/rate"

	"github.com/tomostream/tomostream/internal/logging"
	"go.uber.org/zap"
)

// Progress is invoked once per iteration with the current iteration and the
// total chunk count. It is the pipeline's only observable output besides
// the destination array.
type Progress func(current, total int)

// NopProgress discards progress reports.
func NopProgress(int, int) {}

// LogProgress reports progress through the logger, rate-limited so chunk
// counts in the thousands do not flood the output. The final report always
// goes through.
func LogProgress(log *logging.Logger, pass string) Progress {
	limiter := rate.NewLimiter(rate.Limit(5), 1)
	return func(current, total int) {
		if current >= total+1 || limiter.Allow() {
			log.Info("pipeline progress",
				zap.String("pass", pass),
				zap.Int("iteration", current),
				zap.Int("chunks", total))
		}
	}
}
