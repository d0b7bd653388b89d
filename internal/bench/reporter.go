package bench

import (
	"fmt"
	"time"

	"github.com/buckleypaul/sealion/internal/clock"
)

// ReportInterval is how often the elapsed time is published.
const ReportInterval = time.Second

// FormatElapsed renders d as "<m> min <s> sec".
func FormatElapsed(d time.Duration) string {
	s := int(d / time.Second)
	return fmt.Sprintf("%d min %d sec", s/60, s%60)
}

// ElapsedReporter publishes the run's elapsed time until stopped, then a
// final "Done:" line.
type ElapsedReporter struct {
	Clock    clock.Clock
	Interval time.Duration
	Emit     func(text string)
}

// Run blocks until stop is closed.
func (r *ElapsedReporter) Run(stop <-chan struct{}) {
	clk := r.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	interval := r.Interval
	if interval <= 0 {
		interval = ReportInterval
	}
	start := clk.Now()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			r.Emit("Done: " + FormatElapsed(clk.Now().Sub(start)))
			return
		case <-ticker.C:
			r.Emit(FormatElapsed(clk.Now().Sub(start)))
		}
	}
}
