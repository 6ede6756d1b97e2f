package coordinate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/avridey/outrigger/internal/podwatch"
	"github.com/avridey/outrigger/internal/readiness"
	"github.com/avridey/outrigger/internal/stream"
)

// WaitForReady watches the pod until every sidecar reports readiness, a
// sidecar fails in a way the platform will not repair, or the budget
// elapses. Watch errors are logged and waited through; a single failed
// observation never aborts the wait. Only the first terminal event counts.
func WaitForReady(ctx context.Context, src podwatch.Source, budget time.Duration, clk clock.Clock, log *zap.Logger) Outcome {
	log = log.With(zap.String("phase", "ready-wait"))

	events, err := src.Open(ctx)
	if err != nil {
		return failed(fmt.Errorf("opening pod watch: %w", err))
	}
	timed := stream.NewHolisticTimeout(clk, events, budget)

	for {
		ev, ok := timed.Next(ctx)
		if !ok {
			return failed(errors.New("pod watch ended before sidecars became ready"))
		}
		if ev.DeadlineElapsed {
			log.Warn("Timed out waiting for sidecars to become ready", zap.Duration("budget", budget))
			return timedOut()
		}
		if ev.Item.Err != nil {
			log.Info("Watch error; still waiting for readiness", zap.Error(ev.Item.Err))
			continue
		}

		res := readiness.Classify(ev.Item.Pod)
		switch res.State {
		case readiness.Ready:
			log.Info("Sidecars are ready")
			return success(ev.Item.Pod)
		case readiness.FatalError:
			return failed(res.Err)
		case readiness.TransientError:
			log.Info("Unsure if ready", zap.Error(res.Err))
		default:
			log.Debug("Sidecars not ready yet")
		}
	}
}
