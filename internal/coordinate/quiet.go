package coordinate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/utils/clock"

	"github.com/avridey/outrigger/internal/podwatch"
	"github.com/avridey/outrigger/internal/stream"
)

// DefaultGracePeriod bounds the shutdown wait when the pod does not declare
// a termination grace period.
const DefaultGracePeriod = 30 * time.Second

// WaitForQuiet watches the pod until only one container is still running,
// bounded by the pod's termination grace period. The one-survivor check is
// a coarse proxy for "only the main container remains": it counts running
// containers without verifying which one survives, so a sidecar that
// outlives the main container is misclassified as done. That limitation is
// inherited and deliberate.
//
// Neither a timeout nor a failure here is fatal to the coordinator; the
// caller logs it and still exits with the main workload's own status.
func WaitForQuiet(ctx context.Context, src podwatch.Source, pod *corev1.Pod, clk clock.Clock, log *zap.Logger) Outcome {
	log = log.With(zap.String("phase", "shutdown-wait"))
	grace := GracePeriod(pod)

	events, err := src.Open(ctx)
	if err != nil {
		return failed(fmt.Errorf("opening pod watch: %w", err))
	}
	timed := stream.NewHolisticTimeout(clk, events, grace)

	for {
		ev, ok := timed.Next(ctx)
		if !ok {
			return failed(errors.New("pod watch ended before sidecars stopped"))
		}
		if ev.DeadlineElapsed {
			log.Info("Gave up waiting for sidecars to stop", zap.Duration("grace", grace))
			return timedOut()
		}
		if ev.Item.Err != nil {
			log.Info("Watch error; still waiting for sidecars to stop", zap.Error(ev.Item.Err))
			continue
		}

		running, total := containerCounts(ev.Item.Pod)
		log.Debug(fmt.Sprintf("%s/%s containers are still running.", formatCount(running), formatCount(total)))
		if running != nil && *running == 1 {
			return success(ev.Item.Pod)
		}
	}
}

// GracePeriod returns the pod's configured termination grace period when it
// is present and non-negative, else DefaultGracePeriod.
func GracePeriod(pod *corev1.Pod) time.Duration {
	if pod != nil && pod.Spec.TerminationGracePeriodSeconds != nil {
		if s := *pod.Spec.TerminationGracePeriodSeconds; s >= 0 {
			return time.Duration(s) * time.Second
		}
	}
	return DefaultGracePeriod
}

// containerCounts reports how many of the pod's containers are running and
// how many are declared. A nil count means the snapshot does not carry the
// information: statuses not reported yet, or no declared containers. An
// absent status never counts as running.
func containerCounts(pod *corev1.Pod) (running, total *int) {
	if pod == nil {
		return nil, nil
	}
	if pod.Status.ContainerStatuses != nil {
		n := 0
		for _, st := range pod.Status.ContainerStatuses {
			if st.State.Running != nil {
				n++
			}
		}
		running = &n
	}
	if len(pod.Spec.Containers) > 0 {
		n := len(pod.Spec.Containers)
		total = &n
	}
	return running, total
}

func formatCount(n *int) string {
	if n == nil {
		return "<unknown>"
	}
	return strconv.Itoa(*n)
}
