// Package readiness decides, from a single pod snapshot, whether the
// sidecars are ready for the main workload to start.
package readiness

import (
	"errors"
	"fmt"

	corev1 "k8s.io/api/core/v1"
)

// State is the verdict for one pod snapshot.
type State int

const (
	// NotReady means at least one sidecar has not signalled readiness yet;
	// keep watching.
	NotReady State = iota
	// Ready means every sidecar reports ready (and started, where the
	// cluster reports the started bit).
	Ready
	// TransientError means the snapshot could not be classified; keep
	// watching.
	TransientError
	// FatalError means a sidecar terminated and will never be restarted;
	// there is no point waiting any longer.
	FatalError
)

func (s State) String() string {
	switch s {
	case NotReady:
		return "not-ready"
	case Ready:
		return "ready"
	case TransientError:
		return "transient-error"
	case FatalError:
		return "fatal-error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Result carries the verdict and, for the error states, its cause.
type Result struct {
	State State
	Err   error
}

// Classify maps one pod snapshot to a readiness verdict. The first declared
// container is the main one; every other declared container is a sidecar.
// The function is pure: the same snapshot always yields the same result.
//
// A sidecar whose status has not been reported yet counts as not ready,
// never as ready. A terminated sidecar is fatal only when the pod's restart
// policy is exactly Never; under any other policy (or none) the platform
// will restart it, so the verdict is not-ready. Termination under Never
// takes priority over a simultaneously observed all-ready status: a sidecar
// that already exited cannot be trusted even if its last reported readiness
// bit was true.
func Classify(pod *corev1.Pod) Result {
	if pod == nil || len(pod.Spec.Containers) == 0 {
		return Result{State: TransientError, Err: errors.New("pod declares no containers")}
	}

	statuses := make(map[string]corev1.ContainerStatus, len(pod.Status.ContainerStatuses))
	for _, st := range pod.Status.ContainerStatuses {
		statuses[st.Name] = st
	}

	var terminated string
	allReady := true
	for _, c := range pod.Spec.Containers[1:] {
		st, reported := statuses[c.Name]
		if !reported {
			allReady = false
			continue
		}
		if st.State.Terminated != nil {
			terminated = c.Name
		}
		if !st.Ready || (st.Started != nil && !*st.Started) {
			allReady = false
		}
	}

	switch {
	case terminated != "" && pod.Spec.RestartPolicy == corev1.RestartPolicyNever:
		return Result{
			State: FatalError,
			Err:   fmt.Errorf("sidecar %q terminated and restartPolicy is Never", terminated),
		}
	case terminated != "":
		return Result{State: NotReady}
	case allReady:
		return Result{State: Ready}
	default:
		return Result{State: NotReady}
	}
}
