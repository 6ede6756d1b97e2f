// Package coordinate drives the two watch-backed wait phases of the
// coordinator: waiting for sidecars to become ready before the main
// workload starts, and waiting for them to stop after it exits. Both phases
// consume one fresh watch session through one fresh holistic timeout and
// reduce to the same terminal Outcome shape; only their classifiers differ.
package coordinate

import corev1 "k8s.io/api/core/v1"

// Kind is the terminal result of one wait phase.
type Kind int

const (
	// Success means the phase's predicate was satisfied.
	Success Kind = iota
	// Timeout means the phase's deadline elapsed first.
	Timeout
	// Failure means the phase cannot succeed: a fatal classification, or a
	// watch session that ended before a verdict was reached.
	Failure
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Timeout:
		return "timeout"
	case Failure:
		return "failure"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of a wait phase. Pod carries the snapshot
// that satisfied the predicate on Success; Err carries the cause on
// Failure.
type Outcome struct {
	Kind Kind
	Pod  *corev1.Pod
	Err  error
}

func success(pod *corev1.Pod) Outcome { return Outcome{Kind: Success, Pod: pod} }
func timedOut() Outcome               { return Outcome{Kind: Timeout} }
func failed(err error) Outcome        { return Outcome{Kind: Failure, Err: err} }
