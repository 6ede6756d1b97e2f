// Package podwatch streams live snapshots of the coordinator's own pod.
//
// A session is a possibly infinite sequence of events, each carrying either
// a pod snapshot or an error. The session never ends on its own: dropped
// watches are reopened with backoff, failures are forwarded as error events,
// and the channel closes only when the caller's context is done. Consumers
// treat a closed channel as a failure, so that contract matters.
package podwatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/buildkite/roko"
	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
)

// Event is one observation from a watch session: a pod snapshot or an
// error, never both. Snapshots are read-only to consumers and are only ever
// superseded by the next event.
type Event struct {
	Pod *corev1.Pod
	Err error
}

// Source opens watch sessions. Each wait phase opens its own session;
// sessions are never shared across phases.
type Source interface {
	Open(ctx context.Context) (<-chan Event, error)
}

// PodWatcher is the Kubernetes-backed Source. It watches a single pod by
// name in one namespace.
type PodWatcher struct {
	client    kubernetes.Interface
	namespace string
	podName   string
	log       *zap.Logger
	retryOpts []roko.RetrierOpt
}

func NewPodWatcher(client kubernetes.Interface, namespace, podName string, log *zap.Logger) *PodWatcher {
	return &PodWatcher{
		client:    client,
		namespace: namespace,
		podName:   podName,
		log:       log.With(zap.String("pod", podName), zap.String("namespace", namespace)),
		retryOpts: []roko.RetrierOpt{
			roko.WithMaxAttempts(5),
			roko.WithStrategy(roko.Exponential(time.Second, 0)),
		},
	}
}

// Open starts a watch session. The returned channel closes only when ctx is
// done.
func (w *PodWatcher) Open(ctx context.Context) (<-chan Event, error) {
	events := make(chan Event)
	go w.run(ctx, events)
	return events, nil
}

func (w *PodWatcher) run(ctx context.Context, events chan<- Event) {
	defer close(events)

	for {
		wi, err := w.openWatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !emit(ctx, events, Event{Err: fmt.Errorf("opening pod watch: %w", err)}) {
				return
			}
			continue
		}
		if !w.consume(ctx, wi, events) {
			return
		}
		w.log.Debug("Pod watch dropped; reopening")
	}
}

// openWatch opens the underlying watch, retrying with exponential backoff.
// After the attempts are exhausted the error is surfaced as an event and a
// fresh round of attempts begins, so the session never stalls silently.
func (w *PodWatcher) openWatch(ctx context.Context) (watch.Interface, error) {
	r := roko.NewRetrier(w.retryOpts...)
	return roko.DoFunc(ctx, r, func(r *roko.Retrier) (watch.Interface, error) {
		wi, err := w.client.CoreV1().Pods(w.namespace).Watch(ctx, metav1.ListOptions{
			FieldSelector: fields.OneTermEqualSelector("metadata.name", w.podName).String(),
		})
		if err != nil {
			w.log.Warn("Unable to open pod watch", zap.Error(err), zap.Int("attempt", r.AttemptCount()))
		}
		return wi, err
	})
}

// consume forwards events from one underlying watch until it drops or ctx is
// done. It returns false when the session should end.
func (w *PodWatcher) consume(ctx context.Context, wi watch.Interface, events chan<- Event) bool {
	defer wi.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-wi.ResultChan():
			if !ok {
				return true
			}
			if !emit(ctx, events, translate(ev)) {
				return false
			}
		}
	}
}

func emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// translate maps one client-go watch event to a session event. A deleted
// pod is forwarded as an error: the pod object it carries describes a pod
// that no longer exists and must not be classified as a live snapshot.
func translate(ev watch.Event) Event {
	switch ev.Type {
	case watch.Error:
		return Event{Err: fmt.Errorf("pod watch error: %w", apierrors.FromObject(ev.Object))}
	case watch.Deleted:
		return Event{Err: errors.New("pod was deleted while being watched")}
	default:
		pod, ok := ev.Object.(*corev1.Pod)
		if !ok {
			return Event{Err: fmt.Errorf("pod watch delivered unexpected object %T", ev.Object)}
		}
		return Event{Pod: pod}
	}
}
