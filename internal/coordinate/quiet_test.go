package coordinate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/avridey/outrigger/internal/podwatch"
)

func runningPod(runningContainers, totalContainers int) *corev1.Pod {
	containers := make([]corev1.Container, 0, totalContainers)
	statuses := make([]corev1.ContainerStatus, 0, totalContainers)
	for i := 0; i < totalContainers; i++ {
		name := string(rune('a' + i))
		containers = append(containers, corev1.Container{Name: name})
		st := corev1.ContainerStatus{Name: name}
		if i < runningContainers {
			st.State = corev1.ContainerState{
				Running: &corev1.ContainerStateRunning{StartedAt: metav1.Now()},
			}
		} else {
			st.State = corev1.ContainerState{
				Terminated: &corev1.ContainerStateTerminated{ExitCode: 0},
			}
		}
		statuses = append(statuses, st)
	}
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "pod1", Namespace: "default"},
		Spec:       corev1.PodSpec{Containers: containers},
		Status:     corev1.PodStatus{ContainerStatuses: statuses},
	}
}

func gracePod(seconds int64) *corev1.Pod {
	return &corev1.Pod{
		Spec: corev1.PodSpec{TerminationGracePeriodSeconds: &seconds},
	}
}

func TestGracePeriod(t *testing.T) {
	assert.Equal(t, DefaultGracePeriod, GracePeriod(nil))
	assert.Equal(t, DefaultGracePeriod, GracePeriod(&corev1.Pod{}))
	assert.Equal(t, 5*time.Second, GracePeriod(gracePod(5)))
	assert.Equal(t, time.Duration(0), GracePeriod(gracePod(0)))
	assert.Equal(t, DefaultGracePeriod, GracePeriod(gracePod(-1)))
}

func TestWaitForQuietDoneAtOneSurvivor(t *testing.T) {
	fc := clocktesting.NewFakeClock(time.Now())
	src := newChanSource(3)

	src.ch <- podwatch.Event{Pod: runningPod(2, 2)}
	src.ch <- podwatch.Event{Err: errors.New("blip")}
	src.ch <- podwatch.Event{Pod: runningPod(1, 2)}

	out := WaitForQuiet(context.Background(), src, gracePod(60), fc, zaptest.NewLogger(t))
	assert.Equal(t, Success, out.Kind)
}

func TestWaitForQuietErrorsOnlyUntilDeadline(t *testing.T) {
	fc := clocktesting.NewFakeClock(time.Now())
	src := newChanSource(3)
	for i := 0; i < 3; i++ {
		src.ch <- podwatch.Event{Err: errors.New("watch hiccup")}
	}

	done := make(chan Outcome, 1)
	go func() {
		done <- WaitForQuiet(context.Background(), src, gracePod(10), fc, zaptest.NewLogger(t))
	}()

	require.Eventually(t, fc.HasWaiters, 5*time.Second, time.Millisecond)
	fc.Step(10 * time.Second)

	out := <-done
	assert.Equal(t, Timeout, out.Kind)
}

func TestWaitForQuietDefaultGraceWhenUnset(t *testing.T) {
	fc := clocktesting.NewFakeClock(time.Now())
	src := newChanSource(1)

	done := make(chan Outcome, 1)
	go func() {
		done <- WaitForQuiet(context.Background(), src, &corev1.Pod{}, fc, zaptest.NewLogger(t))
	}()

	require.Eventually(t, fc.HasWaiters, 5*time.Second, time.Millisecond)
	// One second short of the default: nothing fires yet.
	fc.Step(DefaultGracePeriod - time.Second)
	fc.Step(time.Second)

	out := <-done
	assert.Equal(t, Timeout, out.Kind)
}

func TestWaitForQuietWatchEnds(t *testing.T) {
	fc := clocktesting.NewFakeClock(time.Now())
	src := newChanSource(1)
	close(src.ch)

	out := WaitForQuiet(context.Background(), src, gracePod(60), fc, zaptest.NewLogger(t))
	require.Equal(t, Failure, out.Kind)
	assert.Error(t, out.Err)
}

func TestContainerCounts(t *testing.T) {
	running, total := containerCounts(nil)
	assert.Nil(t, running)
	assert.Nil(t, total)

	// Declared containers but no reported statuses yet: running is unknown,
	// never zero.
	running, total = containerCounts(&corev1.Pod{
		Spec: corev1.PodSpec{Containers: []corev1.Container{{Name: "main"}}},
	})
	assert.Nil(t, running)
	require.NotNil(t, total)
	assert.Equal(t, 1, *total)

	running, total = containerCounts(runningPod(1, 3))
	require.NotNil(t, running)
	require.NotNil(t, total)
	assert.Equal(t, 1, *running)
	assert.Equal(t, 3, *total)
}

func TestFormatCount(t *testing.T) {
	assert.Equal(t, "<unknown>", formatCount(nil))
	n := 2
	assert.Equal(t, "2", formatCount(&n))
}
