package notify

import (
	"context"
	"os"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

// SignalNotifier supplements HTTP notification with SIGTERM delivery. It is
// only constructed when signal-based shutdown is configured; deployments
// without the capability get the plain HTTPNotifier.
type SignalNotifier struct {
	http  *HTTPNotifier
	names []string
	// sweep is set when no explicit target of any kind was configured and
	// signal-all was enabled: every visible process except our own gets the
	// signal. This is the only implicit default.
	sweep bool
	log   *zap.Logger
}

func NewSignalNotifier(http *HTTPNotifier, cfg Config, log *zap.Logger) *SignalNotifier {
	explicit := len(cfg.GetURLs) + len(cfg.PostURLs) + len(cfg.ProcessNames)
	return &SignalNotifier{
		http:  http,
		names: cfg.ProcessNames,
		sweep: explicit == 0 && cfg.SignalAll,
		log:   log,
	}
}

// Target identifies one process selected for termination.
type Target struct {
	PID  int32
	Name string
}

func (n *SignalNotifier) Notify(ctx context.Context) {
	n.http.Notify(ctx)

	if len(n.names) == 0 && !n.sweep {
		return
	}

	procs, err := snapshotProcesses()
	if err != nil {
		n.log.Warn("Unable to read the process table; no signals will be sent", zap.Error(err))
		return
	}

	for _, t := range SelectTargets(procs, n.names, n.sweep, int32(os.Getpid())) {
		n.terminate(t)
	}
}

// snapshotProcesses reads the process table once per notification; there is
// no persistent registry to keep in sync.
func snapshotProcesses() ([]Target, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}
	targets := make([]Target, 0, len(procs))
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			// The process may have exited between listing and inspection.
			continue
		}
		targets = append(targets, Target{PID: p.Pid, Name: name})
	}
	return targets, nil
}

// SelectTargets filters a process-table snapshot down to the processes to
// signal: those whose executable name is in names, or, when sweep is set,
// everything except self. Pure function; the snapshot is taken by the
// caller.
func SelectTargets(procs []Target, names []string, sweep bool, self int32) []Target {
	byName := make(map[string]bool, len(names))
	for _, n := range names {
		byName[n] = true
	}

	var selected []Target
	for _, p := range procs {
		if p.PID == self {
			continue
		}
		if byName[p.Name] || sweep {
			selected = append(selected, p)
		}
	}
	return selected
}

func (n *SignalNotifier) terminate(t Target) {
	log := n.log.With(zap.Int32("pid", t.PID), zap.String("name", t.Name))

	p, err := process.NewProcess(t.PID)
	if err != nil {
		log.Info("Process vanished before it could be signalled", zap.Error(err))
		return
	}
	if err := p.Terminate(); err != nil {
		log.Info("Unable to signal process", zap.Error(err))
		return
	}
	log.Debug("Sent SIGTERM")
}
