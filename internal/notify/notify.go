// Package notify asks the sidecar containers to stop. Notification is
// best-effort fan-out: every configured target is attempted, failures are
// logged per target and never aggregated or retried, and the notifier does
// not wait for the sidecars to act — that is the shutdown-wait phase's job.
package notify

import (
	"context"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/avridey/outrigger/internal/version"
)

// Config is the notification surface handed down from the CLI.
type Config struct {
	// GetURLs are notified with an HTTP GET each.
	GetURLs []string
	// PostURLs are notified with an empty-body HTTP POST each.
	PostURLs []string
	// ProcessNames are executable names to send SIGTERM to.
	ProcessNames []string
	// SignalAll, when set and no explicit target of any kind is configured,
	// sends SIGTERM to every visible process except the coordinator itself.
	SignalAll bool
}

// Notifier fans out stop notifications to sidecars.
type Notifier interface {
	Notify(ctx context.Context)
}

// New selects the notifier implementation for cfg at construction time:
// HTTP-only unless any signal-based behavior is configured.
func New(cfg Config, log *zap.Logger) Notifier {
	httpN := NewHTTPNotifier(cfg.GetURLs, cfg.PostURLs, log)
	if len(cfg.ProcessNames) == 0 && !cfg.SignalAll {
		return httpN
	}
	return NewSignalNotifier(httpN, cfg, log)
}

// HTTPNotifier notifies sidecars over HTTP. All requests share one client,
// which is safe for concurrent use, and are dispatched concurrently; Notify
// returns when the last one completes or fails.
type HTTPNotifier struct {
	client   *http.Client
	getURLs  []string
	postURLs []string
	log      *zap.Logger
}

func NewHTTPNotifier(getURLs, postURLs []string, log *zap.Logger) *HTTPNotifier {
	return &HTTPNotifier{
		client:   &http.Client{Timeout: 10 * time.Second},
		getURLs:  getURLs,
		postURLs: postURLs,
		log:      log,
	}
}

func (n *HTTPNotifier) Notify(ctx context.Context) {
	var g errgroup.Group
	for _, url := range n.getURLs {
		g.Go(func() error {
			n.send(ctx, http.MethodGet, url)
			return nil
		})
	}
	for _, url := range n.postURLs {
		g.Go(func() error {
			n.send(ctx, http.MethodPost, url)
			return nil
		})
	}
	// Errors are logged per target inside send; nothing propagates.
	_ = g.Wait()
}

func (n *HTTPNotifier) send(ctx context.Context, method, url string) {
	log := n.log.With(zap.String("method", method), zap.String("url", url))

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		log.Warn("Error building shutdown request", zap.Error(err))
		return
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := n.client.Do(req)
	if err != nil {
		log.Warn("Error sending shutdown request", zap.Error(err))
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn("Shutdown request rejected", zap.String("status", resp.Status))
	}
}
