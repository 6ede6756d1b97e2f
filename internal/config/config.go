// Package config holds the coordinator's configuration surface, filled in
// by the CLI layer.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Config is everything the coordinator needs for one run.
type Config struct {
	// ShutdownHTTPGet are URLs to GET to prompt sidecars to shut down.
	ShutdownHTTPGet []string
	// ShutdownHTTPPost are URLs to POST to (empty body) to prompt sidecars
	// to shut down.
	ShutdownHTTPPost []string
	// KillProcesses are executable names to SIGTERM on shutdown.
	KillProcesses []string
	// KillAll sends SIGTERM to every other visible process on shutdown when
	// no explicit shutdown target is configured.
	KillAll bool

	// ReadyTimeout bounds how long the sidecars may take to become ready.
	ReadyTimeout time.Duration

	// Namespace overrides the namespace detected from the service account
	// mount.
	Namespace string
	// Kubeconfig is the kubeconfig path used when running outside a pod.
	Kubeconfig string

	// Command and Args are the main workload to run once sidecars are
	// ready.
	Command string
	Args    []string
}

// Validate rejects configurations the coordinator cannot act on.
func (c *Config) Validate() error {
	if c.Command == "" {
		return errors.New("a command to run is required")
	}
	if c.ReadyTimeout <= 0 {
		return fmt.Errorf("ready timeout must be positive, got %s", c.ReadyTimeout)
	}
	for _, raw := range c.ShutdownHTTPGet {
		if err := validateURL(raw); err != nil {
			return fmt.Errorf("invalid shutdown GET URL: %w", err)
		}
	}
	for _, raw := range c.ShutdownHTTPPost {
		if err := validateURL(raw); err != nil {
			return fmt.Errorf("invalid shutdown POST URL: %w", err)
		}
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q: missing host", raw)
	}
	return nil
}
