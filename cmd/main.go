package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/avridey/outrigger/internal/config"
	"github.com/avridey/outrigger/internal/coordinate"
	"github.com/avridey/outrigger/internal/notify"
	"github.com/avridey/outrigger/internal/podwatch"
	"github.com/avridey/outrigger/internal/version"
	"github.com/avridey/outrigger/internal/workload"
)

var (
	shutdownHTTPGet  []string
	shutdownHTTPPost []string
	killProcesses    []string
	killAll          bool
	readyTimeout     time.Duration
	namespace        string
	kubeconfig       string
)

var rootCmd = &cobra.Command{
	Use:   "outrigger [flags] -- command [args...]",
	Short: "Pod entrypoint that coordinates sidecar lifecycle around a main workload",
	Long: `outrigger runs as the entrypoint of the main container in a pod. It waits
until every sidecar container reports readiness, runs the given command,
asks the sidecars to shut down once the command exits, waits for them to
stop, and finally exits with the command's own status so the pod can be
torn down cleanly.

Example:
  outrigger -g http://localhost:15020/quitquitquit -- my-batch-job --input /data`,
	Version:      version.Version,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         run,
}

// exitStatus is what the process exits with after a successful coordination
// pass; it carries the main workload's own exit code.
var exitStatus int

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
	os.Exit(exitStatus)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.Flags().StringArrayVarP(&shutdownHTTPGet, "shutdown-http-get", "g", nil,
		"URL to GET, to prompt a sidecar to shut down (repeatable)")
	rootCmd.Flags().StringArrayVarP(&shutdownHTTPPost, "shutdown-http-post", "p", nil,
		"URL to POST to, to prompt a sidecar to shut down (repeatable)")
	rootCmd.Flags().StringArrayVarP(&killProcesses, "kill", "k", nil,
		"process name to send SIGTERM to on shutdown (repeatable)")
	rootCmd.Flags().BoolVarP(&killAll, "kill-all", "K", false,
		"send SIGTERM to every other visible process on shutdown when no explicit target is configured")
	rootCmd.Flags().DurationVar(&readyTimeout, "ready-timeout", 10*time.Minute,
		"how long the sidecars may take to become ready")
	rootCmd.Flags().StringVar(&namespace, "namespace", "",
		"namespace of this pod (default: detected from the service account mount)")
	rootCmd.Flags().StringVar(&kubeconfig, "kubeconfig", "",
		"kubeconfig path, for running outside a pod")
}

// initConfig reads environment variables so deployments can configure the
// coordinator without editing the pod command line.
func initConfig() {
	viper.SetEnvPrefix("OUTRIGGER")
	viper.AutomaticEnv()

	viper.BindEnv("ready_timeout", "OUTRIGGER_READY_TIMEOUT")
	viper.BindEnv("namespace", "OUTRIGGER_NAMESPACE", "POD_NAMESPACE")
	viper.BindEnv("kubeconfig", "OUTRIGGER_KUBECONFIG", "KUBECONFIG")
}

func buildConfig(cmd *cobra.Command, args []string) *config.Config {
	cfg := &config.Config{
		ShutdownHTTPGet:  shutdownHTTPGet,
		ShutdownHTTPPost: shutdownHTTPPost,
		KillProcesses:    killProcesses,
		KillAll:          killAll,
		ReadyTimeout:     readyTimeout,
		Namespace:        namespace,
		Kubeconfig:       kubeconfig,
		Command:          args[0],
		Args:             args[1:],
	}

	// Flags win over the environment.
	if !cmd.Flags().Changed("ready-timeout") && viper.IsSet("ready_timeout") {
		cfg.ReadyTimeout = viper.GetDuration("ready_timeout")
	}
	if cfg.Namespace == "" {
		cfg.Namespace = viper.GetString("namespace")
	}
	if cfg.Kubeconfig == "" {
		cfg.Kubeconfig = viper.GetString("kubeconfig")
	}
	return cfg
}

func run(cmd *cobra.Command, args []string) error {
	cfg := buildConfig(cmd, args)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()

	exitStatus = coordinatePod(cfg, logger)
	return nil
}

// coordinatePod is one full coordination pass: ready-wait, main workload,
// shutdown notification, shutdown-wait. It returns the process exit status.
// Every failure path comes back through here; nothing exits directly.
func coordinatePod(cfg *config.Config, log *zap.Logger) int {
	log.Info("Starting up.", zap.String("version", version.Version))

	podName, err := podwatch.OwnPodName()
	if err != nil {
		log.Error("Unable to identify own pod", zap.Error(err))
		return 1
	}
	client, err := podwatch.NewClient(cfg.Kubeconfig)
	if err != nil {
		log.Error("Unable to build Kubernetes client", zap.Error(err))
		return 1
	}

	src := podwatch.NewPodWatcher(client, podwatch.OwnNamespace(cfg.Namespace), podName, log)
	clk := clock.RealClock{}
	ctx := context.Background()

	// Each wait phase gets its own watch session; cancelling the session
	// context is what releases it.
	readyCtx, stopReadyWatch := context.WithCancel(ctx)
	ready := coordinate.WaitForReady(readyCtx, src, cfg.ReadyTimeout, clk, log)
	stopReadyWatch()
	switch ready.Kind {
	case coordinate.Timeout:
		log.Error("Sidecars never became ready in time; not running the main workload",
			zap.Duration("ready-timeout", cfg.ReadyTimeout))
		return 1
	case coordinate.Failure:
		log.Error("Pod never became ready; not running the main workload", zap.Error(ready.Err))
		return 1
	}

	status, runErr := workload.NewRunner(log).Run(cfg.Command, cfg.Args)
	if runErr != nil {
		// The sidecars are still told to shut down so the pod can finish.
		log.Error("Unable to run the main workload", zap.Error(runErr))
	}

	log.Info("Sending shutdown requests.")
	notifier := notify.New(notify.Config{
		GetURLs:      cfg.ShutdownHTTPGet,
		PostURLs:     cfg.ShutdownHTTPPost,
		ProcessNames: cfg.KillProcesses,
		SignalAll:    cfg.KillAll,
	}, log)
	notifier.Notify(ctx)

	quietCtx, stopQuietWatch := context.WithCancel(ctx)
	quiet := coordinate.WaitForQuiet(quietCtx, src, ready.Pod, clk, log)
	stopQuietWatch()
	if quiet.Kind == coordinate.Failure {
		// Never masks the workload's own status.
		log.Warn("Shutdown problem", zap.Error(quiet.Err))
	}

	log.Info("Exiting.", zap.Int("status", status), zap.String("shutdown", quiet.Kind.String()))
	return status
}
