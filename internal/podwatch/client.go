package podwatch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/u2takey/go-utils/filesystem/homedir"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

const namespaceFile = "/var/run/secrets/kubernetes.io/serviceaccount/namespace"

// NewClient builds a Kubernetes client. Inside a pod the mounted service
// account is used; outside (useful for development) it falls back to
// kubeconfigPath, or $HOME/.kube/config when that is empty.
func NewClient(kubeconfigPath string) (kubernetes.Interface, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		if kubeconfigPath == "" {
			if home := homedir.HomeDir(); home != "" {
				kubeconfigPath = filepath.Join(home, ".kube", "config")
			}
		}
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to build client config: %w", err)
		}
	}

	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}
	return clientset, nil
}

// OwnPodName resolves the name of the pod this process runs in. The pod
// name equals the hostname; domain parts are stripped in case
// setHostnameAsFQDN is set on the pod.
func OwnPodName() (string, error) {
	host, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("resolving own hostname: %w", err)
	}
	name, _, _ := strings.Cut(host, ".")
	if name == "" {
		return "", fmt.Errorf("hostname %q does not look like a pod name", host)
	}
	return name, nil
}

// OwnNamespace resolves the namespace this pod runs in. An explicit
// override wins; otherwise the service account mount is consulted, with
// "default" as the last resort.
func OwnNamespace(override string) string {
	if override != "" {
		return override
	}
	if b, err := os.ReadFile(namespaceFile); err == nil {
		if ns := strings.TrimSpace(string(b)); ns != "" {
			return ns
		}
	}
	return "default"
}
