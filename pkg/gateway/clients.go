package gateway

import (
	"fmt"

	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/cuemby/fleetdrain/pkg/config"
)

// RESTConfig resolves the cluster connection. A master URL without a
// kubeconfig connects directly with the bearer token; with neither set the
// in-cluster service account is used.
func RESTConfig(cfg config.KubernetesConfig) (*rest.Config, error) {
	var (
		restCfg *rest.Config
		err     error
	)

	if cfg.Kubeconfig == "" && cfg.MasterURL != "" {
		restCfg = &rest.Config{Host: cfg.MasterURL}
	} else {
		restCfg, err = clientcmd.BuildConfigFromFlags(cfg.MasterURL, cfg.Kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("failed to build kubernetes config: %w", err)
		}
	}

	if cfg.BearerToken != "" {
		restCfg.BearerToken = cfg.BearerToken
		restCfg.BearerTokenFile = ""
	}
	if cfg.Insecure {
		restCfg.TLSClientConfig.Insecure = true
		restCfg.TLSClientConfig.CAData = nil
		restCfg.TLSClientConfig.CAFile = ""
	}
	return restCfg, nil
}

// NewClients creates the typed and dynamic clients used by KubernetesGateway
func NewClients(cfg config.KubernetesConfig) (kubernetes.Interface, dynamic.Interface, error) {
	restCfg, err := RESTConfig(cfg)
	if err != nil {
		return nil, nil, err
	}

	client, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}
	dyn, err := dynamic.NewForConfig(restCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}
	return client, dyn, nil
}
