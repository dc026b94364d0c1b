package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/gamelift"

	"github.com/cuemby/fleetdrain/pkg/config"
	"github.com/cuemby/fleetdrain/pkg/drain"
	"github.com/cuemby/fleetdrain/pkg/fleet"
	"github.com/cuemby/fleetdrain/pkg/gateway"
	"github.com/cuemby/fleetdrain/pkg/ledger"
)

// controllerOptions maps the configuration onto drain controller options
func controllerOptions(c *config.Config) drain.Options {
	opts := drain.DefaultOptions().WithTaintKeys(c.Kubernetes.ActiveTaintKey, c.Kubernetes.DrainingTaintKey)
	opts.Retry = drain.RetryPolicy{
		Attempts: c.Drain.HealthAttempts,
		MinDelay: c.Drain.MinDelay,
		MaxDelay: c.Drain.MaxDelay,
	}
	return opts
}

func gatewayOptions(c *config.Config) gateway.Options {
	return gateway.Options{
		SystemNamespace:     c.Kubernetes.SystemNamespace,
		EvictionGracePeriod: c.Kubernetes.EvictionGracePeriod,
	}
}

// stack is everything a drain controller needs, built from the configuration
type stack struct {
	ledger     ledger.Ledger
	gateway    *gateway.KubernetesGateway
	controller *drain.Controller
}

func (s *stack) Close() error {
	return s.ledger.Close()
}

func buildStack(ctx context.Context, c *config.Config) (*stack, error) {
	awsCfg, err := fleet.LoadAWSConfig(ctx, c.AWS.Region)
	if err != nil {
		return nil, err
	}

	client, dyn, err := gateway.NewClients(c.Kubernetes)
	if err != nil {
		return nil, err
	}
	gw := gateway.NewKubernetesGateway(client, dyn, gatewayOptions(c))

	l, err := ledger.Open(ctx, c.Ledger)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	return &stack{
		ledger:  l,
		gateway: gw,
		controller: drain.New(drain.Deps{
			Gateway:  gw,
			Registry: fleet.NewRegistry(gamelift.NewFromConfig(awsCfg)),
			Health:   fleet.NewHealthSource(autoscaling.NewFromConfig(awsCfg)),
			Ledger:   l,
		}, controllerOptions(c)),
	}, nil
}
