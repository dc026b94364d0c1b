package drain

import (
	"context"

	"github.com/cuemby/fleetdrain/pkg/types"
)

// NodeGateway is the cluster scheduler surface used by the controller
type NodeGateway interface {
	Cordon(ctx context.Context, node string) error
	ApplyTaint(ctx context.Context, node string, taint types.Taint) error
	ApplyToleration(ctx context.Context, w types.Workload, toleration types.Toleration) error
	ListAllocatedWorkloads(ctx context.Context, node string) ([]types.Workload, error)
	EvictAllExceptSystem(ctx context.Context, node string) (types.EvictionSummary, error)
}

// FleetRegistry is the game server registry surface used by the controller
type FleetRegistry interface {
	Register(ctx context.Context, group, instanceID string) error
	Claim(ctx context.Context, group, instanceID string) error
	UpdateHealth(ctx context.Context, group, instanceID string) error
	UpdateUtilization(ctx context.Context, group, instanceID string, status types.UtilizationStatus) error
	Deregister(ctx context.Context, group, instanceID string) error
}

// HealthSource reports instance health from the capacity manager
type HealthSource interface {
	Health(ctx context.Context, instanceID string) (types.InstanceHealth, error)
}

// DedupLedger is the progress store; ledger.Ledger satisfies it
type DedupLedger interface {
	ClaimIfAbsent(ctx context.Context, id string) (bool, error)
	SetFlag(ctx context.Context, id string, flag types.Flag) error
	Progress(ctx context.Context, id string) (types.DrainProgress, error)
}

// Deps are the collaborators of a Controller
type Deps struct {
	Gateway  NodeGateway
	Registry FleetRegistry
	Health   HealthSource
	Ledger   DedupLedger
}
