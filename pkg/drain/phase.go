package drain

import "github.com/cuemby/fleetdrain/pkg/types"

// Derive computes the drain phase from the persisted progress and the status
// carried by the current event
func Derive(p types.DrainProgress, status types.InstanceStatus) types.Phase {
	switch {
	case !p.Claimed:
		return types.PhaseUnregistered
	case p.AwaitingTermination:
		return types.PhaseAwaitingTermination
	case p.DrainConfirmedEmpty:
		return types.PhaseDeregistering
	case p.Cordoned:
		return types.PhaseDrainingWait
	case !status.Draining():
		return types.PhaseRegistered
	default:
		return types.PhaseCordoning
	}
}

// regression reports whether an ACTIVE event arrived after draining started
func regression(p types.DrainProgress, status types.InstanceStatus) bool {
	return status == types.InstanceStatusActive && p.Cordoned
}
