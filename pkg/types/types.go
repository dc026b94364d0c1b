package types

import (
	"fmt"
	"time"
)

// InstanceStatus is the capacity manager's view of a game server instance
type InstanceStatus string

const (
	// InstanceStatusActive means the instance is viable for hosting game servers
	InstanceStatusActive InstanceStatus = "ACTIVE"
	// InstanceStatusDraining means the group wants the instance replaced
	InstanceStatusDraining InstanceStatus = "DRAINING"
	// InstanceStatusSpotTerminating means a Spot interruption is shutting the instance down
	InstanceStatusSpotTerminating InstanceStatus = "SPOT_TERMINATING"
)

// Valid reports whether s is one of the known statuses
func (s InstanceStatus) Valid() bool {
	switch s {
	case InstanceStatusActive, InstanceStatusDraining, InstanceStatusSpotTerminating:
		return true
	}
	return false
}

// Draining reports whether s asks for the node to be drained
func (s InstanceStatus) Draining() bool {
	return s == InstanceStatusDraining || s == InstanceStatusSpotTerminating
}

// InstanceRecord is the status snapshot for one node, delivered once per event.
// JSON field names match the payload produced by the capacity poller.
type InstanceRecord struct {
	InstanceID     string         `json:"InstanceId"`
	GroupName      string         `json:"GameServerGroupName"`
	PrivateDNSName string         `json:"PrivateDnsName"`
	Status         InstanceStatus `json:"InstanceStatus"`
}

// Validate checks that every field needed by the drain controller is present
func (r InstanceRecord) Validate() error {
	var missing string
	switch {
	case r.InstanceID == "":
		missing = "InstanceId"
	case r.GroupName == "":
		missing = "GameServerGroupName"
	case r.PrivateDNSName == "":
		missing = "PrivateDnsName"
	case r.Status == "":
		missing = "InstanceStatus"
	}
	if missing != "" {
		return NewError(ErrorKindInvalid, "validate record", fmt.Errorf("missing field %s", missing))
	}
	if !r.Status.Valid() {
		return NewError(ErrorKindInvalid, "validate record", fmt.Errorf("unknown instance status %q", r.Status))
	}
	return nil
}

// InstanceHealth is the health reported by the capacity manager
type InstanceHealth string

const (
	InstanceHealthy   InstanceHealth = "HEALTHY"
	InstanceUnhealthy InstanceHealth = "UNHEALTHY"
	InstanceUnknown   InstanceHealth = "UNKNOWN"
)

// UtilizationStatus is the fleet registry's utilization marker for a game server
type UtilizationStatus string

// UtilizationUtilized marks a game server as hosting sessions
const UtilizationUtilized UtilizationStatus = "UTILIZED"

// Flag names one of the write-once progress markers of a drain episode
type Flag string

const (
	FlagCordoned            Flag = "cordoned"
	FlagDrainConfirmedEmpty Flag = "drain_confirmed_empty"
	FlagAwaitingTermination Flag = "awaiting_termination"
)

// Flags lists every progress flag in episode order
var Flags = []Flag{FlagCordoned, FlagDrainConfirmedEmpty, FlagAwaitingTermination}

// Valid reports whether f is a known progress flag
func (f Flag) Valid() bool {
	switch f {
	case FlagCordoned, FlagDrainConfirmedEmpty, FlagAwaitingTermination:
		return true
	}
	return false
}

// DrainProgress is the persisted progress of one instance's drain episode.
// Flags only ever move from false to true.
type DrainProgress struct {
	Claimed             bool      `json:"claimed"`
	Cordoned            bool      `json:"cordoned"`
	DrainConfirmedEmpty bool      `json:"drain_confirmed_empty"`
	AwaitingTermination bool      `json:"awaiting_termination"`
	ClaimedAt           time.Time `json:"claimed_at,omitempty"`
}

// Flag returns the value of the named flag
func (p DrainProgress) Flag(f Flag) bool {
	switch f {
	case FlagCordoned:
		return p.Cordoned
	case FlagDrainConfirmedEmpty:
		return p.DrainConfirmedEmpty
	case FlagAwaitingTermination:
		return p.AwaitingTermination
	}
	return false
}

// WithFlag returns a copy of p with the named flag set
func (p DrainProgress) WithFlag(f Flag) DrainProgress {
	switch f {
	case FlagCordoned:
		p.Cordoned = true
	case FlagDrainConfirmedEmpty:
		p.DrainConfirmedEmpty = true
	case FlagAwaitingTermination:
		p.AwaitingTermination = true
	}
	return p
}

// Phase is a drain episode phase. It is always derived from DrainProgress
// and the incoming status, never stored.
type Phase string

const (
	PhaseUnregistered        Phase = "UNREGISTERED"
	PhaseRegistered          Phase = "REGISTERED"
	PhaseCordoning           Phase = "CORDONING"
	PhaseDrainingWait        Phase = "DRAINING_WAIT"
	PhaseDeregistering       Phase = "DEREGISTERING"
	PhaseAwaitingTermination Phase = "AWAITING_TERMINATION"
)

// TaintEffect mirrors the Kubernetes taint effects. Both drain markers are
// NoExecute.
type TaintEffect string

const TaintEffectNoExecute TaintEffect = "NoExecute"

// Taint repels workloads without a matching toleration from a node
type Taint struct {
	Key    string
	Value  string
	Effect TaintEffect
}

// Toleration lets a workload stay on a node carrying a matching taint
type Toleration struct {
	Key               string
	Operator          string // "Equal" or "Exists"
	Value             string
	Effect            TaintEffect
	TolerationSeconds *int64
}

// WorkloadStateAllocated is the only workload state that blocks drain completion
const WorkloadStateAllocated = "Allocated"

// Workload is a game server occupying a node
type Workload struct {
	Name      string
	Namespace string
	State     string
	NodeName  string
}

// Key returns namespace/name
func (w Workload) Key() string {
	return w.Namespace + "/" + w.Name
}

// Allocated reports whether the workload is serving a session
func (w Workload) Allocated() bool {
	return w.State == WorkloadStateAllocated
}

// EvictionSummary reports the outcome of a best-effort eviction pass
type EvictionSummary struct {
	Total   int // pods found on the node outside the system namespace
	Evicted int
	Failed  int
	Skipped int // pods in the system namespace
}
