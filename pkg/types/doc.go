/*
Package types defines the data model shared by every fleetdrain package.

The types here describe one drain episode: the instance status snapshot that
arrives with each event, the persisted progress of the episode, and the
Kubernetes-facing markers (taints, tolerations) and workloads the controller
acts on.

# Core Types

Inbound:
  - InstanceRecord: instance id, game server group, private DNS name and status
  - InstanceStatus: ACTIVE, DRAINING or SPOT_TERMINATING

Progress:
  - DrainProgress: claimed plus three write-once flags
  - Flag: cordoned, drain_confirmed_empty, awaiting_termination
  - Phase: the derived episode phase (never stored)

Cluster:
  - Taint, Toleration, TaintEffect
  - Workload: an Agones game server and the node it runs on
  - EvictionSummary: counters of a best-effort eviction pass

Errors:
  - Error: an error annotated with an ErrorKind and the failed operation
  - ErrorKind: transient, conflict, not_found, invalid

# Status Ordering

Statuses are monotone within one episode:

	ACTIVE ──▶ DRAINING ──▶ SPOT_TERMINATING

An ACTIVE status observed after the node was cordoned is a regression and is
ignored by the controller.

# Error Kinds

Gateways and registries never decide whether a conflict or a missing object is
acceptable. They classify the error and the caller matches on the kind:

	err := registry.Register(ctx, rec)
	switch types.KindOf(err) {
	case "", types.ErrorKindConflict:
		// registered (possibly by an earlier delivery)
	default:
		// transient, retry on the next event
	}

Errors that were not produced by this package are treated as transient.
*/
package types
