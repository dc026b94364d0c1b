/*
Package drain implements the per-instance drain controller.

A Controller receives one InstanceRecord per call and advances that
instance's drain episode as far as it can. It holds no state of its own:
the phase is derived on every call from the persisted DrainProgress and the
status carried by the event, so any number of redeliveries, restarts and
concurrent duplicates converge on the same outcome.

# Phases

	                     first-seen claim
	UNREGISTERED ─────────────────────────────┐
	     │ register + health poll             │
	     ▼                                    ▼
	REGISTERED  (ACTIVE)              CORDONING  (DRAINING / SPOT_TERMINATING)
	register, health poll, health,      cordon, tolerate allocated sessions,
	claim, UTILIZED, active taint       draining taint ──▶ cordoned
	                                          │
	                                          ▼
	                                   DRAINING_WAIT
	                                    no allocated sessions ──▶ drain_confirmed_empty
	                                          │
	                                          ▼
	                                   DEREGISTERING
	                                    deregister ──▶ awaiting_termination
	                                          │
	                                          ▼
	                                AWAITING_TERMINATION
	                                    SPOT_TERMINATING: evict all but system pods

Phases chain within a single call: a node with no allocated sessions goes
from CORDONING to AWAITING_TERMINATION in one cycle. A phase that cannot
complete ends the cycle without setting its flag, and the next event for
the instance retries it.

# Ordering Guarantees

The draining taint is only applied after every allocated game server
tolerates it. If any toleration fails the taint is withheld for the cycle.

drain_confirmed_empty is only set after a successful scan that found no
allocated game servers, so it always implies cordoned.

An ACTIVE event for a cordoned node is ignored.

# Health Poll

Registration waits for the capacity manager to report the instance HEALTHY.
The poll is bounded by RetryPolicy (three attempts, 1-5s apart by default).
On exhaustion the claim stays in the ledger and the next ACTIVE event goes
through the REGISTERED path, which registers the game server again.

REGISTERED polls again before reporting the game server HEALTHY, claiming it
or marking it UTILIZED. An instance that never became healthy is therefore
never put into service, and a duplicate delivery that lost the first-seen
claim cannot mark the instance healthy ahead of the winner's poll. A cycle
that just came through UNREGISTERED skips the second poll.

# Usage

	ctrl := drain.New(drain.Deps{
		Gateway:  gw,
		Registry: registry,
		Health:   health,
		Ledger:   l,
	}, drain.DefaultOptions())

	res := ctrl.Reconcile(ctx, rec)
	if res.Aborted {
		// retried on the next event for the instance
	}
*/
package drain
