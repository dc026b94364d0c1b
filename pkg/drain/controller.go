package drain

import (
	"context"
	"fmt"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/fleetdrain/pkg/log"
	"github.com/cuemby/fleetdrain/pkg/metrics"
	"github.com/cuemby/fleetdrain/pkg/types"
)

// ReasonClaimHeld is returned to deliveries that lost the first-seen claim
const ReasonClaimHeld = "claim held by concurrent delivery"

// Options are the markers and retry policy used by a Controller
type Options struct {
	Retry RetryPolicy

	// ActiveTaint marks a node that serves game sessions
	ActiveTaint types.Taint
	// DrainingTaint evicts every pod without DrainingToleration
	DrainingTaint      types.Taint
	DrainingToleration types.Toleration
}

// DefaultOptions returns the gamelift.status/* markers and the default retry policy
func DefaultOptions() Options {
	return Options{Retry: DefaultRetryPolicy()}.WithTaintKeys("gamelift.status/active", "gamelift.status/draining")
}

// WithTaintKeys returns a copy of o using the given taint keys. All markers
// carry the value "true" and the NoExecute effect.
func (o Options) WithTaintKeys(active, draining string) Options {
	o.ActiveTaint = types.Taint{Key: active, Value: "true", Effect: types.TaintEffectNoExecute}
	o.DrainingTaint = types.Taint{Key: draining, Value: "true", Effect: types.TaintEffectNoExecute}
	o.DrainingToleration = types.Toleration{
		Key:      draining,
		Operator: "Equal",
		Value:    "true",
		Effect:   types.TaintEffectNoExecute,
	}
	return o
}

// Result is the outcome of one Reconcile call
type Result struct {
	InstanceID string
	// Phase is the phase the cycle stopped in
	Phase types.Phase
	// Ignored is set when the event was dropped without any mutation
	Ignored bool
	// Aborted is set when a failure stopped the cycle before its phase completed
	Aborted bool
	Reason  string
}

// Outcome is ok, ignored or aborted
func (r Result) Outcome() string {
	switch {
	case r.Ignored:
		return "ignored"
	case r.Aborted:
		return "aborted"
	}
	return "ok"
}

// Controller advances the drain episode of one instance per call. It keeps
// no state between calls; everything it knows comes from the ledger and the
// event.
type Controller struct {
	deps   Deps
	opts   Options
	logger zerolog.Logger
}

// New creates a controller
func New(deps Deps, opts Options) *Controller {
	return &Controller{
		deps:   deps,
		opts:   opts,
		logger: log.WithComponent("drain"),
	}
}

// cycle carries the per-call state of one Reconcile
type cycle struct {
	rec      types.InstanceRecord
	progress types.DrainProgress
	logger   zerolog.Logger

	justRegistered bool
}

// Reconcile processes one instance record. It never panics on remote
// failures and never returns an error: failures end the cycle early and are
// reported in the Result.
func (c *Controller) Reconcile(ctx context.Context, rec types.InstanceRecord) (res Result) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconcileDuration)
		metrics.ReconcileTotal.WithLabelValues(res.Outcome()).Inc()
	}()

	res.InstanceID = rec.InstanceID

	cy := &cycle{
		rec: rec,
		logger: c.logger.With().
			Str("instance_id", rec.InstanceID).
			Str("group", rec.GroupName).
			Str("node", rec.PrivateDNSName).
			Str("status", string(rec.Status)).
			Str("cycle_id", uuid.NewString()).
			Logger(),
	}

	if err := rec.Validate(); err != nil {
		cy.logger.Warn().Err(err).Msg("Dropping malformed instance record")
		res.Aborted = true
		res.Reason = err.Error()
		return res
	}

	progress, err := c.deps.Ledger.Progress(ctx, rec.InstanceID)
	if err != nil {
		return c.abort(cy, res, "read progress", err)
	}
	cy.progress = progress
	res.Phase = Derive(progress, rec.Status)

	if regression(progress, rec.Status) {
		cy.logger.Warn().
			Str("phase", string(res.Phase)).
			Msg("Ignoring ACTIVE status for a node that is already draining")
		res.Ignored = true
		res.Reason = "status regressed to ACTIVE after drain started"
		return res
	}

	if !progress.Claimed {
		var done bool
		if res, done = c.unregistered(ctx, cy, res); done {
			return res
		}
	}

	// Each phase either completes and falls through to the next, or ends the cycle
	for {
		res.Phase = Derive(cy.progress, rec.Status)
		metrics.PhaseTransitionsTotal.WithLabelValues(string(res.Phase)).Inc()
		logger := cy.logger.With().Str("phase", string(res.Phase)).Logger()

		next := false
		switch res.Phase {
		case types.PhaseRegistered:
			res = c.registered(ctx, cy, logger, res)
		case types.PhaseCordoning:
			next, res = c.cordoning(ctx, cy, logger, res)
		case types.PhaseDrainingWait:
			next, res = c.drainingWait(ctx, cy, logger, res)
		case types.PhaseDeregistering:
			next, res = c.deregistering(ctx, cy, logger, res)
		case types.PhaseAwaitingTermination:
			res = c.awaitingTermination(ctx, cy, logger, res)
		default:
			logger.Error().Msg("No handler for phase")
			res.Aborted = true
			res.Reason = "unhandled phase"
			return res
		}
		if !next {
			return res
		}
	}
}

// unregistered claims the instance and registers it. done is false when the
// registration finished and the cycle should continue.
func (c *Controller) unregistered(ctx context.Context, cy *cycle, res Result) (Result, bool) {
	logger := cy.logger.With().Str("phase", string(types.PhaseUnregistered)).Logger()
	metrics.PhaseTransitionsTotal.WithLabelValues(string(types.PhaseUnregistered)).Inc()

	won, err := c.deps.Ledger.ClaimIfAbsent(ctx, cy.rec.InstanceID)
	if err != nil {
		return c.abort(cy, res, "claim", err), true
	}
	if !won {
		logger.Info().Msg("Instance already claimed by another delivery")
		res.Reason = ReasonClaimHeld
		return res, true
	}
	cy.progress.Claimed = true
	logger.Info().Msg("Claimed instance")

	err = c.deps.Registry.Register(ctx, cy.rec.GroupName, cy.rec.InstanceID)
	switch {
	case err == nil:
		logger.Info().Msg("Registered game server")
	case types.IsKind(err, types.ErrorKindConflict):
		logger.Info().Msg("Game server is already registered")
	default:
		c.failed(logger, "register", err)
		// leave no half-registered game server behind; the next ACTIVE event registers again
		if derr := c.deps.Registry.Deregister(ctx, cy.rec.GroupName, cy.rec.InstanceID); derr != nil && !types.IsKind(derr, types.ErrorKindNotFound) {
			c.failed(logger, "deregister", derr)
		}
		res.Aborted = true
		res.Reason = fmt.Sprintf("register failed: %v", err)
		return res, true
	}

	if err := c.awaitHealthy(ctx, cy, logger); err != nil {
		logger.Warn().Err(err).Msg("Instance did not become healthy, aborting registration")
		res.Phase = types.PhaseUnregistered
		res.Aborted = true
		res.Reason = fmt.Sprintf("instance did not become healthy: %v", err)
		return res, true
	}

	cy.justRegistered = true
	return res, false
}

// awaitHealthy polls the capacity manager until the instance reports HEALTHY
// or the retry policy gives up
func (c *Controller) awaitHealthy(ctx context.Context, cy *cycle, logger zerolog.Logger) error {
	return c.opts.Retry.Do(ctx, func() error {
		health, err := c.deps.Health.Health(ctx, cy.rec.InstanceID)
		if err != nil {
			if types.IsKind(err, types.ErrorKindInvalid) {
				return retry.Unrecoverable(err)
			}
			return err
		}
		if health != types.InstanceHealthy {
			return fmt.Errorf("instance health is %s", health)
		}
		return nil
	}, func(attempt uint, err error) {
		logger.Info().Err(err).Uint("attempt", attempt+1).Msg("Instance not healthy yet, retrying")
	})
}

// registered keeps an ACTIVE instance registered, healthy, claimed and marked
func (c *Controller) registered(ctx context.Context, cy *cycle, logger zerolog.Logger, res Result) Result {
	group, id := cy.rec.GroupName, cy.rec.InstanceID
	var firstErr error
	note := func(op string, err error) {
		c.failed(logger, op, err)
		if firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", op, err)
		}
	}

	if !cy.justRegistered {
		if err := c.deps.Registry.Register(ctx, group, id); err != nil && !types.IsKind(err, types.ErrorKindConflict) {
			note("register", err)
		}
		// the claim may be left over from a cycle whose health poll gave up
		if err := c.awaitHealthy(ctx, cy, logger); err != nil {
			logger.Warn().Err(err).Msg("Instance is not healthy, not marking it as serving")
			res.Aborted = true
			res.Reason = fmt.Sprintf("instance is not healthy: %v", err)
			return res
		}
	}
	if err := c.deps.Registry.UpdateHealth(ctx, group, id); err != nil {
		note("update health", err)
	}
	if err := c.deps.Registry.Claim(ctx, group, id); err != nil && !types.IsKind(err, types.ErrorKindConflict) {
		note("claim game server", err)
	}
	if err := c.deps.Registry.UpdateUtilization(ctx, group, id, types.UtilizationUtilized); err != nil {
		note("update utilization", err)
	}
	if err := c.deps.Gateway.ApplyTaint(ctx, cy.rec.PrivateDNSName, c.opts.ActiveTaint); err != nil {
		note("apply active taint", err)
	}

	if firstErr != nil {
		res.Aborted = true
		res.Reason = firstErr.Error()
		return res
	}
	logger.Debug().Msg("Instance is serving")
	return res
}

// cordoning stops new placements, protects allocated sessions and taints the node
func (c *Controller) cordoning(ctx context.Context, cy *cycle, logger zerolog.Logger, res Result) (bool, Result) {
	node := cy.rec.PrivateDNSName

	if err := c.deps.Gateway.Cordon(ctx, node); err != nil {
		return false, c.stepFailed(logger, res, "cordon", err)
	}
	logger.Info().Msg("Cordoned node")

	workloads, err := c.deps.Gateway.ListAllocatedWorkloads(ctx, node)
	if err != nil {
		return false, c.stepFailed(logger, res, "list allocated workloads", err)
	}

	failed := 0
	for _, w := range workloads {
		if err := c.deps.Gateway.ApplyToleration(ctx, w, c.opts.DrainingToleration); err != nil {
			failed++
			c.failed(logger.With().Str("workload", w.Key()).Logger(), "apply toleration", err)
			continue
		}
		logger.Info().Str("workload", w.Key()).Msg("Added draining toleration")
	}
	if failed > 0 {
		logger.Warn().Int("unprotected", failed).Msg("Withholding draining taint until every allocated workload tolerates it")
		res.Aborted = true
		res.Reason = fmt.Sprintf("%d of %d allocated workloads could not be protected", failed, len(workloads))
		return false, res
	}

	if err := c.deps.Gateway.ApplyTaint(ctx, node, c.opts.DrainingTaint); err != nil {
		return false, c.stepFailed(logger, res, "apply draining taint", err)
	}
	logger.Info().Int("protected", len(workloads)).Msg("Applied draining taint")

	if err := c.deps.Ledger.SetFlag(ctx, cy.rec.InstanceID, types.FlagCordoned); err != nil {
		return false, c.stepFailed(logger, res, "set cordoned", err)
	}
	cy.progress.Cordoned = true
	return true, res
}

// drainingWait confirms that no allocated session is left on the node
func (c *Controller) drainingWait(ctx context.Context, cy *cycle, logger zerolog.Logger, res Result) (bool, Result) {
	workloads, err := c.deps.Gateway.ListAllocatedWorkloads(ctx, cy.rec.PrivateDNSName)
	if err != nil {
		return false, c.stepFailed(logger, res, "list allocated workloads", err)
	}
	if len(workloads) > 0 {
		logger.Info().Int("allocated", len(workloads)).Msg("Waiting for allocated game servers to finish")
		res.Reason = fmt.Sprintf("%d allocated workloads remain", len(workloads))
		return false, res
	}

	if err := c.deps.Ledger.SetFlag(ctx, cy.rec.InstanceID, types.FlagDrainConfirmedEmpty); err != nil {
		return false, c.stepFailed(logger, res, "set drain confirmed empty", err)
	}
	logger.Info().Msg("Node has no allocated game servers")
	cy.progress.DrainConfirmedEmpty = true
	return true, res
}

// deregistering removes the game server from the fleet registry
func (c *Controller) deregistering(ctx context.Context, cy *cycle, logger zerolog.Logger, res Result) (bool, Result) {
	err := c.deps.Registry.Deregister(ctx, cy.rec.GroupName, cy.rec.InstanceID)
	switch {
	case err == nil:
		logger.Info().Msg("Deregistered game server")
	case types.IsKind(err, types.ErrorKindNotFound):
		logger.Info().Msg("Game server was already deregistered")
	default:
		return false, c.stepFailed(logger, res, "deregister", err)
	}

	if err := c.deps.Ledger.SetFlag(ctx, cy.rec.InstanceID, types.FlagAwaitingTermination); err != nil {
		return false, c.stepFailed(logger, res, "set awaiting termination", err)
	}
	cy.progress.AwaitingTermination = true
	return true, res
}

// awaitingTermination evicts the remaining pods once the instance is being
// shut down by a Spot interruption
func (c *Controller) awaitingTermination(ctx context.Context, cy *cycle, logger zerolog.Logger, res Result) Result {
	if cy.rec.Status != types.InstanceStatusSpotTerminating {
		logger.Info().Msg("Waiting for termination")
		res.Reason = "awaiting termination"
		return res
	}

	summary, err := c.deps.Gateway.EvictAllExceptSystem(ctx, cy.rec.PrivateDNSName)
	if err != nil {
		return c.stepFailed(logger, res, "evict pods", err)
	}
	logger.Info().
		Int("evicted", summary.Evicted).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Msg("Evicted pods for termination")
	res.Reason = fmt.Sprintf("evicted %d of %d pods", summary.Evicted, summary.Total)
	return res
}

func (c *Controller) failed(logger zerolog.Logger, op string, err error) {
	kind := types.KindOf(err)
	metrics.RemoteFailuresTotal.WithLabelValues(op, string(kind)).Inc()
	logger.Error().Err(err).Str("operation", op).Str("kind", string(kind)).Msg("Remote call failed")
}

func (c *Controller) stepFailed(logger zerolog.Logger, res Result, op string, err error) Result {
	c.failed(logger, op, err)
	res.Aborted = true
	res.Reason = fmt.Sprintf("%s: %v", op, err)
	return res
}

func (c *Controller) abort(cy *cycle, res Result, op string, err error) Result {
	return c.stepFailed(cy.logger, res, op, err)
}
