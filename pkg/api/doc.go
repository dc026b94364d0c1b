/*
Package api serves the operational HTTP endpoints of a fleetdrain process.

# Endpoints

	GET /health   component health, 503 when any component is unhealthy
	GET /ready    readiness of the critical components (ledger, kubernetes)
	GET /live     liveness, always 200 while the process runs
	GET /metrics  Prometheus metrics

Component state is kept by the pkg/metrics health registry. The serve
command registers the ledger, Kubernetes and intake components and a
metrics.Collector probes them periodically, so /ready turns 503 as soon as a
dependency becomes unreachable.

# Usage

	hs := api.NewHealthServer()
	go func() {
		if err := hs.Start(":9090"); err != nil {
			log.Logger.Error().Err(err).Msg("Health server failed")
		}
	}()
	defer hs.Shutdown(ctx)

There is no query API. Drain progress of a single instance can be inspected
with `fleetdrain ledger get INSTANCE_ID`.
*/
package api
