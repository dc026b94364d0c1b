/*
Package metrics provides Prometheus metrics and component health for fleetdrain.

All metrics are registered on the default Prometheus registry at package init
and exposed through Handler on /metrics.

# Metrics

	fleetdrain_reconcile_total{outcome}                    counter
	fleetdrain_reconcile_duration_seconds                  histogram
	fleetdrain_phase_transitions_total{phase}              counter
	fleetdrain_remote_failures_total{operation,kind}       counter
	fleetdrain_evictions_total{result}                     counter
	fleetdrain_ledger_operation_duration_seconds{backend,operation}
	fleetdrain_intake_messages_total{result}               counter
	fleetdrain_intake_records_total{result}                counter
	fleetdrain_published_batches_total{group}              counter
	fleetdrain_component_up{component}                     gauge

Timing a call:

	timer := metrics.NewTimer()
	ok, err := l.ClaimIfAbsent(ctx, id)
	timer.ObserveDurationVec(metrics.LedgerOperationDuration, "redis", "claim")

# Health

Components report their state with RegisterComponent or UpdateComponent.
The Collector runs Probe functions on an interval and updates both the
registry and fleetdrain_component_up. HealthHandler fails when any component
is unhealthy; ReadyHandler fails until every critical component (by default
ledger and kubernetes) is registered and healthy.

	collector := metrics.NewCollector(15 * time.Second)
	collector.Add("ledger", ledger.Ping)
	collector.Start()
	defer collector.Stop()
*/
package metrics
