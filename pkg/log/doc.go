/*
Package log provides structured logging for fleetdrain using zerolog.

A single global zerolog.Logger is configured once by Init from the command
line and config file. Until Init is called the logger discards everything,
which keeps package tests quiet.

# Usage

	log.Init(log.Config{Level: log.ParseLevel(cfg.Log.Level), JSONOutput: cfg.Log.JSON})

	logger := log.WithComponent("drain")
	logger.Info().
		Str("instance_id", rec.InstanceID).
		Str("phase", string(phase)).
		Msg("Cordoned node")

Component loggers carry a "component" field. Drain cycles add instance_id,
group, node, phase and cycle_id so that every line of one episode can be
found with a single filter:

	{"level":"info","component":"drain","instance_id":"i-0abc","phase":"CORDONING","cycle_id":"5f0c...","message":"Cordoned node"}

# Levels

  - debug: per-call detail (ledger reads, skipped steps)
  - info: phase transitions and completed actions
  - warn: ignored events, tolerated failures, health polls that did not converge
  - error: remote calls that failed and left a flag unset

Use console output for local runs and JSON output (--log-json) when the
process runs under a log collector.
*/
package log
