/*
Package intake feeds instance status batches from Kafka into the drain
controller.

Each Kafka message carries one batch: a JSON array of InstanceRecord objects
keyed by game server group name. The consumer decodes the batch, drops
invalid elements, and runs the rest through a Processor with bounded
parallelism:

	Kafka ──▶ FetchMessage ──▶ Decode ──▶ rate.Limiter ──▶ errgroup (Workers) ──▶ Reconcile
	                                                                       │
	                         CommitMessages ◀──────── every record done ◀──┘

Delivery is at-least-once. A message is committed only after every record
in it was processed, and a record that aborted is not retried inside the
batch; the next batch for the same instance picks it up. Messages that are
not valid JSON are committed and dropped. A failed commit is logged and
counted as uncommitted, and consumption carries on; the message comes back
on the next rebalance or restart.
*/
package intake
