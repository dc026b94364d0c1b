/*
Package gateway is the Kubernetes side of a drain: cordoning nodes, node
taints, pod tolerations, evictions and the Agones game servers running on a
node.

The drain controller never talks to the API server directly. It goes through
KubernetesGateway, which turns each step of a drain into the smallest
read-modify-write that reaches the desired state, and reports failures as
classified errors.

# Architecture

	┌─────────────────────── KUBERNETES GATEWAY ───────────────────────┐
	│                                                                    │
	│                     drain.Controller                               │
	│                           │ NodeGateway                            │
	│                           ▼                                        │
	│  ┌─────────────────────────────────────────────────────┐          │
	│  │                KubernetesGateway                      │          │
	│  │                                                       │          │
	│  │  Cordon ─────────────┐                                │          │
	│  │  ApplyTaint ─────────┼──▶ nodes    get ▶ check ▶ update│          │
	│  │  ApplyToleration ────┼──▶ pods     get ▶ check ▶ update│          │
	│  │                      │    (retry.RetryOnConflict)      │          │
	│  │  EvictAllExceptSystem┼──▶ pods     list ▶ evict (v1)   │          │
	│  │  ListAllocatedWork.. ┴──▶ gameservers.agones.dev (dyn) │          │
	│  │  Ping ───────────────────▶ discovery /version          │          │
	│  └───────────────┬───────────────────────┬──────────────┘          │
	│                  │ kubernetes.Interface   │ dynamic.Interface        │
	│                  ▼                        ▼                          │
	│        ┌────────────────────────────────────────────┐              │
	│        │   RESTConfig / NewClients                    │              │
	│        │   kubeconfig │ master URL + token │ in-cluster│              │
	│        └────────────────────────────────────────────┘              │
	└────────────────────────────────────────────────────────────────────┘

# Core Components

KubernetesGateway:
  - Implements drain.NodeGateway over a typed and a dynamic client
  - Holds the system namespace and the eviction grace period (Options)
  - Logs through the "gateway" component logger

Clients:
  - RESTConfig resolves the connection. A master URL without a kubeconfig
    connects directly, and with neither set the in-cluster service account
    is used
  - A bearer token replaces any token file, and insecure mode drops the CA
  - NewClients builds the typed and dynamic clients from one rest.Config

# Idempotency

Every mutation reads the object, returns early when the desired state is
already present and writes under retry.RetryOnConflict, so the controller
can repeat any call after a redelivery:

	Cordon           node.spec.unschedulable already true  ──▶ no write
	ApplyTaint       taint with same key and effect present ──▶ no write
	ApplyToleration  equal toleration on the pod            ──▶ no write

A write that loses a race with another client gets a 409, is retried against
the fresh object, and usually turns into a no-op.

# Game Servers

Game servers are read through the dynamic client (agones.dev/v1
gameservers), so the Agones Go module is not needed. ListAllocatedWorkloads
lists them across namespaces and keeps those whose status.nodeName is the
node and whose status.state is Allocated. An empty result means the node no
longer hosts an active session and the drain can move on.

# Evictions

EvictAllExceptSystem runs only when a Spot interruption is terminating the
instance:

	pods on node (field selector spec.nodeName, re-checked client side)
	    │
	    ├── system namespace ─────────────▶ Skipped
	    │
	    └── policy/v1 Eviction
	            ├── accepted ─────────────▶ Evicted
	            ├── pod already gone (404) ▶ Evicted
	            └── PDB (429) or error ───▶ Failed, logged

The configured grace period is sent with each eviction. Zero or a negative
value sends no DeleteOptions, so the pod keeps its own grace period and is
never deleted immediately. Only a failure to list the pods fails the call;
per-pod failures are counted in the returned types.EvictionSummary and in
fleetdrain_evictions_total.

# Error Classification

	404 Not Found              ──▶ types.ErrorKindNotFound
	409 Conflict / AlreadyExists ─▶ types.ErrorKindConflict
	422 Invalid / 400          ──▶ types.ErrorKindInvalid
	anything else              ──▶ types.ErrorKindTransient

# Usage

	client, dyn, err := gateway.NewClients(cfg.Kubernetes)
	if err != nil {
		return err
	}
	gw := gateway.NewKubernetesGateway(client, dyn, gateway.Options{
		SystemNamespace:     "kube-system",
		EvictionGracePeriod: 30 * time.Second,
	})

	if err := gw.Cordon(ctx, "ip-10-0-0-1.ec2.internal"); err != nil {
		return err
	}

# Testing

gateway_test.go uses the client-go fake clientset and the dynamic fake
client. Reactors inject conflicts, read failures and eviction responses, and
the recorded actions prove that an already converged object is never
written.
*/
package gateway
