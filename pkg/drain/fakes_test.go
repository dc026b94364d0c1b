package drain

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuemby/fleetdrain/pkg/ledger"
	"github.com/cuemby/fleetdrain/pkg/types"
)

// callLog is shared by every fake so tests can assert the order of calls
// across collaborators
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

func (l *callLog) take() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.calls
	l.calls = nil
	return out
}

func (l *callLog) count(call string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.calls {
		if c == call {
			n++
		}
	}
	return n
}

type fakeGateway struct {
	log *callLog

	mu         sync.Mutex
	fail       map[string]error
	cordoned   map[string]bool
	taints     map[string][]types.Taint
	tolerated  map[string]bool
	allocated  map[string][]types.Workload
	evictions  int
	evictCount types.EvictionSummary
}

func newFakeGateway(log *callLog) *fakeGateway {
	return &fakeGateway{
		log:       log,
		fail:      map[string]error{},
		cordoned:  map[string]bool{},
		taints:    map[string][]types.Taint{},
		tolerated: map[string]bool{},
		allocated: map[string][]types.Workload{},
	}
}

func (g *fakeGateway) setFail(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.fail, op)
		return
	}
	g.fail[op] = err
}

func (g *fakeGateway) setAllocated(node string, workloads ...types.Workload) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.allocated[node] = workloads
}

func (g *fakeGateway) taintCount(node, key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, t := range g.taints[node] {
		if t.Key == key {
			n++
		}
	}
	return n
}

func (g *fakeGateway) Cordon(ctx context.Context, node string) error {
	g.log.add("gateway.cordon %s", node)
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fail["cordon"]; err != nil {
		return err
	}
	g.cordoned[node] = true
	return nil
}

func (g *fakeGateway) ApplyTaint(ctx context.Context, node string, taint types.Taint) error {
	g.log.add("gateway.taint %s %s", node, taint.Key)
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fail["taint:"+taint.Key]; err != nil {
		return err
	}
	for _, t := range g.taints[node] {
		if t.Key == taint.Key && t.Effect == taint.Effect {
			return nil
		}
	}
	g.taints[node] = append(g.taints[node], taint)
	return nil
}

func (g *fakeGateway) ApplyToleration(ctx context.Context, w types.Workload, toleration types.Toleration) error {
	g.log.add("gateway.toleration %s", w.Key())
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fail["toleration:"+w.Name]; err != nil {
		return err
	}
	g.tolerated[w.Key()] = true
	return nil
}

func (g *fakeGateway) ListAllocatedWorkloads(ctx context.Context, node string) ([]types.Workload, error) {
	g.log.add("gateway.list %s", node)
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fail["list"]; err != nil {
		return nil, err
	}
	return append([]types.Workload{}, g.allocated[node]...), nil
}

func (g *fakeGateway) EvictAllExceptSystem(ctx context.Context, node string) (types.EvictionSummary, error) {
	g.log.add("gateway.evict %s", node)
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fail["evict"]; err != nil {
		return types.EvictionSummary{}, err
	}
	g.evictions++
	return g.evictCount, nil
}

type fakeRegistry struct {
	log *callLog

	mu   sync.Mutex
	fail map[string]error
}

func newFakeRegistry(log *callLog) *fakeRegistry {
	return &fakeRegistry{log: log, fail: map[string]error{}}
}

func (r *fakeRegistry) setFail(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.fail, op)
		return
	}
	r.fail[op] = err
}

func (r *fakeRegistry) err(op string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fail[op]
}

func (r *fakeRegistry) Register(ctx context.Context, group, id string) error {
	r.log.add("registry.register %s/%s", group, id)
	return r.err("register")
}

func (r *fakeRegistry) Claim(ctx context.Context, group, id string) error {
	r.log.add("registry.claim %s/%s", group, id)
	return r.err("claim")
}

func (r *fakeRegistry) UpdateHealth(ctx context.Context, group, id string) error {
	r.log.add("registry.health %s/%s", group, id)
	return r.err("health")
}

func (r *fakeRegistry) UpdateUtilization(ctx context.Context, group, id string, status types.UtilizationStatus) error {
	r.log.add("registry.utilization %s/%s %s", group, id, status)
	return r.err("utilization")
}

func (r *fakeRegistry) Deregister(ctx context.Context, group, id string) error {
	r.log.add("registry.deregister %s/%s", group, id)
	return r.err("deregister")
}

// fakeHealth returns health values in order and repeats the last one
type fakeHealth struct {
	log *callLog

	mu     sync.Mutex
	values []types.InstanceHealth
	err    error
}

func (h *fakeHealth) Health(ctx context.Context, id string) (types.InstanceHealth, error) {
	h.log.add("health %s", id)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return types.InstanceUnknown, h.err
	}
	if len(h.values) == 0 {
		return types.InstanceHealthy, nil
	}
	v := h.values[0]
	if len(h.values) > 1 {
		h.values = h.values[1:]
	}
	return v, nil
}

// recordingLedger logs writes of a memory ledger and can fail on demand
type recordingLedger struct {
	*ledger.MemoryLedger
	log *callLog

	mu   sync.Mutex
	fail map[string]error
	wins int
}

func newRecordingLedger(log *callLog) *recordingLedger {
	return &recordingLedger{MemoryLedger: ledger.NewMemoryLedger(), log: log, fail: map[string]error{}}
}

func (l *recordingLedger) setFail(op string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.fail, op)
		return
	}
	l.fail[op] = err
}

func (l *recordingLedger) err(op string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fail[op]
}

func (l *recordingLedger) ClaimIfAbsent(ctx context.Context, id string) (bool, error) {
	l.log.add("ledger.claim %s", id)
	if err := l.err("claim"); err != nil {
		return false, err
	}
	won, err := l.MemoryLedger.ClaimIfAbsent(ctx, id)
	if won {
		l.mu.Lock()
		l.wins++
		l.mu.Unlock()
	}
	return won, err
}

func (l *recordingLedger) SetFlag(ctx context.Context, id string, flag types.Flag) error {
	l.log.add("ledger.set %s", flag)
	if err := l.err("set:" + string(flag)); err != nil {
		return err
	}
	return l.MemoryLedger.SetFlag(ctx, id, flag)
}

func (l *recordingLedger) Progress(ctx context.Context, id string) (types.DrainProgress, error) {
	if err := l.err("progress"); err != nil {
		return types.DrainProgress{}, err
	}
	return l.MemoryLedger.Progress(ctx, id)
}
