package capacity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/gamelift"
	gltypes "github.com/aws/aws-sdk-go-v2/service/gamelift/types"
	kafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/fleetdrain/pkg/config"
	"github.com/cuemby/fleetdrain/pkg/intake"
	"github.com/cuemby/fleetdrain/pkg/types"
)

// fakeGameLift serves pages per group; page n links to page n+1
type fakeGameLift struct {
	pages map[string][][]gltypes.GameServerInstance
	err   map[string]error
}

func (f *fakeGameLift) DescribeGameServerInstances(ctx context.Context, in *gamelift.DescribeGameServerInstancesInput, _ ...func(*gamelift.Options)) (*gamelift.DescribeGameServerInstancesOutput, error) {
	group := aws.ToString(in.GameServerGroupName)
	if err := f.err[group]; err != nil {
		return nil, err
	}
	pages := f.pages[group]
	idx := 0
	if in.NextToken != nil {
		idx = int(aws.ToString(in.NextToken)[0] - '0')
	}
	out := &gamelift.DescribeGameServerInstancesOutput{}
	if idx < len(pages) {
		out.GameServerInstances = pages[idx]
	}
	if idx+1 < len(pages) {
		out.NextToken = aws.String(string(rune('0' + idx + 1)))
	}
	return out, nil
}

type fakeEC2 struct {
	dns   map[string]string
	err   error
	calls int
}

func (f *fakeEC2) DescribeInstances(ctx context.Context, in *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var instances []ec2types.Instance
	for _, id := range in.InstanceIds {
		name, ok := f.dns[id]
		if !ok {
			continue
		}
		instances = append(instances, ec2types.Instance{InstanceId: aws.String(id), PrivateDnsName: aws.String(name)})
	}
	return &ec2.DescribeInstancesOutput{Reservations: []ec2types.Reservation{{Instances: instances}}}, nil
}

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func (w *fakeWriter) messages() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

func instance(id string, status gltypes.GameServerInstanceStatus) gltypes.GameServerInstance {
	return gltypes.GameServerInstance{InstanceId: aws.String(id), InstanceStatus: status}
}

func decode(t *testing.T, msg kafka.Message) []types.InstanceRecord {
	t.Helper()
	records, rejected, err := intake.Decode(msg.Value)
	require.NoError(t, err)
	require.Empty(t, rejected)
	return records
}

func TestOncePublishesOneBatchPerPage(t *testing.T) {
	gl := &fakeGameLift{pages: map[string][][]gltypes.GameServerInstance{
		"g1": {
			{instance("i-1", gltypes.GameServerInstanceStatusActive), instance("i-2", gltypes.GameServerInstanceStatusDraining)},
			{instance("i-3", gltypes.GameServerInstanceStatusSpotTerminating)},
		},
	}}
	ec := &fakeEC2{dns: map[string]string{
		"i-1": "ip-10-0-0-1.ec2.internal",
		"i-2": "ip-10-0-0-2.ec2.internal",
		"i-3": "ip-10-0-0-3.ec2.internal",
	}}
	w := &fakeWriter{}
	p := NewPoller(gl, ec, w, config.CapacityConfig{Groups: []string{"g1"}})

	sent, err := p.Once(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Equal(t, 2, ec.calls)

	msgs := w.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "g1", string(msgs[0].Key))
	assert.Equal(t, []types.InstanceRecord{
		{InstanceID: "i-1", GroupName: "g1", PrivateDNSName: "ip-10-0-0-1.ec2.internal", Status: types.InstanceStatusActive},
		{InstanceID: "i-2", GroupName: "g1", PrivateDNSName: "ip-10-0-0-2.ec2.internal", Status: types.InstanceStatusDraining},
	}, decode(t, msgs[0]))
	assert.Equal(t, []types.InstanceRecord{
		{InstanceID: "i-3", GroupName: "g1", PrivateDNSName: "ip-10-0-0-3.ec2.internal", Status: types.InstanceStatusSpotTerminating},
	}, decode(t, msgs[1]))
}

func TestOnceSkipsInstancesWithoutDNS(t *testing.T) {
	gl := &fakeGameLift{pages: map[string][][]gltypes.GameServerInstance{
		"g1": {
			{instance("i-1", gltypes.GameServerInstanceStatusActive), instance("i-2", gltypes.GameServerInstanceStatusActive)},
			{instance("i-3", gltypes.GameServerInstanceStatusActive)},
		},
	}}
	ec := &fakeEC2{dns: map[string]string{"i-1": "ip-10-0-0-1", "i-2": "", "i-3": ""}}
	w := &fakeWriter{}
	p := NewPoller(gl, ec, w, config.CapacityConfig{Groups: []string{"g1"}})

	sent, err := p.Once(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent, "a page without addressable instances is not published")

	msgs := w.messages()
	require.Len(t, msgs, 1)
	records := decode(t, msgs[0])
	require.Len(t, records, 1)
	assert.Equal(t, "i-1", records[0].InstanceID)
}

func TestOnceContinuesAfterGroupFailure(t *testing.T) {
	gl := &fakeGameLift{
		pages: map[string][][]gltypes.GameServerInstance{
			"g2": {{instance("i-9", gltypes.GameServerInstanceStatusDraining)}},
		},
		err: map[string]error{"g1": errors.New("throttled")},
	}
	ec := &fakeEC2{dns: map[string]string{"i-9": "ip-10-0-0-9"}}
	w := &fakeWriter{}
	p := NewPoller(gl, ec, w, config.CapacityConfig{Groups: []string{"g1", "g2"}})

	sent, err := p.Once(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "group g1")
	assert.Equal(t, 1, sent)
	require.Len(t, w.messages(), 1)
	assert.Equal(t, "g2", string(w.messages()[0].Key))
}

func TestOnceResolveAndWriteFailures(t *testing.T) {
	pages := map[string][][]gltypes.GameServerInstance{
		"g1": {{instance("i-1", gltypes.GameServerInstanceStatusActive)}},
	}

	p := NewPoller(&fakeGameLift{pages: pages}, &fakeEC2{err: errors.New("unauthorized")}, &fakeWriter{}, config.CapacityConfig{Groups: []string{"g1"}})
	_, err := p.Once(context.Background())
	assert.ErrorContains(t, err, "describe instances")

	w := &fakeWriter{err: errors.New("leader not available")}
	p = NewPoller(&fakeGameLift{pages: pages}, &fakeEC2{dns: map[string]string{"i-1": "n1"}}, w, config.CapacityConfig{Groups: []string{"g1"}})
	sent, err := p.Once(context.Background())
	assert.ErrorContains(t, err, "publish batch")
	assert.Zero(t, sent)
}

func TestRunPollsUntilCancelled(t *testing.T) {
	gl := &fakeGameLift{pages: map[string][][]gltypes.GameServerInstance{
		"g1": {{instance("i-1", gltypes.GameServerInstanceStatusActive)}},
	}}
	w := &fakeWriter{}
	p := NewPoller(gl, &fakeEC2{dns: map[string]string{"i-1": "n1"}}, w, config.CapacityConfig{
		Groups:       []string{"g1"},
		PollInterval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return len(w.messages()) >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}
