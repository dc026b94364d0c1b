package fleet

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	astypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"
	"github.com/aws/aws-sdk-go-v2/service/gamelift"
	gltypes "github.com/aws/aws-sdk-go-v2/service/gamelift/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/fleetdrain/pkg/types"
)

type fakeGameLift struct {
	registerErr   error
	claimErr      error
	updateErr     error
	deregisterErr error

	registered   []*gamelift.RegisterGameServerInput
	claimed      []*gamelift.ClaimGameServerInput
	updated      []*gamelift.UpdateGameServerInput
	deregistered []*gamelift.DeregisterGameServerInput
}

func (f *fakeGameLift) RegisterGameServer(ctx context.Context, in *gamelift.RegisterGameServerInput, _ ...func(*gamelift.Options)) (*gamelift.RegisterGameServerOutput, error) {
	f.registered = append(f.registered, in)
	return &gamelift.RegisterGameServerOutput{}, f.registerErr
}

func (f *fakeGameLift) ClaimGameServer(ctx context.Context, in *gamelift.ClaimGameServerInput, _ ...func(*gamelift.Options)) (*gamelift.ClaimGameServerOutput, error) {
	f.claimed = append(f.claimed, in)
	return &gamelift.ClaimGameServerOutput{}, f.claimErr
}

func (f *fakeGameLift) UpdateGameServer(ctx context.Context, in *gamelift.UpdateGameServerInput, _ ...func(*gamelift.Options)) (*gamelift.UpdateGameServerOutput, error) {
	f.updated = append(f.updated, in)
	return &gamelift.UpdateGameServerOutput{}, f.updateErr
}

func (f *fakeGameLift) DeregisterGameServer(ctx context.Context, in *gamelift.DeregisterGameServerInput, _ ...func(*gamelift.Options)) (*gamelift.DeregisterGameServerOutput, error) {
	f.deregistered = append(f.deregistered, in)
	return &gamelift.DeregisterGameServerOutput{}, f.deregisterErr
}

func TestRegistryCalls(t *testing.T) {
	ctx := context.Background()
	fake := &fakeGameLift{}
	r := NewRegistry(fake)

	require.NoError(t, r.Register(ctx, "g1", "i-1"))
	require.NoError(t, r.UpdateHealth(ctx, "g1", "i-1"))
	require.NoError(t, r.Claim(ctx, "g1", "i-1"))
	require.NoError(t, r.UpdateUtilization(ctx, "g1", "i-1", types.UtilizationUtilized))
	require.NoError(t, r.Deregister(ctx, "g1", "i-1"))

	require.Len(t, fake.registered, 1)
	assert.Equal(t, "g1", aws.ToString(fake.registered[0].GameServerGroupName))
	assert.Equal(t, "i-1", aws.ToString(fake.registered[0].GameServerId))
	assert.Equal(t, "i-1", aws.ToString(fake.registered[0].InstanceId))

	require.Len(t, fake.claimed, 1)
	assert.Equal(t, "i-1", aws.ToString(fake.claimed[0].GameServerId))

	require.Len(t, fake.updated, 2)
	assert.Equal(t, gltypes.GameServerHealthCheckHealthy, fake.updated[0].HealthCheck)
	assert.Empty(t, fake.updated[0].UtilizationStatus)
	assert.Equal(t, gltypes.GameServerUtilizationStatusUtilized, fake.updated[1].UtilizationStatus)
	assert.Empty(t, fake.updated[1].HealthCheck)

	require.Len(t, fake.deregistered, 1)
	assert.Equal(t, "g1", aws.ToString(fake.deregistered[0].GameServerGroupName))
}

func TestRegistryErrorKinds(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		err  error
		want types.ErrorKind
	}{
		{"conflict", &gltypes.ConflictException{Message: aws.String("already registered")}, types.ErrorKindConflict},
		{"not found", &gltypes.NotFoundException{Message: aws.String("no such game server")}, types.ErrorKindNotFound},
		{"invalid", &gltypes.InvalidRequestException{Message: aws.String("bad group")}, types.ErrorKindInvalid},
		{"throttled", errors.New("ThrottlingException: rate exceeded"), types.ErrorKindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeGameLift{registerErr: tt.err, claimErr: tt.err, deregisterErr: tt.err}
			r := NewRegistry(fake)

			assert.Equal(t, tt.want, types.KindOf(r.Register(ctx, "g1", "i-1")))
			assert.Equal(t, tt.want, types.KindOf(r.Claim(ctx, "g1", "i-1")))
			assert.Equal(t, tt.want, types.KindOf(r.Deregister(ctx, "g1", "i-1")))
			assert.ErrorIs(t, r.Register(ctx, "g1", "i-1"), tt.err)
		})
	}
}

type fakeAutoScaling struct {
	instances []astypes.AutoScalingInstanceDetails
	err       error
	calls     int
}

func (f *fakeAutoScaling) DescribeAutoScalingInstances(ctx context.Context, in *autoscaling.DescribeAutoScalingInstancesInput, _ ...func(*autoscaling.Options)) (*autoscaling.DescribeAutoScalingInstancesOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &autoscaling.DescribeAutoScalingInstancesOutput{AutoScalingInstances: f.instances}, nil
}

func TestHealthSource(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		instances []astypes.AutoScalingInstanceDetails
		want      types.InstanceHealth
	}{
		{
			name:      "healthy",
			instances: []astypes.AutoScalingInstanceDetails{{InstanceId: aws.String("i-1"), HealthStatus: aws.String("HEALTHY")}},
			want:      types.InstanceHealthy,
		},
		{
			name:      "lower case is normalized",
			instances: []astypes.AutoScalingInstanceDetails{{InstanceId: aws.String("i-1"), HealthStatus: aws.String("Unhealthy")}},
			want:      types.InstanceUnhealthy,
		},
		{
			name:      "missing instance",
			instances: nil,
			want:      types.InstanceUnknown,
		},
		{
			name:      "other instance only",
			instances: []astypes.AutoScalingInstanceDetails{{InstanceId: aws.String("i-2"), HealthStatus: aws.String("HEALTHY")}},
			want:      types.InstanceUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthSource(&fakeAutoScaling{instances: tt.instances})
			got, err := h.Health(ctx, "i-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHealthSourceError(t *testing.T) {
	h := NewHealthSource(&fakeAutoScaling{err: errors.New("timeout")})

	got, err := h.Health(context.Background(), "i-1")
	require.Error(t, err)
	assert.Equal(t, types.InstanceUnknown, got)
	assert.Equal(t, types.ErrorKindTransient, types.KindOf(err))
}
