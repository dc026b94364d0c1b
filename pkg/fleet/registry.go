package fleet

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/gamelift"
	gltypes "github.com/aws/aws-sdk-go-v2/service/gamelift/types"

	"github.com/cuemby/fleetdrain/pkg/types"
)

// GameLiftAPI is the part of the GameLift client used by the registry
type GameLiftAPI interface {
	RegisterGameServer(ctx context.Context, in *gamelift.RegisterGameServerInput, optFns ...func(*gamelift.Options)) (*gamelift.RegisterGameServerOutput, error)
	ClaimGameServer(ctx context.Context, in *gamelift.ClaimGameServerInput, optFns ...func(*gamelift.Options)) (*gamelift.ClaimGameServerOutput, error)
	UpdateGameServer(ctx context.Context, in *gamelift.UpdateGameServerInput, optFns ...func(*gamelift.Options)) (*gamelift.UpdateGameServerOutput, error)
	DeregisterGameServer(ctx context.Context, in *gamelift.DeregisterGameServerInput, optFns ...func(*gamelift.Options)) (*gamelift.DeregisterGameServerOutput, error)
}

// Registry manages the game server identity of each instance in GameLift
// FleetIQ. The game server id is the instance id.
//
// The registry never swallows errors: conflicts and missing game servers are
// returned as classified errors and the caller decides whether they matter.
type Registry struct {
	client GameLiftAPI
}

// NewRegistry creates a registry over a GameLift client
func NewRegistry(client GameLiftAPI) *Registry {
	return &Registry{client: client}
}

// Register registers the instance as a game server in its group
func (r *Registry) Register(ctx context.Context, group, instanceID string) error {
	_, err := r.client.RegisterGameServer(ctx, &gamelift.RegisterGameServerInput{
		GameServerGroupName: aws.String(group),
		GameServerId:        aws.String(instanceID),
		InstanceId:          aws.String(instanceID),
	})
	return classify("register game server", err)
}

// Claim claims the game server so FleetIQ does not hand it out
func (r *Registry) Claim(ctx context.Context, group, instanceID string) error {
	_, err := r.client.ClaimGameServer(ctx, &gamelift.ClaimGameServerInput{
		GameServerGroupName: aws.String(group),
		GameServerId:        aws.String(instanceID),
	})
	return classify("claim game server", err)
}

// UpdateHealth reports the game server as healthy
func (r *Registry) UpdateHealth(ctx context.Context, group, instanceID string) error {
	_, err := r.client.UpdateGameServer(ctx, &gamelift.UpdateGameServerInput{
		GameServerGroupName: aws.String(group),
		GameServerId:        aws.String(instanceID),
		HealthCheck:         gltypes.GameServerHealthCheckHealthy,
	})
	return classify("update game server health", err)
}

// UpdateUtilization sets the utilization status of the game server
func (r *Registry) UpdateUtilization(ctx context.Context, group, instanceID string, status types.UtilizationStatus) error {
	_, err := r.client.UpdateGameServer(ctx, &gamelift.UpdateGameServerInput{
		GameServerGroupName: aws.String(group),
		GameServerId:        aws.String(instanceID),
		UtilizationStatus:   gltypes.GameServerUtilizationStatus(status),
	})
	return classify("update game server utilization", err)
}

// Deregister removes the game server from its group
func (r *Registry) Deregister(ctx context.Context, group, instanceID string) error {
	_, err := r.client.DeregisterGameServer(ctx, &gamelift.DeregisterGameServerInput{
		GameServerGroupName: aws.String(group),
		GameServerId:        aws.String(instanceID),
	})
	return classify("deregister game server", err)
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var (
		conflict *gltypes.ConflictException
		notFound *gltypes.NotFoundException
		invalid  *gltypes.InvalidRequestException
	)
	kind := types.ErrorKindTransient
	switch {
	case errors.As(err, &conflict):
		kind = types.ErrorKindConflict
	case errors.As(err, &notFound):
		kind = types.ErrorKindNotFound
	case errors.As(err, &invalid):
		kind = types.ErrorKindInvalid
	}
	return types.NewError(kind, op, fmt.Errorf("gamelift: %w", err))
}
