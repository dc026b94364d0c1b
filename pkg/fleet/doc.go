/*
Package fleet wraps the AWS side of a game server group: the GameLift
FleetIQ game server registry and the Auto Scaling health of its instances.

FleetIQ only places game sessions on instances that have a registered,
healthy and claimed game server. The drain controller keeps that
registration in step with the node: it registers an instance when the node
first shows up, and deregisters it once the node holds no allocated session.
This package is the narrow client it does that through.

# Architecture

	┌──────────────────────── FLEET ────────────────────────────┐
	│                                                             │
	│   drain.Controller                                          │
	│        │                           │                        │
	│        │ FleetRegistry              │ HealthSource           │
	│        ▼                           ▼                        │
	│  ┌──────────────────┐     ┌─────────────────────┐          │
	│  │    Registry       │     │    HealthSource      │          │
	│  │  Register         │     │  Health(instanceID)  │          │
	│  │  Claim            │     └──────────┬──────────┘          │
	│  │  UpdateHealth     │                │                     │
	│  │  UpdateUtilization│                │                     │
	│  │  Deregister       │                │                     │
	│  └────────┬─────────┘                │                     │
	│           │ GameLiftAPI               │ AutoScalingAPI      │
	│           ▼                           ▼                     │
	│  ┌──────────────────┐     ┌─────────────────────────────┐  │
	│  │ gamelift.Client   │     │ autoscaling.Client           │  │
	│  │ (FleetIQ)         │     │ DescribeAutoScalingInstances │  │
	│  └──────────────────┘     └─────────────────────────────┘  │
	│                                                             │
	│   LoadAWSConfig: default credential chain + region          │
	└─────────────────────────────────────────────────────────────┘

Both wrappers take an interface holding only the SDK methods they call, so
tests replace the AWS clients with small fakes and the real clients from
aws-sdk-go-v2 satisfy the interfaces unchanged.

# Core Components

Registry:
  - The game server id is always the instance id, so every call is keyed by
    (game server group, instance id)
  - Register: RegisterGameServer with GameServerId = InstanceId
  - Claim: ClaimGameServer so FleetIQ stops handing the server out
  - UpdateHealth: UpdateGameServer with HealthCheck HEALTHY
  - UpdateUtilization: UpdateGameServer with a UtilizationStatus
  - Deregister: DeregisterGameServer

HealthSource:
  - Reads the instance from DescribeAutoScalingInstances
  - Normalizes the reported status to upper case
  - Returns HEALTHY or UNHEALTHY, and UNKNOWN while the group does not list
    the instance yet or reports something else

LoadAWSConfig:
  - Uses the SDK default chain (environment, shared files, IMDS, IRSA)
  - An explicit region overrides AWS_REGION and the shared config

# Error Classification

The registry never decides whether an error is acceptable. Every SDK error is
wrapped in a types.Error with a kind, and the controller matches on it:

	ConflictException        ──▶ types.ErrorKindConflict
	NotFoundException        ──▶ types.ErrorKindNotFound
	InvalidRequestException  ──▶ types.ErrorKindInvalid
	anything else            ──▶ types.ErrorKindTransient

A conflict on Register or Claim means an earlier delivery already did the
work. A not-found on Deregister means the game server is already gone. Both
count as success in the controller. Health lookups that fail are transient
and the controller's retry policy polls again.

# Usage

	awsCfg, err := fleet.LoadAWSConfig(ctx, "us-west-2")
	if err != nil {
		return err
	}

	registry := fleet.NewRegistry(gamelift.NewFromConfig(awsCfg))
	health := fleet.NewHealthSource(autoscaling.NewFromConfig(awsCfg))

	if err := registry.Register(ctx, "games-a", "i-0abc"); err != nil &&
		!types.IsKind(err, types.ErrorKindConflict) {
		return err
	}
	h, err := health.Health(ctx, "i-0abc")

# Testing

fleet_test.go drives both wrappers through fakes of GameLiftAPI and
AutoScalingAPI, asserting the request fields sent to AWS and the kind
assigned to each SDK exception.
*/
package fleet
