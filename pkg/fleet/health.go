package fleet

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"

	"github.com/cuemby/fleetdrain/pkg/types"
)

// AutoScalingAPI is the part of the Auto Scaling client used by HealthSource
type AutoScalingAPI interface {
	DescribeAutoScalingInstances(ctx context.Context, in *autoscaling.DescribeAutoScalingInstancesInput, optFns ...func(*autoscaling.Options)) (*autoscaling.DescribeAutoScalingInstancesOutput, error)
}

// HealthSource reads instance health as reported by the Auto Scaling group
type HealthSource struct {
	client AutoScalingAPI
}

// NewHealthSource creates a health source over an Auto Scaling client
func NewHealthSource(client AutoScalingAPI) *HealthSource {
	return &HealthSource{client: client}
}

// Health returns HEALTHY or UNHEALTHY for a known instance and UNKNOWN when
// the group does not report it (yet)
func (h *HealthSource) Health(ctx context.Context, instanceID string) (types.InstanceHealth, error) {
	out, err := h.client.DescribeAutoScalingInstances(ctx, &autoscaling.DescribeAutoScalingInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		return types.InstanceUnknown, types.NewError(types.ErrorKindTransient, "describe auto scaling instances", fmt.Errorf("autoscaling: %w", err))
	}

	for _, inst := range out.AutoScalingInstances {
		if aws.ToString(inst.InstanceId) != instanceID {
			continue
		}
		switch health := types.InstanceHealth(strings.ToUpper(aws.ToString(inst.HealthStatus))); health {
		case types.InstanceHealthy, types.InstanceUnhealthy:
			return health, nil
		}
		return types.InstanceUnknown, nil
	}
	return types.InstanceUnknown, nil
}
