package intake

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPingBrokersNoneConfigured(t *testing.T) {
	assert.Error(t, PingBrokers(context.Background(), nil))
}

func TestPingBrokersUnreachable(t *testing.T) {
	// grab a free port and release it so nothing listens there
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = PingBrokers(ctx, []string{addr})
	assert.ErrorContains(t, err, "no kafka broker reachable")
}
