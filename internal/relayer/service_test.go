package relayer_test

import (
	"context"
	"testing"

	"github.com/scalarorg/cosmos-gmp-relayer/internal/relayer"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/events"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/handlers"
	"github.com/stretchr/testify/assert"
)

func TestWireBindsEverySubject(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := events.NewEventBus(4)
	defer bus.Close()

	relayer.Wire(ctx, bus, handlers.NewHandlers(nil, nil, nil, handlers.Options{}))

	assert.Equal(t, 1, bus.EvmContractCall.SubscriberCount())
	assert.Equal(t, 1, bus.EvmContractCallWithToken.SubscriberCount())
	assert.Equal(t, 1, bus.EvmContractCallApproved.SubscriberCount())
	assert.Equal(t, 1, bus.EvmContractCallApprovedWithMint.SubscriberCount())
	assert.Equal(t, 1, bus.CosmosContractCall.SubscriberCount())
	assert.Equal(t, 1, bus.CosmosContractCallWithToken.SubscriberCount())
	assert.Equal(t, 1, bus.EvmEventCompleted.SubscriberCount())
	assert.Equal(t, 1, bus.IBCComplete.SubscriberCount())
}
