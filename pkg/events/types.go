package events

import (
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/types"
)

const (
	EVENT_EVM_CONTRACT_CALL                    = "Evm.ContractCall"
	EVENT_EVM_CONTRACT_CALL_WITH_TOKEN         = "Evm.ContractCallWithToken"
	EVENT_EVM_CONTRACT_CALL_APPROVED           = "Evm.ContractCallApproved"
	EVENT_EVM_CONTRACT_CALL_APPROVED_WITH_MINT = "Evm.ContractCallApprovedWithMint"
	EVENT_AXELAR_CONTRACT_CALL_SUBMITTED       = "Axelar.ContractCallSubmitted"
	EVENT_AXELAR_CONTRACT_CALL_WITH_TOKEN      = "Axelar.ContractCallWithTokenSubmitted"
	EVENT_AXELAR_EVM_EVENT_COMPLETED           = "Axelar.EVMEventCompleted"
	EVENT_AXELAR_IBC_COMPLETE                  = "Axelar.IBCComplete"
)

type (
	EvmContractCallEvent             = *types.EvmEvent[*types.ContractCall]
	EvmContractCallWithTokenEvent    = *types.EvmEvent[*types.ContractCallWithToken]
	EvmContractCallApprovedEvent     = *types.EvmEvent[*types.ContractCallApproved]
	EvmContractCallApprovedMintEvent = *types.EvmEvent[*types.ContractCallApprovedWithMint]
	CosmosContractCallEvent          = *types.IBCEvent[types.ContractCallSubmitted]
	CosmosContractCallWithTokenEvent = *types.IBCEvent[types.ContractCallWithTokenSubmitted]
	EvmEventCompletedEvent           = *types.ExecuteRequest
	IBCCompleteEvent                 = *types.IBCPacketEvent
)

// EventBus groups one subject per {source, event kind} pair.
type EventBus struct {
	EvmContractCall                 *Subject[EvmContractCallEvent]
	EvmContractCallWithToken        *Subject[EvmContractCallWithTokenEvent]
	EvmContractCallApproved         *Subject[EvmContractCallApprovedEvent]
	EvmContractCallApprovedWithMint *Subject[EvmContractCallApprovedMintEvent]
	CosmosContractCall              *Subject[CosmosContractCallEvent]
	CosmosContractCallWithToken     *Subject[CosmosContractCallWithTokenEvent]
	EvmEventCompleted               *Subject[EvmEventCompletedEvent]
	IBCComplete                     *Subject[IBCCompleteEvent]
}

func NewEventBus(bufferSize int) *EventBus {
	return &EventBus{
		EvmContractCall:                 NewSubject[EvmContractCallEvent](EVENT_EVM_CONTRACT_CALL, bufferSize),
		EvmContractCallWithToken:        NewSubject[EvmContractCallWithTokenEvent](EVENT_EVM_CONTRACT_CALL_WITH_TOKEN, bufferSize),
		EvmContractCallApproved:         NewSubject[EvmContractCallApprovedEvent](EVENT_EVM_CONTRACT_CALL_APPROVED, bufferSize),
		EvmContractCallApprovedWithMint: NewSubject[EvmContractCallApprovedMintEvent](EVENT_EVM_CONTRACT_CALL_APPROVED_WITH_MINT, bufferSize),
		CosmosContractCall:              NewSubject[CosmosContractCallEvent](EVENT_AXELAR_CONTRACT_CALL_SUBMITTED, bufferSize),
		CosmosContractCallWithToken:     NewSubject[CosmosContractCallWithTokenEvent](EVENT_AXELAR_CONTRACT_CALL_WITH_TOKEN, bufferSize),
		EvmEventCompleted:               NewSubject[EvmEventCompletedEvent](EVENT_AXELAR_EVM_EVENT_COMPLETED, bufferSize),
		IBCComplete:                     NewSubject[IBCCompleteEvent](EVENT_AXELAR_IBC_COMPLETE, bufferSize),
	}
}

func (b *EventBus) Close() {
	b.EvmContractCall.Close()
	b.EvmContractCallWithToken.Close()
	b.EvmContractCallApproved.Close()
	b.EvmContractCallApprovedWithMint.Close()
	b.CosmosContractCall.Close()
	b.CosmosContractCallWithToken.Close()
	b.EvmEventCompleted.Close()
	b.IBCComplete.Close()
}
