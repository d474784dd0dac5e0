package axelar

import (
	"context"

	"github.com/scalarorg/cosmos-gmp-relayer/pkg/types"
)

const (
	ContractCallSubmittedEventTopicId          = "tm.event='Tx' AND axelar.axelarnet.v1beta1.ContractCallSubmitted.message_id EXISTS"
	ContractCallWithTokenSubmittedEventTopicId = "tm.event='Tx' AND axelar.axelarnet.v1beta1.ContractCallWithTokenSubmitted.message_id EXISTS"
	EVMEventCompletedEventTopicId              = "tm.event='NewBlock' AND axelar.evm.v1beta1.EVMEventCompleted.event_id EXISTS"
	IBCCompleteEventTopicId                    = "tm.event='Tx' AND message.action='ExecuteMessage'"
)

// ListenerEvent binds a hub query to the parser of its attribute map.
type ListenerEvent[T any] struct {
	TopicId string
	Type    string
	Parser  func(ctx context.Context, events map[string][]string) ([]T, error)
}

var (
	ContractCallSubmittedEvent = ListenerEvent[*types.IBCEvent[types.ContractCallSubmitted]]{
		TopicId: ContractCallSubmittedEventTopicId,
		Type:    KEY_CONTRACT_CALL_SUBMITTED,
		Parser:  ParseContractCallSubmittedEvent,
	}
	ContractCallWithTokenSubmittedEvent = ListenerEvent[*types.IBCEvent[types.ContractCallWithTokenSubmitted]]{
		TopicId: ContractCallWithTokenSubmittedEventTopicId,
		Type:    KEY_CONTRACT_CALL_WITH_TOKEN_SUBMITTED,
		Parser:  ParseContractCallWithTokenSubmittedEvent,
	}
	IBCCompleteEvent = ListenerEvent[*types.IBCPacketEvent]{
		TopicId: IBCCompleteEventTopicId,
		Type:    "send_packet",
		Parser:  ParseIBCCompleteEvent,
	}
)

// EVMEventCompletedEvent needs the store to attach the payload of each completed event.
func EVMEventCompletedEvent(parser *Parser) ListenerEvent[*types.ExecuteRequest] {
	return ListenerEvent[*types.ExecuteRequest]{
		TopicId: EVMEventCompletedEventTopicId,
		Type:    KEY_EVM_EVENT_COMPLETED,
		Parser:  parser.ParseEvmEventCompletedEvent,
	}
}
