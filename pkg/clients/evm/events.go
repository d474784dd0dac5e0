package evm

import (
	"strings"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/types"
)

// EventSpec describes one gateway event kind: the abi event it subscribes to,
// how its log is decoded and which decoded events this relayer accepts.
type EventSpec[T any] struct {
	Name string
	// Parse decodes the log arguments.
	Parse func(gateway *GatewayContract, log ethtypes.Log) (T, error)
	// Chains resolves the source and destination chain, using the listener chain for the missing side.
	Chains func(listenerChain string, args T) (string, string)
	// Accepts filters on the chains served by this relayer. An empty list accepts everything.
	Accepts func(chains []string, args T) bool
}

func (s EventSpec[T]) Topic() string {
	return gatewayAbi.Events[s.Name].ID.Hex()
}

func unpack[E any](name string) func(gateway *GatewayContract, log ethtypes.Log) (*E, error) {
	return func(gateway *GatewayContract, log ethtypes.Log) (*E, error) {
		out := new(E)
		if err := gateway.UnpackLog(out, name, log); err != nil {
			return nil, err
		}
		return out, nil
	}
}

func containsChain(chains []string, chain string) bool {
	if len(chains) == 0 {
		return true
	}
	for _, c := range chains {
		if strings.EqualFold(c, chain) {
			return true
		}
	}
	return false
}

var EvmContractCallEvent = EventSpec[*types.ContractCall]{
	Name:  EVENT_CONTRACT_CALL,
	Parse: unpack[types.ContractCall](EVENT_CONTRACT_CALL),
	Chains: func(listenerChain string, args *types.ContractCall) (string, string) {
		return listenerChain, args.DestinationChain
	},
	Accepts: func(chains []string, args *types.ContractCall) bool {
		return containsChain(chains, args.DestinationChain)
	},
}

var EvmContractCallWithTokenEvent = EventSpec[*types.ContractCallWithToken]{
	Name:  EVENT_CONTRACT_CALL_WITH_TOKEN,
	Parse: unpack[types.ContractCallWithToken](EVENT_CONTRACT_CALL_WITH_TOKEN),
	Chains: func(listenerChain string, args *types.ContractCallWithToken) (string, string) {
		return listenerChain, args.DestinationChain
	},
	Accepts: func(chains []string, args *types.ContractCallWithToken) bool {
		return containsChain(chains, args.DestinationChain)
	},
}

var EvmContractCallApprovedEvent = EventSpec[*types.ContractCallApproved]{
	Name:  EVENT_CONTRACT_CALL_APPROVED,
	Parse: unpack[types.ContractCallApproved](EVENT_CONTRACT_CALL_APPROVED),
	Chains: func(listenerChain string, args *types.ContractCallApproved) (string, string) {
		return args.SourceChain, listenerChain
	},
	Accepts: func(chains []string, args *types.ContractCallApproved) bool {
		return containsChain(chains, args.SourceChain)
	},
}

var EvmContractCallApprovedWithMintEvent = EventSpec[*types.ContractCallApprovedWithMint]{
	Name:  EVENT_CONTRACT_CALL_APPROVED_WITH_MINT,
	Parse: unpack[types.ContractCallApprovedWithMint](EVENT_CONTRACT_CALL_APPROVED_WITH_MINT),
	Chains: func(listenerChain string, args *types.ContractCallApprovedWithMint) (string, string) {
		return args.SourceChain, listenerChain
	},
	Accepts: func(chains []string, args *types.ContractCallApprovedWithMint) bool {
		return containsChain(chains, args.SourceChain)
	},
}
