package types

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EvmEvent is a gateway log resolved against its transaction receipt.
type EvmEvent[T any] struct {
	Hash             string
	BlockNumber      uint64
	LogIndex         uint
	SourceChain      string
	DestinationChain string
	// WaitForFinality blocks until the configured number of confirmations accrued.
	WaitForFinality func(ctx context.Context) error `json:"-"`
	Args            T
}

// Gateway event arguments

type ContractCall struct {
	Sender                     common.Address
	DestinationChain           string
	DestinationContractAddress string
	PayloadHash                [32]byte
	Payload                    []byte
}

type ContractCallWithToken struct {
	Sender                     common.Address
	DestinationChain           string
	DestinationContractAddress string
	PayloadHash                [32]byte
	Payload                    []byte
	Symbol                     string
	Amount                     *big.Int
}

type ContractCallApproved struct {
	CommandId        [32]byte
	SourceChain      string
	SourceAddress    string
	ContractAddress  common.Address
	PayloadHash      [32]byte
	SourceTxHash     [32]byte
	SourceEventIndex *big.Int
}

type ContractCallApprovedWithMint struct {
	CommandId        [32]byte
	SourceChain      string
	SourceAddress    string
	ContractAddress  common.Address
	PayloadHash      [32]byte
	Symbol           string
	Amount           *big.Int
	SourceTxHash     [32]byte
	SourceEventIndex *big.Int
}

// IBCEvent represents a generic hub event with generic type T for Args
type IBCEvent[T any] struct {
	Hash        string `json:"hash"`
	SrcChannel  string `json:"srcChannel,omitempty"`
	DestChannel string `json:"destChannel,omitempty"`
	Args        T      `json:"args"`
}

type ContractCallSubmitted struct {
	MessageID        string `json:"messageId"`
	Sender           string `json:"sender"`
	SourceChain      string `json:"sourceChain"`
	DestinationChain string `json:"destinationChain"`
	ContractAddress  string `json:"contractAddress"`
	Payload          string `json:"payload"`
	PayloadHash      string `json:"payloadHash"`
}

type ContractCallWithTokenSubmitted struct {
	ContractCallSubmitted
	Symbol string `json:"symbol"`
	Amount string `json:"amount"`
}

// ExecuteRequest is emitted once the hub reports an EVM event as completed.
type ExecuteRequest struct {
	ID      string `json:"id"`
	Payload string `json:"payload"`
}

// IBCPacketEvent represents an IBC packet event
type IBCPacketEvent struct {
	Hash        string `json:"hash"`
	SrcChannel  string `json:"srcChannel"`
	DestChannel string `json:"destChannel"`
	Denom       string `json:"denom"`
	Amount      string `json:"amount"`
	Sequence    int    `json:"sequence"`
	Memo        any    `json:"memo"`
}
