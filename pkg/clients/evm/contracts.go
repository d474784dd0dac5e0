package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

const (
	EVENT_CONTRACT_CALL                    = "ContractCall"
	EVENT_CONTRACT_CALL_WITH_TOKEN         = "ContractCallWithToken"
	EVENT_CONTRACT_CALL_APPROVED           = "ContractCallApproved"
	EVENT_CONTRACT_CALL_APPROVED_WITH_MINT = "ContractCallApprovedWithMint"
)

// Subset of the IAxelarGateway abi used by the relayer.
const GatewayABI = `[
	{"anonymous":false,"name":"ContractCall","type":"event","inputs":[
		{"indexed":true,"name":"sender","type":"address"},
		{"indexed":false,"name":"destinationChain","type":"string"},
		{"indexed":false,"name":"destinationContractAddress","type":"string"},
		{"indexed":true,"name":"payloadHash","type":"bytes32"},
		{"indexed":false,"name":"payload","type":"bytes"}]},
	{"anonymous":false,"name":"ContractCallWithToken","type":"event","inputs":[
		{"indexed":true,"name":"sender","type":"address"},
		{"indexed":false,"name":"destinationChain","type":"string"},
		{"indexed":false,"name":"destinationContractAddress","type":"string"},
		{"indexed":true,"name":"payloadHash","type":"bytes32"},
		{"indexed":false,"name":"payload","type":"bytes"},
		{"indexed":false,"name":"symbol","type":"string"},
		{"indexed":false,"name":"amount","type":"uint256"}]},
	{"anonymous":false,"name":"ContractCallApproved","type":"event","inputs":[
		{"indexed":true,"name":"commandId","type":"bytes32"},
		{"indexed":false,"name":"sourceChain","type":"string"},
		{"indexed":false,"name":"sourceAddress","type":"string"},
		{"indexed":true,"name":"contractAddress","type":"address"},
		{"indexed":true,"name":"payloadHash","type":"bytes32"},
		{"indexed":false,"name":"sourceTxHash","type":"bytes32"},
		{"indexed":false,"name":"sourceEventIndex","type":"uint256"}]},
	{"anonymous":false,"name":"ContractCallApprovedWithMint","type":"event","inputs":[
		{"indexed":true,"name":"commandId","type":"bytes32"},
		{"indexed":false,"name":"sourceChain","type":"string"},
		{"indexed":false,"name":"sourceAddress","type":"string"},
		{"indexed":true,"name":"contractAddress","type":"address"},
		{"indexed":true,"name":"payloadHash","type":"bytes32"},
		{"indexed":false,"name":"symbol","type":"string"},
		{"indexed":false,"name":"amount","type":"uint256"},
		{"indexed":false,"name":"sourceTxHash","type":"bytes32"},
		{"indexed":false,"name":"sourceEventIndex","type":"uint256"}]},
	{"name":"isCommandExecuted","type":"function","stateMutability":"view",
		"inputs":[{"name":"commandId","type":"bytes32"}],
		"outputs":[{"name":"","type":"bool"}]},
	{"name":"isContractCallApproved","type":"function","stateMutability":"view",
		"inputs":[
			{"name":"commandId","type":"bytes32"},
			{"name":"sourceChain","type":"string"},
			{"name":"sourceAddress","type":"string"},
			{"name":"contractAddress","type":"address"},
			{"name":"payloadHash","type":"bytes32"}],
		"outputs":[{"name":"","type":"bool"}]},
	{"name":"isContractCallAndMintApproved","type":"function","stateMutability":"view",
		"inputs":[
			{"name":"commandId","type":"bytes32"},
			{"name":"sourceChain","type":"string"},
			{"name":"sourceAddress","type":"string"},
			{"name":"contractAddress","type":"address"},
			{"name":"payloadHash","type":"bytes32"},
			{"name":"symbol","type":"string"},
			{"name":"amount","type":"uint256"}],
		"outputs":[{"name":"","type":"bool"}]}
]`

// Subset of the IAxelarExecutable abi.
const ExecutableABI = `[
	{"name":"execute","type":"function","stateMutability":"nonpayable","outputs":[],
		"inputs":[
			{"name":"commandId","type":"bytes32"},
			{"name":"sourceChain","type":"string"},
			{"name":"sourceAddress","type":"string"},
			{"name":"payload","type":"bytes"}]},
	{"name":"executeWithToken","type":"function","stateMutability":"nonpayable","outputs":[],
		"inputs":[
			{"name":"commandId","type":"bytes32"},
			{"name":"sourceChain","type":"string"},
			{"name":"sourceAddress","type":"string"},
			{"name":"payload","type":"bytes"},
			{"name":"tokenSymbol","type":"string"},
			{"name":"amount","type":"uint256"}]}
]`

var (
	gatewayAbi    = mustParseABI(GatewayABI)
	executableAbi = mustParseABI(ExecutableABI)
)

func mustParseABI(definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(fmt.Sprintf("invalid contract abi: %v", err))
	}
	return parsed
}

func GetGatewayABI() *abi.ABI {
	return &gatewayAbi
}

// GatewayContract binds the gateway events and view functions.
type GatewayContract struct {
	Address  common.Address
	contract *bind.BoundContract
	filterer bind.ContractFilterer
}

func NewGatewayContract(address common.Address, backend bind.ContractBackend) *GatewayContract {
	return &GatewayContract{
		Address:  address,
		contract: bind.NewBoundContract(address, gatewayAbi, backend, backend, backend),
		filterer: backend,
	}
}

// FilterLogs returns the logs of the named gateway event in blocks from..to.
func (g *GatewayContract) FilterLogs(ctx context.Context, eventName string, from uint64, to uint64) ([]ethtypes.Log, error) {
	gatewayEvent, ok := gatewayAbi.Events[eventName]
	if !ok {
		return nil, fmt.Errorf("unknown gateway event %s", eventName)
	}
	return g.filterer.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{g.Address},
		Topics:    [][]common.Hash{{gatewayEvent.ID}},
	})
}

// WatchLogs subscribes to every log of the named gateway event.
func (g *GatewayContract) WatchLogs(opts *bind.WatchOpts, eventName string) (chan ethtypes.Log, event.Subscription, error) {
	return g.contract.WatchLogs(opts, eventName)
}

func (g *GatewayContract) UnpackLog(out any, eventName string, log ethtypes.Log) error {
	return g.contract.UnpackLog(out, eventName, log)
}

func (g *GatewayContract) callBool(opts *bind.CallOpts, method string, params ...any) (bool, error) {
	var out []any
	if err := g.contract.Call(opts, &out, method, params...); err != nil {
		return false, err
	}
	if len(out) == 0 {
		return false, fmt.Errorf("empty result from %s", method)
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

func (g *GatewayContract) IsCommandExecuted(opts *bind.CallOpts, commandId [32]byte) (bool, error) {
	return g.callBool(opts, "isCommandExecuted", commandId)
}

func (g *GatewayContract) IsContractCallApproved(opts *bind.CallOpts, commandId [32]byte, sourceChain string,
	sourceAddress string, contractAddress common.Address, payloadHash [32]byte) (bool, error) {
	return g.callBool(opts, "isContractCallApproved", commandId, sourceChain, sourceAddress, contractAddress, payloadHash)
}

func (g *GatewayContract) IsContractCallAndMintApproved(opts *bind.CallOpts, commandId [32]byte, sourceChain string,
	sourceAddress string, contractAddress common.Address, payloadHash [32]byte, symbol string, amount *big.Int) (bool, error) {
	return g.callBool(opts, "isContractCallAndMintApproved", commandId, sourceChain, sourceAddress, contractAddress, payloadHash, symbol, amount)
}

// ExecutableContract binds a destination contract implementing IAxelarExecutable.
type ExecutableContract struct {
	contract *bind.BoundContract
}

func NewExecutableContract(address common.Address, backend bind.ContractBackend) *ExecutableContract {
	return &ExecutableContract{
		contract: bind.NewBoundContract(address, executableAbi, backend, backend, backend),
	}
}

func (e *ExecutableContract) Execute(opts *bind.TransactOpts, commandId [32]byte, sourceChain string,
	sourceAddress string, payload []byte) (*ethtypes.Transaction, error) {
	return e.contract.Transact(opts, "execute", commandId, sourceChain, sourceAddress, payload)
}

func (e *ExecutableContract) ExecuteWithToken(opts *bind.TransactOpts, commandId [32]byte, sourceChain string,
	sourceAddress string, payload []byte, tokenSymbol string, amount *big.Int) (*ethtypes.Transaction, error) {
	return e.contract.Transact(opts, "executeWithToken", commandId, sourceChain, sourceAddress, payload, tokenSymbol, amount)
}
