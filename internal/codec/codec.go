package codec

import (
	"sync"

	axelarnettypes "github.com/axelarnetwork/axelar-core/x/axelarnet/types"
	evmtypes "github.com/axelarnetwork/axelar-core/x/evm/types"
	"github.com/cosmos/cosmos-sdk/client"
	"github.com/cosmos/cosmos-sdk/codec"
	codectypes "github.com/cosmos/cosmos-sdk/codec/types"
	"github.com/cosmos/cosmos-sdk/std"
	sdk "github.com/cosmos/cosmos-sdk/types"
	authtx "github.com/cosmos/cosmos-sdk/x/auth/tx"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
	banktypes "github.com/cosmos/cosmos-sdk/x/bank/types"
)

const (
	AccountAddressPrefix = "axelar"
)

var (
	once              sync.Once
	interfaceRegistry codectypes.InterfaceRegistry
	protoCodec        *codec.ProtoCodec
	txConfig          client.TxConfig
)

func initCodec() {
	interfaceRegistry = codectypes.NewInterfaceRegistry()
	std.RegisterInterfaces(interfaceRegistry)
	authtypes.RegisterInterfaces(interfaceRegistry)
	banktypes.RegisterInterfaces(interfaceRegistry)
	evmtypes.RegisterInterfaces(interfaceRegistry)
	axelarnettypes.RegisterInterfaces(interfaceRegistry)
	protoCodec = codec.NewProtoCodec(interfaceRegistry)
	txConfig = authtx.NewTxConfig(protoCodec, authtx.DefaultSignModes)

	sdkConfig := sdk.GetConfig()
	sdkConfig.SetBech32PrefixForAccount(AccountAddressPrefix, AccountAddressPrefix+sdk.PrefixPublic)
	sdkConfig.SetBech32PrefixForValidator(AccountAddressPrefix+sdk.PrefixValidator+sdk.PrefixOperator,
		AccountAddressPrefix+sdk.PrefixValidator+sdk.PrefixOperator+sdk.PrefixPublic)
	sdkConfig.SetBech32PrefixForConsensusNode(AccountAddressPrefix+sdk.PrefixValidator+sdk.PrefixConsensus,
		AccountAddressPrefix+sdk.PrefixValidator+sdk.PrefixConsensus+sdk.PrefixPublic)
}

func GetInterfaceRegistry() codectypes.InterfaceRegistry {
	once.Do(initCodec)
	return interfaceRegistry
}

func GetProtoCodec() *codec.ProtoCodec {
	once.Do(initCodec)
	return protoCodec
}

func GetTxConfig() client.TxConfig {
	once.Do(initCodec)
	return txConfig
}
