package handlers

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"time"

	evmtypes "github.com/axelarnetwork/axelar-core/x/evm/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/db"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/db/models"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/metrics"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const TRACER_NAME = "github.com/scalarorg/cosmos-gmp-relayer/pkg/handlers"

// errNoop marks a handler run that had nothing to do.
var errNoop = errors.New("nothing to do")

// Store is the persistence used by the handlers. *db.DatabaseAdapter implements it.
type Store interface {
	CreateEvmCallContractEvent(ctx context.Context, event *types.EvmEvent[*types.ContractCall]) (bool, error)
	CreateEvmCallContractWithTokenEvent(ctx context.Context, event *types.EvmEvent[*types.ContractCallWithToken]) (bool, error)
	CreateCosmosContractCallEvent(ctx context.Context, event *types.IBCEvent[types.ContractCallSubmitted]) (bool, error)
	CreateCosmosContractCallWithTokenEvent(ctx context.Context, event *types.IBCEvent[types.ContractCallWithTokenSubmitted]) (bool, error)
	FindRelayDataById(ctx context.Context, id string) (*models.RelayData, error)
	FindRelayDataByPacketSequence(ctx context.Context, sequence int) (*models.RelayData, error)
	FindCosmosToEvmCallContractApproved(ctx context.Context, event *types.EvmEvent[*types.ContractCallApproved]) ([]db.RelayDataPayload, error)
	FindCosmosToEvmCallContractWithTokenApproved(ctx context.Context, event *types.EvmEvent[*types.ContractCallApprovedWithMint]) ([]db.RelayDataPayload, error)
	UpdateEventStatus(ctx context.Context, id string, status types.Status) error
	UpdateRelayDataStatusWithPacketSequence(ctx context.Context, id string, status types.Status, sequence int) error
	UpdateRelayDataStatusWithExecuteHash(ctx context.Context, id string, status types.Status, executeHash string) error
	Reset() error
}

// HubClient is the hub chain access used by the handlers. *axelar.AxelarClient implements it.
type HubClient interface {
	ConfirmEvmTx(ctx context.Context, chain string, txHash string) (*sdk.TxResponse, error)
	PollUntilEventConfirmed(ctx context.Context, chain string, eventId string) error
	RouteMessage(ctx context.Context, id string, payload string) (*sdk.TxResponse, error)
	GetPendingCommands(ctx context.Context, chain string) ([]evmtypes.QueryCommandResponse, error)
	SignCommands(ctx context.Context, chain string) (*sdk.TxResponse, error)
	GetExecuteDataFromBatchCommands(ctx context.Context, chain string, batchedCommandId string) (string, error)
	GetBalance(ctx context.Context, address string, denom string) (*sdk.Coin, error)
}

// EvmExecutor submits transactions to one EVM chain. *evm.EvmClient implements it.
type EvmExecutor interface {
	ChainId() string
	IsCallContractApproved(ctx context.Context, commandId [32]byte, sourceChain string,
		sourceAddress string, contractAddress common.Address, payloadHash [32]byte) (bool, error)
	IsCallContractWithTokenApproved(ctx context.Context, commandId [32]byte, sourceChain string,
		sourceAddress string, contractAddress common.Address, payloadHash [32]byte, symbol string, amount *big.Int) (bool, error)
	GatewayExecute(ctx context.Context, executeData []byte) (*ethtypes.Receipt, error)
	Execute(ctx context.Context, contractAddress common.Address, commandId [32]byte,
		sourceChain string, sourceAddress string, payload []byte) (*ethtypes.Receipt, error)
	ExecuteWithToken(ctx context.Context, contractAddress common.Address, commandId [32]byte,
		sourceChain string, sourceAddress string, payload []byte, symbol string, amount *big.Int) (*ethtypes.Receipt, error)
}

type Options struct {
	IsDev         bool
	IsTestnetLive bool
	DevRecipient  string
}

// Handlers drives every relay message through its state machine.
type Handlers struct {
	store      Store
	hub        HubClient
	evmClients []EvmExecutor
	options    Options
	tracer     trace.Tracer
}

func NewHandlers(store Store, hub HubClient, evmClients []EvmExecutor, options Options) *Handlers {
	return &Handlers{
		store:      store,
		hub:        hub,
		evmClients: evmClients,
		options:    options,
		tracer:     otel.Tracer(TRACER_NAME),
	}
}

// HandleError logs a handler failure with its tag.
// A lost database connection resets the store so the next call reconnects.
func (h *Handlers) HandleError(tag string, err error) {
	if err == nil {
		return
	}
	if db.IsConnectionError(err) {
		log.Warn().Str("tag", tag).Msg("[Handlers] [HandleError] database connection lost, resetting client")
		if resetErr := h.store.Reset(); resetErr != nil {
			log.Error().Err(resetErr).Str("tag", tag).Msg("[Handlers] [HandleError] failed to reset database client")
		}
	}
	log.Error().Str("tag", tag).Err(err).Msg("[Handlers] [HandleError] error occurred")
}

// findEvmClient matches the chain case-insensitively against the configured chain ids.
func (h *Handlers) findEvmClient(chain string) EvmExecutor {
	for _, client := range h.evmClients {
		if strings.EqualFold(client.ChainId(), chain) {
			return client
		}
	}
	return nil
}

// track runs fn inside a span named after the handler and records its outcome.
func (h *Handlers) track(ctx context.Context, name string, fn func(ctx context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := h.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	defer span.End()
	start := time.Now()
	err := fn(ctx)
	metrics.HandlerLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	switch {
	case err == nil:
		metrics.HandlerOutcomes.WithLabelValues(name, metrics.OUTCOME_OK).Inc()
	case errors.Is(err, errNoop):
		metrics.HandlerOutcomes.WithLabelValues(name, metrics.OUTCOME_NOOP).Inc()
		span.SetAttributes(attribute.Bool("relay.noop", true))
		return nil
	default:
		metrics.HandlerOutcomes.WithLabelValues(name, metrics.OUTCOME_ERROR).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func relayAttrs(id string, chain string) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String("relay.id", id), attribute.String("chain", chain)}
}
