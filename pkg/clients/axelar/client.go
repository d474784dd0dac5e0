package axelar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	evmtypes "github.com/axelarnetwork/axelar-core/x/evm/types"
	axelarnettypes "github.com/axelarnetwork/axelar-core/x/axelarnet/types"
	nexus "github.com/axelarnetwork/axelar-core/x/nexus/exported"
	sdk "github.com/cosmos/cosmos-sdk/types"
	banktypes "github.com/cosmos/cosmos-sdk/x/bank/types"
	ibctransfertypes "github.com/cosmos/ibc-go/v4/modules/apps/transfer/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog/log"
	"github.com/scalarorg/cosmos-gmp-relayer/config"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/metrics"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const DEFAULT_IBC_PORT = "transfer"

var (
	ErrAlreadyExecuted   = errors.New("message already executed")
	ErrBatchNotSigned    = errors.New("command batch not signed")
	ErrEventNotConfirmed = errors.New("event not confirmed")
)

// TxBroadcaster signs and broadcasts hub messages. *SigningClient implements it.
type TxBroadcaster interface {
	SignAndBroadcast(ctx context.Context, msgs ...sdk.Msg) (*sdk.TxResponse, error)
	GetAddress() sdk.AccAddress
}

type AxelarClient struct {
	config    *config.AxelarConfig
	signer    TxBroadcaster
	evmQuery  evmtypes.QueryServiceClient
	bankQuery banktypes.QueryClient
	grpcConn  *grpc.ClientConn
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewAxelarClient(axelarConfig *config.AxelarConfig) (*AxelarClient, error) {
	signer, err := NewSigningClient(axelarConfig)
	if err != nil {
		return nil, err
	}
	clientCtx := signer.GetClientCtx()
	client := NewAxelarClientWithQueries(axelarConfig, signer,
		evmtypes.NewQueryServiceClient(clientCtx), banktypes.NewQueryClient(clientCtx))
	if axelarConfig.GrpcUrl != "" {
		log.Info().Msgf("[AxelarClient] create grpc client to address: %s", axelarConfig.GrpcUrl)
		grpcConn, err := grpc.Dial(axelarConfig.GrpcUrl, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("failed to create gRPC client: %w", err)
		}
		client.grpcConn = grpcConn
		client.bankQuery = banktypes.NewQueryClient(grpcConn)
	}
	return client, nil
}

func NewAxelarClientWithQueries(axelarConfig *config.AxelarConfig, signer TxBroadcaster,
	evmQuery evmtypes.QueryServiceClient, bankQuery banktypes.QueryClient) *AxelarClient {
	return &AxelarClient{
		config:    axelarConfig,
		signer:    signer,
		evmQuery:  evmQuery,
		bankQuery: bankQuery,
		sleep:     sleepContext,
	}
}

func (c *AxelarClient) ChainId() string {
	return c.config.ChainID
}

func (c *AxelarClient) GetAddress() sdk.AccAddress {
	return c.signer.GetAddress()
}

func (c *AxelarClient) Close() error {
	if c.grpcConn != nil {
		return c.grpcConn.Close()
	}
	return nil
}

// ConfirmEvmTx asks the hub validators to attest the gateway logs of txHash on chain.
func (c *AxelarClient) ConfirmEvmTx(ctx context.Context, chain string, txHash string) (*sdk.TxResponse, error) {
	nexusChain := nexus.ChainName(chain)
	txID := evmtypes.Hash(common.HexToHash(txHash))
	msg := evmtypes.NewConfirmGatewayTxsRequest(c.signer.GetAddress(), nexusChain, []evmtypes.Hash{txID})
	log.Debug().Str("chain", chain).Str("txHash", txHash).Msg("[AxelarClient] [ConfirmEvmTx] broadcast confirm gateway tx")
	res, err := c.signer.SignAndBroadcast(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("confirm gateway tx %s on %s: %w", txHash, chain, err)
	}
	log.Info().Str("txHash", res.TxHash).Msgf("[AxelarClient] [ConfirmEvmTx] confirmed %s", txHash)
	return res, nil
}

// RouteMessage hands the payload of message id to the hub router. A message the hub already
// executed is reported with ErrAlreadyExecuted.
func (c *AxelarClient) RouteMessage(ctx context.Context, id string, payload string) (*sdk.TxResponse, error) {
	payloadBytes, err := hexutil.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid payload for %s: %w", id, err)
	}
	msg := axelarnettypes.NewRouteMessage(c.signer.GetAddress(), nil, id, payloadBytes)
	res, err := c.signer.SignAndBroadcast(ctx, msg)
	if err != nil {
		if strings.Contains(err.Error(), "already executed") {
			log.Info().Str("id", id).Msg("[AxelarClient] [RouteMessage] message already executed")
			return res, fmt.Errorf("%w: %s", ErrAlreadyExecuted, id)
		}
		return nil, fmt.Errorf("route message %s: %w", id, err)
	}
	log.Info().Str("id", id).Str("txHash", res.TxHash).Msg("[AxelarClient] [RouteMessage] routed")
	return res, nil
}

func (c *AxelarClient) GetPendingCommands(ctx context.Context, chain string) ([]evmtypes.QueryCommandResponse, error) {
	res, err := c.evmQuery.PendingCommands(ctx, &evmtypes.PendingCommandsRequest{Chain: chain})
	if err != nil {
		return nil, fmt.Errorf("query pending commands for %s: %w", chain, err)
	}
	return res.Commands, nil
}

func (c *AxelarClient) SignCommands(ctx context.Context, chain string) (*sdk.TxResponse, error) {
	msg := evmtypes.NewSignCommandsRequest(c.signer.GetAddress(), nexus.ChainName(chain))
	res, err := c.signer.SignAndBroadcast(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("sign commands for %s: %w", chain, err)
	}
	return res, nil
}

// GetExecuteDataFromBatchCommands polls the batch every BatchPollInterval until it is signed
// and returns its 0x prefixed execute data. It gives up with ErrBatchNotSigned after BatchPollMax queries.
func (c *AxelarClient) GetExecuteDataFromBatchCommands(ctx context.Context, chain string, batchedCommandId string) (string, error) {
	req := &evmtypes.BatchedCommandsRequest{Chain: chain, Id: batchedCommandId}
	var lastStatus evmtypes.BatchedCommandsStatus
	for attempt := 0; attempt < c.config.BatchPollMax; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.config.GetBatchPollInterval()); err != nil {
				return "", err
			}
		}
		metrics.BatchPollAttempts.WithLabelValues(chain).Inc()
		res, err := c.evmQuery.BatchedCommands(ctx, req)
		if err != nil {
			log.Warn().Err(err).Str("batchId", batchedCommandId).Msg("[AxelarClient] [GetExecuteDataFromBatchCommands] query failed")
			continue
		}
		lastStatus = res.Status
		if res.Status == evmtypes.BatchSigned {
			return "0x" + strings.TrimPrefix(res.ExecuteData, "0x"), nil
		}
		if res.Status == evmtypes.BatchAborted {
			return "", fmt.Errorf("%w: batch %s aborted", ErrBatchNotSigned, batchedCommandId)
		}
	}
	return "", fmt.Errorf("%w: batch %s still %s after %d queries", ErrBatchNotSigned, batchedCommandId,
		lastStatus.String(), c.config.BatchPollMax)
}

// PollUntilEventConfirmed waits until the hub confirmed the gateway event, at most ConfirmPollMax queries.
func (c *AxelarClient) PollUntilEventConfirmed(ctx context.Context, chain string, eventId string) error {
	req := &evmtypes.EventRequest{Chain: chain, EventId: eventId}
	for attempt := 0; attempt < c.config.ConfirmPollMax; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.config.GetConfirmPollInterval()); err != nil {
				return err
			}
		}
		res, err := c.evmQuery.Event(ctx, req)
		if err != nil || res.Event == nil {
			log.Debug().Err(err).Str("eventId", eventId).Msg("[AxelarClient] [PollUntilEventConfirmed] event not found yet")
			continue
		}
		switch res.Event.Status {
		case evmtypes.EventConfirmed, evmtypes.EventCompleted:
			return nil
		case evmtypes.EventFailed:
			return fmt.Errorf("%w: event %s failed on the hub", ErrEventNotConfirmed, eventId)
		}
	}
	return fmt.Errorf("%w: event %s after %d queries", ErrEventNotConfirmed, eventId, c.config.ConfirmPollMax)
}

func (c *AxelarClient) GetBalance(ctx context.Context, address string, denom string) (*sdk.Coin, error) {
	if denom == "" {
		denom = c.config.Denom
	}
	res, err := c.bankQuery.Balance(ctx, &banktypes.QueryBalanceRequest{Address: address, Denom: denom})
	if err != nil {
		return nil, fmt.Errorf("query balance of %s: %w", address, err)
	}
	return res.Balance, nil
}

// CalculateTokenIBCPath returns the ibc/<HASH> denom of a token received over port/channel.
func CalculateTokenIBCPath(port string, channel string, denom string) string {
	if port == "" {
		port = DEFAULT_IBC_PORT
	}
	trace := ibctransfertypes.ParseDenomTrace(ibctransfertypes.GetPrefixedDenom(port, channel, denom))
	return trace.IBCDenom()
}
