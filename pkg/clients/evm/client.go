package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog/log"
	"github.com/scalarorg/cosmos-gmp-relayer/config"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/metrics"
)

const COMPONENT_NAME = "EvmClient"

var (
	ErrSubmissionFailed    = errors.New("evm transaction submission failed")
	ErrTransactionReverted = errors.New("evm transaction reverted")
	ErrReceiptNotFound     = errors.New("evm transaction receipt not found")
)

// Backend is the chain access used by EvmClient. *ethclient.Client implements it.
type Backend interface {
	bind.ContractBackend
	ReceiptReader
}

type EvmClient struct {
	config     *config.EvmNetworkConfig
	backend    Backend
	Gateway    *GatewayContract
	privateKey *ecdsa.PrivateKey
	auth       *bind.TransactOpts
	chainID    *big.Int
	maxRetries int
	retryDelay time.Duration
	pollPeriod time.Duration
	pollMax    int
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewEvmClients(configs []config.EvmNetworkConfig) ([]*EvmClient, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("no EVM networks configured")
	}
	clients := make([]*EvmClient, 0, len(configs))
	for i := range configs {
		client, err := NewEvmClient(&configs[i])
		if err != nil {
			log.Warn().Err(err).Msgf("[EvmClient] [NewEvmClients] failed to create evm client for %s", configs[i].ID)
			continue
		}
		clients = append(clients, client)
	}
	if len(clients) == 0 {
		return nil, fmt.Errorf("no EVM client could be created")
	}
	return clients, nil
}

func NewEvmClient(evmConfig *config.EvmNetworkConfig) (*EvmClient, error) {
	log.Info().Str("id", evmConfig.ID).Uint64("chainId", evmConfig.ChainID).
		Msg("[EvmClient] [NewEvmClient] connecting to EVM network")
	client, err := ethclient.Dial(evmConfig.RPCUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to EVM network %s: %w", evmConfig.Name, err)
	}
	return NewEvmClientWithBackend(evmConfig, client)
}

func NewEvmClientWithBackend(evmConfig *config.EvmNetworkConfig, backend Backend) (*EvmClient, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(evmConfig.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key for network %s: %w", evmConfig.Name, err)
	}
	chainID := new(big.Int).SetUint64(evmConfig.ChainID)
	auth, err := bind.NewKeyedTransactorWithChainID(privateKey, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth for network %s: %w", evmConfig.Name, err)
	}
	pollPeriod := evmConfig.GetReceiptPollInterval()
	if pollPeriod <= 0 {
		pollPeriod = config.DEFAULT_RECEIPT_POLL * time.Millisecond
	}
	pollMax := evmConfig.ReceiptPollMax
	if pollMax <= 0 {
		pollMax = config.DEFAULT_RECEIPT_POLL_MAX
	}
	gatewayAddress := common.HexToAddress(evmConfig.Gateway)
	if gatewayAddress == (common.Address{}) {
		return nil, fmt.Errorf("invalid gateway address for network %s", evmConfig.Name)
	}
	return &EvmClient{
		config:     evmConfig,
		backend:    backend,
		Gateway:    NewGatewayContract(gatewayAddress, backend),
		privateKey: privateKey,
		auth:       auth,
		chainID:    chainID,
		maxRetries: evmConfig.MaxRetries,
		retryDelay: evmConfig.GetRetryDelay(),
		pollPeriod: pollPeriod,
		pollMax:    pollMax,
		sleep:      sleepContext,
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ChainId is the relayer chain identifier, not the numeric EVM chain id.
func (c *EvmClient) ChainId() string {
	return c.config.ID
}

func (c *EvmClient) GetSenderAddress() common.Address {
	return c.auth.From
}

// NewListener creates a gateway listener accepting events for the given cosmos chains.
func (c *EvmClient) NewListener(acceptedChains []string) *EvmListener {
	listener := NewEvmListener(c.config.ID, c.config.Finality, c.backend, c.Gateway, acceptedChains)
	listener.maxRetries = c.maxRetries
	listener.retryDelay = c.retryDelay
	return listener
}

func (c *EvmClient) IsExecuted(ctx context.Context, commandId [32]byte) (bool, error) {
	return c.Gateway.IsCommandExecuted(&bind.CallOpts{Context: ctx}, commandId)
}

func (c *EvmClient) IsCallContractApproved(ctx context.Context, commandId [32]byte, sourceChain string,
	sourceAddress string, contractAddress common.Address, payloadHash [32]byte) (bool, error) {
	return c.Gateway.IsContractCallApproved(&bind.CallOpts{Context: ctx}, commandId, sourceChain, sourceAddress,
		contractAddress, payloadHash)
}

func (c *EvmClient) IsCallContractWithTokenApproved(ctx context.Context, commandId [32]byte, sourceChain string,
	sourceAddress string, contractAddress common.Address, payloadHash [32]byte, symbol string, amount *big.Int) (bool, error) {
	return c.Gateway.IsContractCallAndMintApproved(&bind.CallOpts{Context: ctx}, commandId, sourceChain, sourceAddress,
		contractAddress, payloadHash, symbol, amount)
}

// GatewayExecute submits the signed batch execute data to the gateway and waits for the receipt.
func (c *EvmClient) GatewayExecute(ctx context.Context, executeData []byte) (*ethtypes.Receipt, error) {
	tx, err := c.submitWithRetry(ctx, "GatewayExecute", func() (*ethtypes.Transaction, error) {
		return c.sendRawTransaction(ctx, c.Gateway.Address, executeData)
	})
	if err != nil {
		return nil, err
	}
	return c.WaitForReceipt(ctx, tx.Hash())
}

func (c *EvmClient) sendRawTransaction(ctx context.Context, to common.Address, data []byte) (*ethtypes.Transaction, error) {
	nonce, err := c.backend.PendingNonceAt(ctx, c.auth.From)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      c.config.GasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	log.Debug().Msgf("[EvmClient] [sendRawTransaction] to: %s, gasLimit: %d, gasPrice: %s",
		to.Hex(), tx.Gas(), gasPrice.String())
	signedTx, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(c.chainID), c.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err = c.backend.SendTransaction(ctx, signedTx); err != nil {
		return nil, err
	}
	return signedTx, nil
}

func (c *EvmClient) transactOpts(ctx context.Context) *bind.TransactOpts {
	opts := *c.auth
	opts.Context = ctx
	return &opts
}

// Execute calls execute on the destination contract and waits for a successful receipt.
func (c *EvmClient) Execute(ctx context.Context, contractAddress common.Address, commandId [32]byte,
	sourceChain string, sourceAddress string, payload []byte) (*ethtypes.Receipt, error) {
	executable := NewExecutableContract(contractAddress, c.backend)
	tx, err := c.submitWithRetry(ctx, "Execute", func() (*ethtypes.Transaction, error) {
		return executable.Execute(c.transactOpts(ctx), commandId, sourceChain, sourceAddress, payload)
	})
	if err != nil {
		return nil, err
	}
	return c.WaitForReceipt(ctx, tx.Hash())
}

func (c *EvmClient) ExecuteWithToken(ctx context.Context, contractAddress common.Address, commandId [32]byte,
	sourceChain string, sourceAddress string, payload []byte, symbol string, amount *big.Int) (*ethtypes.Receipt, error) {
	executable := NewExecutableContract(contractAddress, c.backend)
	tx, err := c.submitWithRetry(ctx, "ExecuteWithToken", func() (*ethtypes.Transaction, error) {
		return executable.ExecuteWithToken(c.transactOpts(ctx), commandId, sourceChain, sourceAddress, payload, symbol, amount)
	})
	if err != nil {
		return nil, err
	}
	return c.WaitForReceipt(ctx, tx.Hash())
}

// submitWithRetry tries send once plus maxRetries times, with retryDelay between attempts.
func (c *EvmClient) submitWithRetry(ctx context.Context, method string, send func() (*ethtypes.Transaction, error)) (*ethtypes.Transaction, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			log.Warn().Err(lastErr).Str("chain", c.config.ID).Int("attempt", attempt).
				Msgf("[EvmClient] [%s] retrying submission", method)
			if err := c.sleep(ctx, c.retryDelay); err != nil {
				return nil, err
			}
		}
		tx, err := send()
		if err == nil {
			log.Info().Str("chain", c.config.ID).Str("txHash", tx.Hash().Hex()).
				Msgf("[EvmClient] [%s] transaction submitted", method)
			metrics.EvmSubmissions.WithLabelValues(c.config.ID, method, metrics.OUTCOME_OK).Inc()
			return tx, nil
		}
		lastErr = err
	}
	metrics.EvmSubmissions.WithLabelValues(c.config.ID, method, metrics.OUTCOME_ERROR).Inc()
	return nil, fmt.Errorf("%s on %s after %d attempts: %w: %v", method, c.config.ID, c.maxRetries+1, ErrSubmissionFailed, lastErr)
}

// WaitForReceipt polls until the transaction is mined, at most pollMax times.
// A reverted transaction is an error.
func (c *EvmClient) WaitForReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	var lastErr error
	for attempt := 1; ; attempt++ {
		receipt, err := c.backend.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			if receipt.Status != ethtypes.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("%s: %w", txHash.Hex(), ErrTransactionReverted)
			}
			return receipt, nil
		}
		lastErr = err
		if attempt >= c.pollMax {
			break
		}
		if err := c.sleep(ctx, c.pollPeriod); err != nil {
			return nil, err
		}
	}
	log.Warn().Err(lastErr).Str("chain", c.config.ID).Str("txHash", txHash.Hex()).Int("attempts", c.pollMax).
		Msg("[EvmClient] [WaitForReceipt] giving up on receipt")
	return nil, fmt.Errorf("%s after %d attempts: %w", txHash.Hex(), c.pollMax, ErrReceiptNotFound)
}
