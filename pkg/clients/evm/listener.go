package evm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/rs/zerolog/log"
	"github.com/scalarorg/cosmos-gmp-relayer/config"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/events"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/metrics"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/types"
)

const DEFAULT_FINALITY_POLL_INTERVAL = 3 * time.Second

var (
	ErrSubscriptionClosed = errors.New("evm log subscription closed")
	ErrSubscriptionLost   = errors.New("evm log subscription lost")
)

// ReceiptReader is the part of the chain client the listener needs besides the log subscription.
type ReceiptReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
}

type EvmListener struct {
	chainId        string
	finalityBlocks uint64
	acceptedChains []string
	reader         ReceiptReader
	gateway        *GatewayContract
	pollInterval   time.Duration
	maxRetries     int
	retryDelay     time.Duration
	sleep          func(ctx context.Context, d time.Duration) error
	errors         chan error
	mutex          sync.Mutex
	subscriptions  map[string]context.CancelFunc
}

func NewEvmListener(chainId string, finalityBlocks int, reader ReceiptReader, gateway *GatewayContract, acceptedChains []string) *EvmListener {
	if finalityBlocks <= 0 {
		finalityBlocks = 1
	}
	return &EvmListener{
		chainId:        chainId,
		finalityBlocks: uint64(finalityBlocks),
		acceptedChains: acceptedChains,
		reader:         reader,
		gateway:        gateway,
		pollInterval:   DEFAULT_FINALITY_POLL_INTERVAL,
		maxRetries:     config.DEFAULT_EVM_MAX_RETRIES,
		retryDelay:     config.DEFAULT_EVM_RETRY_DELAY * time.Millisecond,
		sleep:          sleepContext,
		errors:         make(chan error, 1),
		subscriptions:  make(map[string]context.CancelFunc),
	}
}

func (l *EvmListener) ChainId() string {
	return l.chainId
}

// Errors reports a subscription that could not be restored.
func (l *EvmListener) Errors() <-chan error {
	return l.errors
}

func (l *EvmListener) reportError(err error) {
	select {
	case l.errors <- err:
	default:
		log.Error().Err(err).Str("chain", l.chainId).Msg("[EvmListener] error already reported, dropped")
	}
}

// Listen subscribes to the gateway logs of spec and publishes every accepted event on subject.
// Listening again to the same event replaces the previous subscription.
// Logs at or below the block height seen at subscription time are ignored.
// A failed subscription is restored up to maxRetries times and the missed blocks are read back.
func Listen[T any](ctx context.Context, l *EvmListener, spec EventSpec[T], subject *events.Subject[*types.EvmEvent[T]]) error {
	currentBlock, err := l.reader.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current block number: %w", err)
	}
	subCtx, cancel := context.WithCancel(ctx)
	logs, sub, err := l.gateway.WatchLogs(&bind.WatchOpts{Context: subCtx}, spec.Name)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to watch %s logs: %w", spec.Name, err)
	}
	l.replaceSubscription(spec.Name, cancel)
	log.Info().Str("chain", l.chainId).Str("event", spec.Name).Uint64("fromBlock", currentBlock).
		Str("topic", spec.Topic()).
		Msgf("[EvmListener] [Listen] subscribed to gateway %s", l.gateway.Address.Hex())

	go func() {
		defer cancel()
		lastBlock := currentBlock
		for {
			err := consumeLogs(subCtx, l, spec, currentBlock, &lastBlock, logs, sub, subject)
			sub.Unsubscribe()
			if subCtx.Err() != nil {
				return
			}
			log.Warn().Err(err).Str("chain", l.chainId).Str("event", spec.Name).Uint64("lastBlock", lastBlock).
				Msg("[EvmListener] [Listen] subscription failed, resubscribing")
			logs, sub, err = l.resubscribe(subCtx, spec.Name, err)
			if err != nil {
				if subCtx.Err() == nil {
					l.reportError(err)
				}
				return
			}
			backfill(subCtx, l, spec, currentBlock, &lastBlock, subject)
		}
	}()
	return nil
}

// consumeLogs publishes the logs of one subscription until it fails or ctx is done.
func consumeLogs[T any](ctx context.Context, l *EvmListener, spec EventSpec[T], startBlock uint64, lastBlock *uint64,
	logs <-chan ethtypes.Log, sub event.Subscription, subject *events.Subject[*types.EvmEvent[T]]) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-sub.Err():
			if !ok || err == nil {
				return ErrSubscriptionClosed
			}
			return err
		case raw := <-logs:
			publishLog(ctx, l, spec, startBlock, lastBlock, raw, subject)
		}
	}
}

func publishLog[T any](ctx context.Context, l *EvmListener, spec EventSpec[T], startBlock uint64, lastBlock *uint64,
	raw ethtypes.Log, subject *events.Subject[*types.EvmEvent[T]]) {
	if raw.BlockNumber > *lastBlock {
		*lastBlock = raw.BlockNumber
	}
	evmEvent, err := ProcessLog(ctx, l, spec, startBlock, raw)
	if err != nil {
		log.Error().Err(err).Str("chain", l.chainId).Str("event", spec.Name).
			Str("txHash", raw.TxHash.Hex()).Msg("[EvmListener] [Listen] failed to parse log, dropped")
		metrics.EventParseErrors.WithLabelValues(l.chainId, spec.Name).Inc()
		return
	}
	if evmEvent == nil {
		return
	}
	log.Debug().Str("chain", l.chainId).Str("event", spec.Name).Str("txHash", evmEvent.Hash).
		Uint("logIndex", evmEvent.LogIndex).Msg("[EvmListener] [Listen] event received")
	metrics.EventsReceived.WithLabelValues(l.chainId, spec.Name).Inc()
	subject.Publish(evmEvent)
}

// resubscribe watches the event again, waiting retryDelay before each of at most maxRetries attempts.
func (l *EvmListener) resubscribe(ctx context.Context, name string, cause error) (chan ethtypes.Log, event.Subscription, error) {
	lastErr := cause
	for attempt := 1; attempt <= l.maxRetries; attempt++ {
		metrics.ListenerReconnects.WithLabelValues(l.chainId + "/" + name).Inc()
		if err := l.sleep(ctx, l.retryDelay); err != nil {
			return nil, nil, err
		}
		logs, sub, err := l.gateway.WatchLogs(&bind.WatchOpts{Context: ctx}, name)
		if err == nil {
			log.Info().Str("chain", l.chainId).Str("event", name).Int("attempt", attempt).
				Msg("[EvmListener] [resubscribe] subscription restored")
			return logs, sub, nil
		}
		lastErr = err
		log.Warn().Err(err).Str("chain", l.chainId).Str("event", name).Int("attempt", attempt).
			Msg("[EvmListener] [resubscribe] failed to resubscribe")
	}
	return nil, nil, fmt.Errorf("%s on %s after %d attempts: %w: %v", name, l.chainId, l.maxRetries, ErrSubscriptionLost, lastErr)
}

// backfill publishes the logs emitted from the last seen block up to the current head.
// Logs of the last seen block may be published twice, relay data creation is idempotent.
func backfill[T any](ctx context.Context, l *EvmListener, spec EventSpec[T], startBlock uint64, lastBlock *uint64,
	subject *events.Subject[*types.EvmEvent[T]]) {
	head, err := l.reader.BlockNumber(ctx)
	if err != nil {
		log.Warn().Err(err).Str("chain", l.chainId).Str("event", spec.Name).Msg("[EvmListener] [backfill] failed to get head")
		return
	}
	from := *lastBlock
	if head < from {
		return
	}
	missed, err := l.gateway.FilterLogs(ctx, spec.Name, from, head)
	if err != nil {
		log.Warn().Err(err).Str("chain", l.chainId).Str("event", spec.Name).Uint64("from", from).Uint64("to", head).
			Msg("[EvmListener] [backfill] failed to read missed logs")
		return
	}
	log.Info().Str("chain", l.chainId).Str("event", spec.Name).Uint64("from", from).Uint64("to", head).
		Int("logs", len(missed)).Msg("[EvmListener] [backfill] missed logs read back")
	for _, raw := range missed {
		publishLog(ctx, l, spec, startBlock, lastBlock, raw, subject)
	}
}

func (l *EvmListener) replaceSubscription(name string, cancel context.CancelFunc) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if previous, ok := l.subscriptions[name]; ok {
		previous()
	}
	l.subscriptions[name] = cancel
}

// Stop cancels every subscription of the listener.
func (l *EvmListener) Stop() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	for name, cancel := range l.subscriptions {
		cancel()
		delete(l.subscriptions, name)
	}
}

// ProcessLog turns a raw gateway log into an event. It returns nil when the log is skipped.
func ProcessLog[T any](ctx context.Context, l *EvmListener, spec EventSpec[T], startBlock uint64, raw ethtypes.Log) (*types.EvmEvent[T], error) {
	if raw.Removed || raw.BlockNumber <= startBlock {
		return nil, nil
	}
	args, err := spec.Parse(l.gateway, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", spec.Name, err)
	}
	if !spec.Accepts(l.acceptedChains, args) {
		log.Debug().Str("chain", l.chainId).Str("event", spec.Name).Str("txHash", raw.TxHash.Hex()).
			Msg("[EvmListener] event is not for an observed chain, skipped")
		return nil, nil
	}
	logIndex, err := l.receiptLogPosition(ctx, raw)
	if err != nil {
		return nil, err
	}
	sourceChain, destinationChain := spec.Chains(l.chainId, args)
	txHash := raw.TxHash
	return &types.EvmEvent[T]{
		Hash:             txHash.Hex(),
		BlockNumber:      raw.BlockNumber,
		LogIndex:         logIndex,
		SourceChain:      sourceChain,
		DestinationChain: destinationChain,
		WaitForFinality: func(ctx context.Context) error {
			return l.WaitForFinality(ctx, txHash)
		},
		Args: args,
	}, nil
}

// receiptLogPosition returns the position of the log among the logs of its transaction.
func (l *EvmListener) receiptLogPosition(ctx context.Context, raw ethtypes.Log) (uint, error) {
	receipt, err := l.reader.TransactionReceipt(ctx, raw.TxHash)
	if err != nil {
		return 0, fmt.Errorf("failed to get transaction receipt %s: %w", raw.TxHash.Hex(), err)
	}
	for i, receiptLog := range receipt.Logs {
		if receiptLog.Index == raw.Index {
			return uint(i), nil
		}
	}
	return 0, fmt.Errorf("log %d not found in receipt of %s", raw.Index, raw.TxHash.Hex())
}

// WaitForFinality blocks until the transaction has finalityBlocks confirmations.
func (l *EvmListener) WaitForFinality(ctx context.Context, txHash common.Hash) error {
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()
	for {
		receipt, err := l.reader.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil && receipt.BlockNumber != nil {
			current, err := l.reader.BlockNumber(ctx)
			if err == nil && current+1 >= receipt.BlockNumber.Uint64()+l.finalityBlocks {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
