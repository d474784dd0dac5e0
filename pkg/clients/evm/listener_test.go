package evm

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/events"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	blockNumber uint64
	receipts    map[common.Hash]*ethtypes.Receipt
}

func (r *fakeReader) BlockNumber(ctx context.Context) (uint64, error) {
	return r.blockNumber, nil
}

func (r *fakeReader) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	receipt, ok := r.receipts[txHash]
	if !ok {
		return nil, errors.New("not found")
	}
	return receipt, nil
}

var (
	gatewayAddress = common.HexToAddress("0x00000000000000000000000000000000000000ff")
	sender         = common.HexToAddress("0x000000000000000000000000000000000000000a")
	txHash         = common.HexToHash("0x4a21de48f14ae787a11cce77f6232fe52308590791829b54ecc2f82f36a2468f")
	payloadHash    = common.HexToHash("0xaa00000000000000000000000000000000000000000000000000000000000000")
)

func contractCallWithTokenLog(t *testing.T, destinationChain string, blockNumber uint64, index uint) ethtypes.Log {
	event := gatewayAbi.Events[EVENT_CONTRACT_CALL_WITH_TOKEN]
	data, err := event.Inputs.NonIndexed().Pack(destinationChain, "osmo1contract", []byte{0x12, 0x34}, "aUSDC", big.NewInt(100))
	require.NoError(t, err)
	return ethtypes.Log{
		Address:     gatewayAddress,
		Topics:      []common.Hash{event.ID, common.BytesToHash(sender.Bytes()), payloadHash},
		Data:        data,
		BlockNumber: blockNumber,
		TxHash:      txHash,
		Index:       index,
	}
}

func newTestListener(reader *fakeReader, accepted []string) *EvmListener {
	return NewEvmListener("ethereum-sepolia", 2, reader, NewGatewayContract(gatewayAddress, nil), accepted)
}

func TestProcessLogResolvesReceiptPosition(t *testing.T) {
	reader := &fakeReader{
		blockNumber: 10,
		receipts: map[common.Hash]*ethtypes.Receipt{
			txHash: {Logs: []*ethtypes.Log{{Index: 5}, {Index: 6}, {Index: 7}}},
		},
	}
	listener := newTestListener(reader, []string{"osmosis-5"})
	raw := contractCallWithTokenLog(t, "Osmosis-5", 11, 7)

	event, err := ProcessLog(context.Background(), listener, EvmContractCallWithTokenEvent, 10, raw)
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, txHash.Hex(), event.Hash)
	assert.Equal(t, uint(2), event.LogIndex)
	assert.Equal(t, uint64(11), event.BlockNumber)
	assert.Equal(t, "ethereum-sepolia", event.SourceChain)
	assert.Equal(t, "Osmosis-5", event.DestinationChain)
	assert.Equal(t, sender, event.Args.Sender)
	assert.Equal(t, [32]byte(payloadHash), event.Args.PayloadHash)
	assert.Equal(t, []byte{0x12, 0x34}, event.Args.Payload)
	assert.Equal(t, "aUSDC", event.Args.Symbol)
	assert.Equal(t, int64(100), event.Args.Amount.Int64())
}

func TestProcessLogSkipsOldAndForeignEvents(t *testing.T) {
	reader := &fakeReader{
		blockNumber: 10,
		receipts: map[common.Hash]*ethtypes.Receipt{
			txHash: {Logs: []*ethtypes.Log{{Index: 0}}},
		},
	}
	listener := newTestListener(reader, []string{"osmosis-5"})

	event, err := ProcessLog(context.Background(), listener, EvmContractCallWithTokenEvent, 10, contractCallWithTokenLog(t, "osmosis-5", 10, 0))
	require.NoError(t, err)
	assert.Nil(t, event, "logs at the subscription height are ignored")

	event, err = ProcessLog(context.Background(), listener, EvmContractCallWithTokenEvent, 10, contractCallWithTokenLog(t, "juno-1", 12, 0))
	require.NoError(t, err)
	assert.Nil(t, event, "destination chain is not served")
}

func TestProcessLogRejectsMalformedLog(t *testing.T) {
	reader := &fakeReader{blockNumber: 1, receipts: map[common.Hash]*ethtypes.Receipt{}}
	listener := newTestListener(reader, nil)
	raw := contractCallWithTokenLog(t, "osmosis-5", 5, 0)
	raw.Data = raw.Data[:10]

	_, err := ProcessLog(context.Background(), listener, EvmContractCallWithTokenEvent, 1, raw)
	require.Error(t, err)
}

func TestWaitForFinality(t *testing.T) {
	reader := &fakeReader{
		blockNumber: 11,
		receipts: map[common.Hash]*ethtypes.Receipt{
			txHash: {BlockNumber: big.NewInt(10)},
		},
	}
	listener := newTestListener(reader, nil)
	listener.pollInterval = time.Millisecond
	require.NoError(t, listener.WaitForFinality(context.Background(), txHash))

	reader.blockNumber = 10
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, listener.WaitForFinality(ctx, txHash), context.DeadlineExceeded)
}

func TestEventSpecTopics(t *testing.T) {
	assert.Equal(t, gatewayAbi.Events[EVENT_CONTRACT_CALL_APPROVED].ID.Hex(), EvmContractCallApprovedEvent.Topic())
	source, destination := EvmContractCallApprovedEvent.Chains("avalanche", &types.ContractCallApproved{SourceChain: "osmosis-5"})
	assert.Equal(t, "osmosis-5", source)
	assert.Equal(t, "avalanche", destination)
}

type fakeLogSub struct {
	err          chan error
	once         sync.Once
	unsubscribed chan struct{}
}

func (s *fakeLogSub) Err() <-chan error {
	return s.err
}

func (s *fakeLogSub) Unsubscribe() {
	s.once.Do(func() { close(s.unsubscribed) })
}

type watchedLogs struct {
	ctx  context.Context
	logs chan<- ethtypes.Log
	sub  *fakeLogSub
}

// fakeFilterer hands every log subscription to the test through watches.
type fakeFilterer struct {
	bind.ContractBackend
	mutex         sync.Mutex
	subscribeErrs []error
	watches       chan *watchedLogs
	filtered      []ethtypes.Log
	filterQueries []ethereum.FilterQuery
}

func newFakeFilterer() *fakeFilterer {
	return &fakeFilterer{watches: make(chan *watchedLogs, 8)}
}

func (f *fakeFilterer) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- ethtypes.Log) (ethereum.Subscription, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if len(f.subscribeErrs) > 0 {
		err := f.subscribeErrs[0]
		f.subscribeErrs = f.subscribeErrs[1:]
		return nil, err
	}
	watch := &watchedLogs{
		ctx:  ctx,
		logs: ch,
		sub:  &fakeLogSub{err: make(chan error, 1), unsubscribed: make(chan struct{})},
	}
	f.watches <- watch
	return watch.sub, nil
}

func (f *fakeFilterer) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.filterQueries = append(f.filterQueries, q)
	return f.filtered, nil
}

func nextWatch(t *testing.T, filterer *fakeFilterer) *watchedLogs {
	t.Helper()
	select {
	case watch := <-filterer.watches:
		return watch
	case <-time.After(time.Second):
		t.Fatal("no log subscription")
		return nil
	}
}

func nextEvent[T any](t *testing.T, sub *events.Subscription[T]) T {
	t.Helper()
	select {
	case event := <-sub.C:
		return event
	case <-time.After(time.Second):
		t.Fatal("no event published")
		var zero T
		return zero
	}
}

func requireClosed[T any](t *testing.T, ch <-chan T, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal(msg)
	}
}

func newWatchedListener(filterer *fakeFilterer) (*EvmListener, *fakeReader) {
	reader := &fakeReader{
		blockNumber: 10,
		receipts: map[common.Hash]*ethtypes.Receipt{
			txHash: {Logs: []*ethtypes.Log{{Index: 0}}},
		},
	}
	listener := NewEvmListener("ethereum-sepolia", 2, reader, NewGatewayContract(gatewayAddress, filterer), []string{"osmosis-5"})
	listener.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return listener, reader
}

func TestListenResubscribesAndReadsMissedLogs(t *testing.T) {
	filterer := newFakeFilterer()
	filterer.filtered = []ethtypes.Log{contractCallWithTokenLog(t, "osmosis-5", 12, 0)}
	listener, reader := newWatchedListener(filterer)
	listener.maxRetries = 1
	subject := events.NewSubject[*types.EvmEvent[*types.ContractCallWithToken]]("evm-contract-call-with-token", 4)
	received := subject.Subscribe()
	defer received.Unsubscribe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, Listen(ctx, listener, EvmContractCallWithTokenEvent, subject))
	first := nextWatch(t, filterer)
	first.logs <- contractCallWithTokenLog(t, "osmosis-5", 11, 0)
	assert.Equal(t, uint64(11), nextEvent(t, received).BlockNumber)

	reader.blockNumber = 13
	close(first.sub.err)
	second := nextWatch(t, filterer)
	requireClosed(t, first.sub.unsubscribed, "dropped subscription was not released")
	assert.Equal(t, uint64(12), nextEvent(t, received).BlockNumber, "missed log is read back")
	filterer.mutex.Lock()
	require.Len(t, filterer.filterQueries, 1)
	assert.Equal(t, int64(11), filterer.filterQueries[0].FromBlock.Int64())
	assert.Equal(t, int64(13), filterer.filterQueries[0].ToBlock.Int64())
	filterer.subscribeErrs = []error{errors.New("dial tcp: connection refused")}
	filterer.mutex.Unlock()

	second.logs <- contractCallWithTokenLog(t, "osmosis-5", 14, 0)
	assert.Equal(t, uint64(14), nextEvent(t, received).BlockNumber)

	second.sub.err <- errors.New("websocket: close 1006")
	select {
	case err := <-listener.Errors():
		require.ErrorIs(t, err, ErrSubscriptionLost)
	case <-time.After(time.Second):
		t.Fatal("lost subscription was not reported")
	}
}

func TestListenTwiceReplacesSubscription(t *testing.T) {
	filterer := newFakeFilterer()
	listener, _ := newWatchedListener(filterer)
	subject := events.NewSubject[*types.EvmEvent[*types.ContractCallWithToken]]("evm-contract-call-with-token", 4)
	received := subject.Subscribe()
	defer received.Unsubscribe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, Listen(ctx, listener, EvmContractCallWithTokenEvent, subject))
	first := nextWatch(t, filterer)
	require.NoError(t, Listen(ctx, listener, EvmContractCallWithTokenEvent, subject))
	second := nextWatch(t, filterer)

	require.ErrorIs(t, first.ctx.Err(), context.Canceled)
	require.NoError(t, second.ctx.Err())
	requireClosed(t, first.sub.unsubscribed, "replaced subscription was not released")

	first.logs <- contractCallWithTokenLog(t, "osmosis-5", 11, 0)
	second.logs <- contractCallWithTokenLog(t, "osmosis-5", 11, 0)
	assert.Equal(t, uint64(11), nextEvent(t, received).BlockNumber)
	select {
	case event := <-received.C:
		t.Fatalf("log published twice: %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
	select {
	case err := <-listener.Errors():
		t.Fatalf("replaced subscription reported as lost: %v", err)
	default:
	}
}
