package evm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/scalarorg/cosmos-gmp-relayer/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPrivateKey = "4f3edf983ac636a65a842ce7c78d9aa706d3b113bce9c46f30d7d21715b23b1d"

func newTestClient(t *testing.T, maxRetries int) (*EvmClient, *[]time.Duration) {
	client, err := NewEvmClientWithBackend(&config.EvmNetworkConfig{
		ID:         "ethereum-sepolia",
		ChainID:    11155111,
		Gateway:    gatewayAddress.Hex(),
		PrivateKey: "0x" + testPrivateKey,
		GasLimit:   3000000,
		MaxRetries: maxRetries,
		RetryDelay: 5000,

		ReceiptPollInterval: 2000,
		ReceiptPollMax:      4,
	}, nil)
	require.NoError(t, err)
	delays := []time.Duration{}
	client.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return client, &delays
}

func TestSubmitWithRetryRecovers(t *testing.T) {
	client, delays := newTestClient(t, 3)
	calls := 0
	tx, err := client.submitWithRetry(context.Background(), "Execute", func() (*ethtypes.Transaction, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("nonce too low")
		}
		return ethtypes.NewTx(&ethtypes.LegacyTx{Nonce: 1}), nil
	})
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, *delays)
}

func TestSubmitWithRetryExhausted(t *testing.T) {
	client, delays := newTestClient(t, 2)
	calls := 0
	_, err := client.submitWithRetry(context.Background(), "GatewayExecute", func() (*ethtypes.Transaction, error) {
		calls++
		return nil, errors.New("insufficient funds")
	})
	require.ErrorIs(t, err, ErrSubmissionFailed)
	assert.Contains(t, err.Error(), "insufficient funds")
	assert.Equal(t, 3, calls)
	assert.Len(t, *delays, 2)
}

func TestNewEvmClientRejectsMissingGateway(t *testing.T) {
	_, err := NewEvmClientWithBackend(&config.EvmNetworkConfig{
		ID:         "ethereum-sepolia",
		ChainID:    11155111,
		PrivateKey: testPrivateKey,
	}, nil)
	require.Error(t, err)
}

type receiptBackend struct {
	bind.ContractBackend
	*fakeReader
	queries int
}

func (b *receiptBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	b.queries++
	return b.fakeReader.TransactionReceipt(ctx, txHash)
}

func TestWaitForReceiptIsBounded(t *testing.T) {
	client, delays := newTestClient(t, 0)
	backend := &receiptBackend{fakeReader: &fakeReader{receipts: map[common.Hash]*ethtypes.Receipt{}}}
	client.backend = backend

	_, err := client.WaitForReceipt(context.Background(), txHash)
	require.ErrorIs(t, err, ErrReceiptNotFound)
	assert.Equal(t, 4, backend.queries)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second}, *delays)
}

func TestWaitForReceipt(t *testing.T) {
	client, _ := newTestClient(t, 0)
	backend := &receiptBackend{fakeReader: &fakeReader{receipts: map[common.Hash]*ethtypes.Receipt{
		txHash: {Status: ethtypes.ReceiptStatusSuccessful, TxHash: txHash},
	}}}
	client.backend = backend

	receipt, err := client.WaitForReceipt(context.Background(), txHash)
	require.NoError(t, err)
	assert.Equal(t, txHash, receipt.TxHash)
	assert.Equal(t, 1, backend.queries)

	backend.receipts[txHash].Status = ethtypes.ReceiptStatusFailed
	_, err = client.WaitForReceipt(context.Background(), txHash)
	require.ErrorIs(t, err, ErrTransactionReverted)
}
