package db_test

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/db"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/db/models"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	postgresDriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	SOURCE_TX_HASH = "0x4a21de48f14ae787a11cce77f6232fe52308590791829b54ecc2f82f36a2468f"
	EVM_CHAIN      = "ethereum-sepolia"
	COSMOS_CHAIN   = "osmosis-5"
)

var (
	dbAdapter *db.DatabaseAdapter
	gormDB    *gorm.DB
	setupErr  error
)

func TestMain(m *testing.M) {
	var cleanup func()
	dbAdapter, cleanup, setupErr = SetupTestDB()
	if setupErr != nil {
		log.Warn().Err(setupErr).Msg("postgres container is not available, database tests are skipped")
	}
	code := m.Run()
	if cleanup != nil {
		cleanup()
	}
	os.Exit(code)
}

func SetupTestDB() (*db.DatabaseAdapter, func(), error) {
	ctx := context.Background()

	dbName := "test_db"
	dbUser := "test_user"
	dbPassword := "test_password"

	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		postgresContainer.Terminate(ctx)
	}

	host, err := postgresContainer.Host(ctx)
	if err != nil {
		return nil, cleanup, err
	}
	port, err := postgresContainer.MappedPort(ctx, "5432")
	if err != nil {
		return nil, cleanup, err
	}

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
		host, dbUser, dbPassword, dbName, port.Int())

	gormDB, err = gorm.Open(postgresDriver.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, cleanup, err
	}
	if err = db.RunMigrations(gormDB); err != nil {
		return nil, cleanup, err
	}
	return db.NewDatabaseAdapterWithClient(gormDB), cleanup, nil
}

func requireDatabase(t *testing.T) {
	t.Helper()
	if setupErr != nil {
		t.Skipf("postgres container unavailable: %v", setupErr)
	}
	require.NoError(t, gormDB.Exec("TRUNCATE relay_data, call_contracts, call_contract_with_tokens").Error)
}

func evmContractCallWithToken(logIndex uint) *types.EvmEvent[*types.ContractCallWithToken] {
	return &types.EvmEvent[*types.ContractCallWithToken]{
		Hash:             SOURCE_TX_HASH,
		BlockNumber:      7538226,
		LogIndex:         logIndex,
		SourceChain:      EVM_CHAIN,
		DestinationChain: COSMOS_CHAIN,
		Args: &types.ContractCallWithToken{
			Sender:                     common.HexToAddress("0x000000000000000000000000000000000000000a"),
			DestinationChain:           COSMOS_CHAIN,
			DestinationContractAddress: "osmo1contract",
			PayloadHash:                [32]byte{0xaa},
			Payload:                    []byte{0x12, 0x34},
			Symbol:                     "aUSDC",
			Amount:                     big.NewInt(100),
		},
	}
}

func cosmosContractCall(messageID string, contractAddress string) *types.IBCEvent[types.ContractCallSubmitted] {
	return &types.IBCEvent[types.ContractCallSubmitted]{
		Hash: "ABCDEF",
		Args: types.ContractCallSubmitted{
			MessageID:        messageID,
			Sender:           "osmo1sender",
			SourceChain:      COSMOS_CHAIN,
			DestinationChain: EVM_CHAIN,
			ContractAddress:  contractAddress,
			Payload:          "0xdeadbeef",
			PayloadHash:      db.Bytes32ToHex([32]byte{0xbb}),
		},
	}
}

func TestCreateEvmCallContractWithTokenIsIdempotent(t *testing.T) {
	requireDatabase(t)
	ctx := context.Background()
	event := evmContractCallWithToken(2)

	created, err := dbAdapter.CreateEvmCallContractWithTokenEvent(ctx, event)
	require.NoError(t, err)
	require.True(t, created)

	created, err = dbAdapter.CreateEvmCallContractWithTokenEvent(ctx, event)
	require.NoError(t, err)
	require.False(t, created)

	var count int64
	require.NoError(t, gormDB.Model(&models.RelayData{}).Where("id = ?", SOURCE_TX_HASH+"-2").Count(&count).Error)
	assert.Equal(t, int64(1), count)
	require.NoError(t, gormDB.Model(&models.CallContractWithToken{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	relayData, err := dbAdapter.FindRelayDataById(ctx, SOURCE_TX_HASH+"-2")
	require.NoError(t, err)
	assert.Equal(t, EVM_CHAIN, relayData.From)
	assert.Equal(t, COSMOS_CHAIN, relayData.To)
	assert.Equal(t, types.PENDING, relayData.Status)
	require.NotNil(t, relayData.CallContractWithToken)
	assert.Nil(t, relayData.CallContract)
	assert.Equal(t, "0x1234", relayData.Payload())
	assert.Equal(t, "100", relayData.CallContractWithToken.Amount)
	assert.Equal(t, "aUSDC", relayData.CallContractWithToken.Symbol)
}

func TestFindCosmosToEvmCallContractApprovedMatching(t *testing.T) {
	requireDatabase(t)
	ctx := context.Background()
	contract := common.HexToAddress("0x00000000000000000000000000000000000000Bb")

	for _, id := range []string{"msg-1", "msg-2", "msg-3"} {
		_, err := dbAdapter.CreateCosmosContractCallEvent(ctx, cosmosContractCall(id, contract.Hex()))
		require.NoError(t, err)
	}
	_, err := dbAdapter.CreateCosmosContractCallEvent(ctx, cosmosContractCall("msg-other", "0x00000000000000000000000000000000000000cc"))
	require.NoError(t, err)

	require.NoError(t, dbAdapter.UpdateEventStatus(ctx, "msg-1", types.APPROVED))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, dbAdapter.UpdateEventStatus(ctx, "msg-2", types.APPROVED))
	require.NoError(t, dbAdapter.UpdateEventStatus(ctx, "msg-3", types.SUCCESS))

	event := &types.EvmEvent[*types.ContractCallApproved]{
		Args: &types.ContractCallApproved{
			SourceChain:     COSMOS_CHAIN,
			SourceAddress:   "osmo1sender",
			ContractAddress: contract,
			PayloadHash:     [32]byte{0xbb},
		},
	}
	rows, err := dbAdapter.FindCosmosToEvmCallContractApproved(ctx, event)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "msg-2", rows[0].ID)
	assert.Equal(t, "msg-1", rows[1].ID)
	assert.Equal(t, "0xdeadbeef", rows[0].Payload)

	event.Args.SourceAddress = "osmo1someoneelse"
	rows, err = dbAdapter.FindCosmosToEvmCallContractApproved(ctx, event)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestFindCosmosToEvmCallContractWithTokenApprovedMatchesAmount(t *testing.T) {
	requireDatabase(t)
	ctx := context.Background()
	contract := common.HexToAddress("0x00000000000000000000000000000000000000Bb")
	submitted := func(id string, amount string) *types.IBCEvent[types.ContractCallWithTokenSubmitted] {
		event := cosmosContractCall(id, contract.Hex())
		return &types.IBCEvent[types.ContractCallWithTokenSubmitted]{
			Hash: event.Hash,
			Args: types.ContractCallWithTokenSubmitted{
				ContractCallSubmitted: event.Args,
				Symbol:                "uusdc",
				Amount:                amount,
			},
		}
	}
	_, err := dbAdapter.CreateCosmosContractCallWithTokenEvent(ctx, submitted("msg-100", "100"))
	require.NoError(t, err)
	_, err = dbAdapter.CreateCosmosContractCallWithTokenEvent(ctx, submitted("msg-200", "200"))
	require.NoError(t, err)

	event := &types.EvmEvent[*types.ContractCallApprovedWithMint]{
		Args: &types.ContractCallApprovedWithMint{
			SourceAddress:   "osmo1sender",
			ContractAddress: contract,
			PayloadHash:     [32]byte{0xbb},
			Symbol:          "axlUSDC",
			Amount:          big.NewInt(200),
		},
	}
	rows, err := dbAdapter.FindCosmosToEvmCallContractWithTokenApproved(ctx, event)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "msg-200", rows[0].ID)
}

func TestUpdateStatusTransitions(t *testing.T) {
	requireDatabase(t)
	ctx := context.Background()
	_, err := dbAdapter.CreateEvmCallContractWithTokenEvent(ctx, evmContractCallWithToken(0))
	require.NoError(t, err)
	id := SOURCE_TX_HASH + "-0"

	require.NoError(t, dbAdapter.UpdateRelayDataStatusWithPacketSequence(ctx, id, types.APPROVED, 42))
	relayData, err := dbAdapter.FindRelayDataByPacketSequence(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, id, relayData.ID)
	assert.Equal(t, types.APPROVED, relayData.Status)

	require.NoError(t, dbAdapter.UpdateEventStatus(ctx, id, types.SUCCESS))
	err = dbAdapter.UpdateEventStatus(ctx, id, types.PENDING)
	require.ErrorIs(t, err, db.ErrInvalidTransition)
	err = dbAdapter.UpdateEventStatus(ctx, id, types.FAILED)
	require.ErrorIs(t, err, db.ErrInvalidTransition)
	relayData, err = dbAdapter.FindRelayDataById(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.SUCCESS, relayData.Status)

	err = dbAdapter.UpdateEventStatus(ctx, "missing", types.SUCCESS)
	require.ErrorIs(t, err, db.ErrRecordNotFound)
}

func TestListRelayDatas(t *testing.T) {
	requireDatabase(t)
	ctx := context.Background()
	for i := uint(0); i < 3; i++ {
		_, err := dbAdapter.CreateEvmCallContractWithTokenEvent(ctx, evmContractCallWithToken(i))
		require.NoError(t, err)
	}
	require.NoError(t, dbAdapter.UpdateRelayDataStatusWithExecuteHash(ctx, SOURCE_TX_HASH+"-1", types.SUCCESS, "0xexec"))

	completed, err := dbAdapter.ListRelayDatas(ctx, db.ListRelayDataOptions{Completed: true, IncludeCallContractWithToken: true})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	require.NotNil(t, completed[0].ExecuteHash)
	assert.Equal(t, "0xexec", *completed[0].ExecuteHash)
	assert.NotNil(t, completed[0].CallContractWithToken)

	pending, err := dbAdapter.ListRelayDatas(ctx, db.ListRelayDataOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Nil(t, pending[0].CallContractWithToken)

	found, err := dbAdapter.FindRelayDataByTxHash(ctx, SOURCE_TX_HASH, 2)
	require.NoError(t, err)
	assert.Equal(t, SOURCE_TX_HASH+"-2", found.ID)
}

func TestIsConnectionError(t *testing.T) {
	assert.False(t, db.IsConnectionError(nil))
	assert.True(t, db.IsConnectionError(fmt.Errorf("query: %w", db.ErrNotConnected)))
	assert.True(t, db.IsConnectionError(fmt.Errorf("dial tcp 127.0.0.1:5432: connect: connection refused")))
	assert.False(t, db.IsConnectionError(db.ErrInvalidTransition))
}
