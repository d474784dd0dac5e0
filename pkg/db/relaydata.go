package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog/log"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/db/models"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RelayDataPayload is the projection returned to the approval handlers.
type RelayDataPayload struct {
	ID      string
	Payload string
}

func (da *DatabaseAdapter) CreateEvmCallContractEvent(ctx context.Context, event *types.EvmEvent[*types.ContractCall]) (bool, error) {
	relayData := models.RelayData{
		ID:     types.EvmMessageID(event.Hash, event.LogIndex),
		From:   event.SourceChain,
		To:     event.DestinationChain,
		Status: types.PENDING,
		CallContract: &models.CallContract{
			Payload:         hexutil.Encode(event.Args.Payload),
			PayloadHash:     Bytes32ToHex(event.Args.PayloadHash),
			ContractAddress: event.Args.DestinationContractAddress,
			SourceAddress:   event.Args.Sender.Hex(),
		},
	}
	return da.createRelayData(ctx, &relayData)
}

func (da *DatabaseAdapter) CreateEvmCallContractWithTokenEvent(ctx context.Context, event *types.EvmEvent[*types.ContractCallWithToken]) (bool, error) {
	relayData := models.RelayData{
		ID:     types.EvmMessageID(event.Hash, event.LogIndex),
		From:   event.SourceChain,
		To:     event.DestinationChain,
		Status: types.PENDING,
		CallContractWithToken: &models.CallContractWithToken{
			Payload:         hexutil.Encode(event.Args.Payload),
			PayloadHash:     Bytes32ToHex(event.Args.PayloadHash),
			ContractAddress: event.Args.DestinationContractAddress,
			SourceAddress:   event.Args.Sender.Hex(),
			Amount:          BigIntString(event.Args.Amount),
			Symbol:          event.Args.Symbol,
		},
	}
	return da.createRelayData(ctx, &relayData)
}

func (da *DatabaseAdapter) CreateCosmosContractCallEvent(ctx context.Context, event *types.IBCEvent[types.ContractCallSubmitted]) (bool, error) {
	args := event.Args
	relayData := models.RelayData{
		ID:     args.MessageID,
		From:   args.SourceChain,
		To:     args.DestinationChain,
		Status: types.PENDING,
		CallContract: &models.CallContract{
			Payload:         args.Payload,
			PayloadHash:     NormalizeHex(args.PayloadHash),
			ContractAddress: args.ContractAddress,
			SourceAddress:   args.Sender,
		},
	}
	return da.createRelayData(ctx, &relayData)
}

func (da *DatabaseAdapter) CreateCosmosContractCallWithTokenEvent(ctx context.Context, event *types.IBCEvent[types.ContractCallWithTokenSubmitted]) (bool, error) {
	args := event.Args
	relayData := models.RelayData{
		ID:     args.MessageID,
		From:   args.SourceChain,
		To:     args.DestinationChain,
		Status: types.PENDING,
		CallContractWithToken: &models.CallContractWithToken{
			Payload:         args.Payload,
			PayloadHash:     NormalizeHex(args.PayloadHash),
			ContractAddress: args.ContractAddress,
			SourceAddress:   args.Sender,
			Amount:          args.Amount,
			Symbol:          args.Symbol,
		},
	}
	return da.createRelayData(ctx, &relayData)
}

// createRelayData inserts the record and its child unless a record with the same id exists.
// It reports whether a new record was written.
func (da *DatabaseAdapter) createRelayData(ctx context.Context, relayData *models.RelayData) (bool, error) {
	client, err := da.client()
	if err != nil {
		return false, err
	}
	callContract := relayData.CallContract
	callContractWithToken := relayData.CallContractWithToken
	created := false
	err = client.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Omit(clause.Associations).
			Create(relayData)
		if result.Error != nil {
			return fmt.Errorf("failed to create relay data %s: %w", relayData.ID, result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}
		created = true
		onConflict := clause.OnConflict{Columns: []clause.Column{{Name: "relay_data_id"}}, DoNothing: true}
		if callContract != nil {
			callContract.RelayDataID = relayData.ID
			if err := tx.Clauses(onConflict).Create(callContract).Error; err != nil {
				return fmt.Errorf("failed to create call contract for %s: %w", relayData.ID, err)
			}
		}
		if callContractWithToken != nil {
			callContractWithToken.RelayDataID = relayData.ID
			if err := tx.Clauses(onConflict).Create(callContractWithToken).Error; err != nil {
				return fmt.Errorf("failed to create call contract with token for %s: %w", relayData.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if !created {
		log.Info().Str("id", relayData.ID).Msg("[DatabaseAdapter] [CreateRelayData] relay data already exists, skipping")
		return false, nil
	}
	log.Debug().Str("id", relayData.ID).Str("from", relayData.From).Str("to", relayData.To).
		Msg("[DatabaseAdapter] [CreateRelayData] relay data created")
	da.archive(ctx, "created", relayData.ID, relayData)
	return true, nil
}

func (da *DatabaseAdapter) FindRelayDataById(ctx context.Context, id string) (*models.RelayData, error) {
	client, err := da.client()
	if err != nil {
		return nil, err
	}
	var relayData models.RelayData
	err = client.WithContext(ctx).
		Preload("CallContract").
		Preload("CallContractWithToken").
		Where("id = ?", id).
		First(&relayData).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find relay data %s: %w", id, err)
	}
	return &relayData, nil
}

func (da *DatabaseAdapter) FindRelayDataByPacketSequence(ctx context.Context, sequence int) (*models.RelayData, error) {
	client, err := da.client()
	if err != nil {
		return nil, err
	}
	var relayData models.RelayData
	err = client.WithContext(ctx).Where("packet_sequence = ?", sequence).First(&relayData).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find relay data by packet sequence %d: %w", sequence, err)
	}
	return &relayData, nil
}

// FindCosmosToEvmCallContractApproved returns the pending or approved records matching the approval, most recently updated first.
func (da *DatabaseAdapter) FindCosmosToEvmCallContractApproved(ctx context.Context, event *types.EvmEvent[*types.ContractCallApproved]) ([]RelayDataPayload, error) {
	client, err := da.client()
	if err != nil {
		return nil, err
	}
	var rows []RelayDataPayload
	err = client.WithContext(ctx).
		Model(&models.RelayData{}).
		Select("relay_data.id AS id, call_contracts.payload AS payload").
		Joins("JOIN call_contracts ON call_contracts.relay_data_id = relay_data.id").
		Where("LOWER(call_contracts.payload_hash) = ?", Bytes32ToHex(event.Args.PayloadHash)).
		Where("call_contracts.source_address = ?", event.Args.SourceAddress).
		Where("LOWER(call_contracts.contract_address) = LOWER(?)", event.Args.ContractAddress.Hex()).
		Where("relay_data.status IN ?", candidateStatuses()).
		Order("relay_data.updated_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find approved call contracts: %w", err)
	}
	return rows, nil
}

func (da *DatabaseAdapter) FindCosmosToEvmCallContractWithTokenApproved(ctx context.Context, event *types.EvmEvent[*types.ContractCallApprovedWithMint]) ([]RelayDataPayload, error) {
	client, err := da.client()
	if err != nil {
		return nil, err
	}
	var rows []RelayDataPayload
	err = client.WithContext(ctx).
		Model(&models.RelayData{}).
		Select("relay_data.id AS id, call_contract_with_tokens.payload AS payload").
		Joins("JOIN call_contract_with_tokens ON call_contract_with_tokens.relay_data_id = relay_data.id").
		Where("LOWER(call_contract_with_tokens.payload_hash) = ?", Bytes32ToHex(event.Args.PayloadHash)).
		Where("call_contract_with_tokens.source_address = ?", event.Args.SourceAddress).
		Where("LOWER(call_contract_with_tokens.contract_address) = LOWER(?)", event.Args.ContractAddress.Hex()).
		Where("call_contract_with_tokens.amount = ?", BigIntString(event.Args.Amount)).
		Where("relay_data.status IN ?", candidateStatuses()).
		Order("relay_data.updated_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find approved call contracts with token: %w", err)
	}
	return rows, nil
}

func candidateStatuses() []int {
	return []int{int(types.PENDING), int(types.APPROVED)}
}

func (da *DatabaseAdapter) UpdateEventStatus(ctx context.Context, id string, status types.Status) error {
	return da.updateRelayData(ctx, id, status, nil)
}

func (da *DatabaseAdapter) UpdateRelayDataStatusWithPacketSequence(ctx context.Context, id string, status types.Status, sequence int) error {
	return da.updateRelayData(ctx, id, status, map[string]any{"packet_sequence": sequence})
}

func (da *DatabaseAdapter) UpdateRelayDataStatusWithExecuteHash(ctx context.Context, id string, status types.Status, executeHash string) error {
	return da.updateRelayData(ctx, id, status, map[string]any{"execute_hash": executeHash})
}

// updateRelayData moves a record to status, only from a status that may transition to it.
func (da *DatabaseAdapter) updateRelayData(ctx context.Context, id string, status types.Status, fields map[string]any) error {
	client, err := da.client()
	if err != nil {
		return err
	}
	values := map[string]any{
		"status":     int(status),
		"updated_at": time.Now(),
	}
	for key, value := range fields {
		values[key] = value
	}
	result := client.WithContext(ctx).
		Model(&models.RelayData{}).
		Where("id = ?", id).
		Where("status IN ?", previousStatuses(status)).
		Updates(values)
	if result.Error != nil {
		return fmt.Errorf("failed to update relay data %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		var current models.RelayData
		if err := client.WithContext(ctx).Select("id", "status").Where("id = ?", id).First(&current).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("relay data %s: %w", id, ErrRecordNotFound)
			}
			return err
		}
		return fmt.Errorf("relay data %s from %s to %s: %w", id, current.Status, status, ErrInvalidTransition)
	}
	log.Info().Str("id", id).Str("status", status.String()).Any("fields", fields).
		Msg("[DatabaseAdapter] [UpdateRelayData] relay data updated")
	da.archive(ctx, "status", id, values)
	return nil
}

func previousStatuses(next types.Status) []int {
	statuses := make([]int, 0, 4)
	for _, status := range []types.Status{types.PENDING, types.APPROVED, types.SUCCESS, types.FAILED} {
		if status.CanTransition(next) {
			statuses = append(statuses, int(status))
		}
	}
	return statuses
}

func (da *DatabaseAdapter) archive(ctx context.Context, kind string, id string, data any) {
	if da.Archive == nil {
		return
	}
	if err := da.Archive.Record(ctx, kind, id, data); err != nil {
		log.Warn().Err(err).Str("id", id).Str("kind", kind).Msg("[DatabaseAdapter] failed to archive")
	}
}
