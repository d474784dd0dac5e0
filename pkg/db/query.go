package db

import (
	"context"
	"fmt"

	"github.com/scalarorg/cosmos-gmp-relayer/pkg/db/models"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/types"
)

const (
	DEFAULT_PAGE_LIMIT = 10
	MAX_PAGE_LIMIT     = 100
)

type ListRelayDataOptions struct {
	Page                         int
	Limit                        int
	IncludeCallContract          bool
	IncludeCallContractWithToken bool
	OrderAscending               bool
	Completed                    bool
}

// FindRelayDataByTxHash looks up an EVM originated record by its source transaction and log position.
func (da *DatabaseAdapter) FindRelayDataByTxHash(ctx context.Context, txHash string, logIndex uint) (*models.RelayData, error) {
	return da.FindRelayDataById(ctx, types.EvmMessageID(txHash, logIndex))
}

// ListRelayDatas pages over records that are, or are not yet, successfully relayed.
func (da *DatabaseAdapter) ListRelayDatas(ctx context.Context, opts ListRelayDataOptions) ([]models.RelayData, error) {
	client, err := da.client()
	if err != nil {
		return nil, err
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DEFAULT_PAGE_LIMIT
	}
	if limit > MAX_PAGE_LIMIT {
		limit = MAX_PAGE_LIMIT
	}
	page := opts.Page
	if page < 0 {
		page = 0
	}
	query := client.WithContext(ctx).Model(&models.RelayData{})
	if opts.Completed {
		query = query.Where("status = ?", int(types.SUCCESS))
	} else {
		query = query.Where("status <> ?", int(types.SUCCESS))
	}
	if opts.IncludeCallContract {
		query = query.Preload("CallContract")
	}
	if opts.IncludeCallContractWithToken {
		query = query.Preload("CallContractWithToken")
	}
	order := "updated_at DESC"
	if opts.OrderAscending {
		order = "updated_at ASC"
	}
	var relayDatas []models.RelayData
	err = query.Order(order).Offset(page * limit).Limit(limit).Find(&relayDatas).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list relay data: %w", err)
	}
	return relayDatas, nil
}
