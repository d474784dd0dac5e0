package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/clients/axelar"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/db"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/types"
	"go.opentelemetry.io/otel/attribute"
)

// HandleEvmContractCall persists an EVM originated call and asks the hub to confirm it.
func (h *Handlers) HandleEvmContractCall(ctx context.Context, event *types.EvmEvent[*types.ContractCall]) error {
	id := types.EvmMessageID(event.Hash, event.LogIndex)
	return h.track(ctx, "HandleEvmContractCall", func(ctx context.Context) error {
		created, err := h.store.CreateEvmCallContractEvent(ctx, event)
		if err != nil {
			return err
		}
		if !created {
			log.Info().Str("id", id).Msg("[Handlers] [HandleEvmContractCall] relay data already exists, confirming again")
		}
		return h.HandleEvmToCosmosEvent(ctx, event.SourceChain, event.Hash, id, event.WaitForFinality)
	}, relayAttrs(id, event.SourceChain)...)
}

func (h *Handlers) HandleEvmContractCallWithToken(ctx context.Context, event *types.EvmEvent[*types.ContractCallWithToken]) error {
	id := types.EvmMessageID(event.Hash, event.LogIndex)
	return h.track(ctx, "HandleEvmContractCallWithToken", func(ctx context.Context) error {
		created, err := h.store.CreateEvmCallContractWithTokenEvent(ctx, event)
		if err != nil {
			return err
		}
		if !created {
			log.Info().Str("id", id).Msg("[Handlers] [HandleEvmContractCallWithToken] relay data already exists, confirming again")
		}
		return h.HandleEvmToCosmosEvent(ctx, event.SourceChain, event.Hash, id, event.WaitForFinality)
	}, relayAttrs(id, event.SourceChain)...)
}

// HandleEvmToCosmosEvent waits for finality, broadcasts ConfirmGatewayTxs and polls until the hub confirmed the event.
// Completion is reported later by the hub's EVMEventCompleted event.
func (h *Handlers) HandleEvmToCosmosEvent(ctx context.Context, chain string, txHash string, id string,
	waitForFinality func(ctx context.Context) error) error {
	if waitForFinality != nil {
		if err := waitForFinality(ctx); err != nil {
			return fmt.Errorf("failed to wait for finality of %s: %w", id, err)
		}
	}
	confirmTx, err := h.hub.ConfirmEvmTx(ctx, chain, txHash)
	if err != nil {
		return fmt.Errorf("failed to confirm evm tx %s: %w", txHash, err)
	}
	log.Info().Str("id", id).Str("confirmTx", confirmTx.TxHash).Msg("[Handlers] [HandleEvmToCosmosEvent] confirmed")
	if err := h.hub.PollUntilEventConfirmed(ctx, chain, id); err != nil {
		return fmt.Errorf("event %s: %w", id, err)
	}
	return nil
}

// HandleEvmToCosmosConfirmEvent routes the payload of a hub completed EVM event.
// The record then waits for the IBC acknowledgement of the emitted packet.
func (h *Handlers) HandleEvmToCosmosConfirmEvent(ctx context.Context, request *types.ExecuteRequest) error {
	return h.track(ctx, "HandleEvmToCosmosConfirmEvent", func(ctx context.Context) error {
		executeTx, err := h.hub.RouteMessage(ctx, request.ID, request.Payload)
		if errors.Is(err, axelar.ErrAlreadyExecuted) {
			log.Info().Str("id", request.ID).Msg("[Handlers] [HandleEvmToCosmosConfirmEvent] already executed, marking as success")
			return h.store.UpdateEventStatus(ctx, request.ID, types.SUCCESS)
		}
		if err != nil {
			return fmt.Errorf("failed to route message %s: %w", request.ID, err)
		}
		log.Info().Str("id", request.ID).Str("executeTx", executeTx.TxHash).Msg("[Handlers] [HandleEvmToCosmosConfirmEvent] executed")
		packetSequence, err := axelar.GetPacketSequenceFromExecuteTx(executeTx)
		if errors.Is(err, axelar.ErrEventNotFound) {
			// no IBC transfer, the message is delivered by the hub itself
			return h.store.UpdateRelayDataStatusWithExecuteHash(ctx, request.ID, types.SUCCESS, executeTx.TxHash)
		}
		if err != nil {
			return err
		}
		return h.store.UpdateRelayDataStatusWithPacketSequence(ctx, request.ID, types.APPROVED, packetSequence)
	}, attribute.String("relay.id", request.ID))
}

// HandleEvmToCosmosCompleteEvent marks the record of an acknowledged IBC packet as delivered.
func (h *Handlers) HandleEvmToCosmosCompleteEvent(ctx context.Context, packet *types.IBCPacketEvent) error {
	return h.track(ctx, "HandleEvmToCosmosCompleteEvent", func(ctx context.Context) error {
		relayData, err := h.store.FindRelayDataByPacketSequence(ctx, packet.Sequence)
		if errors.Is(err, db.ErrRecordNotFound) {
			log.Info().Int("sequence", packet.Sequence).Msg("[Handlers] [HandleEvmToCosmosCompleteEvent] no relay data for packet")
			return errNoop
		}
		if err != nil {
			return err
		}
		if err := h.store.UpdateRelayDataStatusWithExecuteHash(ctx, relayData.ID, types.SUCCESS, packet.Hash); err != nil {
			return err
		}
		if h.options.IsDev && h.options.DevRecipient != "" {
			h.logRecipientBalance(ctx, packet)
		}
		return nil
	}, attribute.Int("ibc.sequence", packet.Sequence))
}

func (h *Handlers) logRecipientBalance(ctx context.Context, packet *types.IBCPacketEvent) {
	denom := axelar.CalculateTokenIBCPath(axelar.DEFAULT_IBC_PORT, packet.DestChannel, packet.Denom)
	balance, err := h.hub.GetBalance(ctx, h.options.DevRecipient, denom)
	if err != nil {
		log.Warn().Err(err).Str("denom", denom).Msg("[Handlers] [HandleEvmToCosmosCompleteEvent] failed to query balance")
		return
	}
	log.Info().Str("recipient", h.options.DevRecipient).Str("balance", balance.String()).
		Msg("[Handlers] [HandleEvmToCosmosCompleteEvent] recipient balance")
}
