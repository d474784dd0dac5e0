package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog/log"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/clients/axelar"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/db"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/types"
)

// HandleCosmosContractCall persists a hub submitted call and relays it to its EVM chain.
func (h *Handlers) HandleCosmosContractCall(ctx context.Context, event *types.IBCEvent[types.ContractCallSubmitted]) error {
	args := event.Args
	return h.track(ctx, "HandleCosmosContractCall", func(ctx context.Context) error {
		evmClient := h.findEvmClient(args.DestinationChain)
		if evmClient == nil {
			log.Info().Str("destinationChain", args.DestinationChain).
				Msg("[Handlers] [HandleCosmosContractCall] destination chain is not served, skipped")
			return errNoop
		}
		if _, err := h.store.CreateCosmosContractCallEvent(ctx, event); err != nil {
			return err
		}
		return h.HandleCosmosToEvmEvent(ctx, evmClient, args.MessageID, args.Payload, args.DestinationChain)
	}, relayAttrs(args.MessageID, args.DestinationChain)...)
}

func (h *Handlers) HandleCosmosContractCallWithToken(ctx context.Context, event *types.IBCEvent[types.ContractCallWithTokenSubmitted]) error {
	args := event.Args
	return h.track(ctx, "HandleCosmosContractCallWithToken", func(ctx context.Context) error {
		evmClient := h.findEvmClient(args.DestinationChain)
		if evmClient == nil {
			log.Info().Str("destinationChain", args.DestinationChain).
				Msg("[Handlers] [HandleCosmosContractCallWithToken] destination chain is not served, skipped")
			return errNoop
		}
		if _, err := h.store.CreateCosmosContractCallWithTokenEvent(ctx, event); err != nil {
			return err
		}
		return h.HandleCosmosToEvmEvent(ctx, evmClient, args.MessageID, args.Payload, args.DestinationChain)
	}, relayAttrs(args.MessageID, args.DestinationChain)...)
}

// HandleCosmosToEvmEvent routes the message, signs the pending commands of chain and
// submits the signed batch to the gateway. The record becomes APPROVED with the gateway tx hash.
func (h *Handlers) HandleCosmosToEvmEvent(ctx context.Context, evmClient EvmExecutor, id string, payload string, chain string) error {
	if !h.options.IsTestnetLive {
		routeTx, err := h.hub.RouteMessage(ctx, id, payload)
		switch {
		case errors.Is(err, axelar.ErrAlreadyExecuted):
			log.Info().Str("id", id).Msg("[Handlers] [HandleCosmosToEvmEvent] message already routed")
		case err != nil:
			return fmt.Errorf("failed to route message %s: %w", id, err)
		default:
			log.Info().Str("id", id).Str("routeTx", routeTx.TxHash).Msg("[Handlers] [HandleCosmosToEvmEvent] routed")
		}
	}
	pendingCommands, err := h.hub.GetPendingCommands(ctx, chain)
	if err != nil {
		return err
	}
	if len(pendingCommands) == 0 {
		log.Info().Str("id", id).Str("chain", chain).Msg("[Handlers] [HandleCosmosToEvmEvent] no pending commands")
		return errNoop
	}
	log.Info().Str("id", id).Int("pendingCommands", len(pendingCommands)).Msg("[Handlers] [HandleCosmosToEvmEvent] signing commands")
	signTx, err := h.hub.SignCommands(ctx, chain)
	if err != nil {
		return fmt.Errorf("failed to sign commands for %s: %w", chain, err)
	}
	batchedCommandId, err := axelar.GetBatchCommandIDFromSignTx(signTx)
	if err != nil {
		return err
	}
	log.Info().Str("id", id).Str("batchedCommandId", batchedCommandId).Msg("[Handlers] [HandleCosmosToEvmEvent] batch created")
	executeData, err := h.hub.GetExecuteDataFromBatchCommands(ctx, chain, batchedCommandId)
	if err != nil {
		return err
	}
	data, err := hexutil.Decode(executeData)
	if err != nil {
		return fmt.Errorf("invalid execute data of batch %s: %w", batchedCommandId, err)
	}
	receipt, err := evmClient.GatewayExecute(ctx, data)
	if err != nil {
		return err
	}
	executeHash := receipt.TxHash.Hex()
	log.Info().Str("id", id).Str("executeHash", executeHash).Msg("[Handlers] [HandleCosmosToEvmEvent] gateway executed")
	err = h.store.UpdateRelayDataStatusWithExecuteHash(ctx, id, types.APPROVED, executeHash)
	if errors.Is(err, db.ErrInvalidTransition) {
		// the approval emitted by this gateway tx was handled first
		log.Info().Str("id", id).Str("executeHash", executeHash).
			Msg("[Handlers] [HandleCosmosToEvmEvent] relay data already executed, keeping its status")
		return errNoop
	}
	return err
}

// HandleEvmContractCallApproved executes every record matching a gateway approval.
func (h *Handlers) HandleEvmContractCallApproved(ctx context.Context, event *types.EvmEvent[*types.ContractCallApproved]) error {
	commandId := db.Bytes32ToHex(event.Args.CommandId)
	return h.track(ctx, "HandleEvmContractCallApproved", func(ctx context.Context) error {
		evmClient := h.findEvmClient(event.DestinationChain)
		if evmClient == nil {
			log.Info().Str("chain", event.DestinationChain).Msg("[Handlers] [HandleEvmContractCallApproved] no evm client, skipped")
			return errNoop
		}
		relayDatas, err := h.store.FindCosmosToEvmCallContractApproved(ctx, event)
		if err != nil {
			return err
		}
		results := h.HandleCosmosToEvmCallContractCompleteEvent(ctx, evmClient, event, relayDatas)
		if len(results) == 0 {
			return errNoop
		}
		return h.saveExecuteResults(ctx, results)
	}, relayAttrs(commandId, event.DestinationChain)...)
}

func (h *Handlers) HandleEvmContractCallApprovedWithMint(ctx context.Context, event *types.EvmEvent[*types.ContractCallApprovedWithMint]) error {
	commandId := db.Bytes32ToHex(event.Args.CommandId)
	return h.track(ctx, "HandleEvmContractCallApprovedWithMint", func(ctx context.Context) error {
		evmClient := h.findEvmClient(event.DestinationChain)
		if evmClient == nil {
			log.Info().Str("chain", event.DestinationChain).Msg("[Handlers] [HandleEvmContractCallApprovedWithMint] no evm client, skipped")
			return errNoop
		}
		relayDatas, err := h.store.FindCosmosToEvmCallContractWithTokenApproved(ctx, event)
		if err != nil {
			return err
		}
		results := h.HandleCosmosToEvmCallContractWithTokenCompleteEvent(ctx, evmClient, event, relayDatas)
		if len(results) == 0 {
			return errNoop
		}
		return h.saveExecuteResults(ctx, results)
	}, relayAttrs(commandId, event.DestinationChain)...)
}

// HandleCosmosToEvmCallContractCompleteEvent calls execute for each candidate in order.
// A failing candidate is reported as FAILED and does not stop the others.
func (h *Handlers) HandleCosmosToEvmCallContractCompleteEvent(ctx context.Context, evmClient EvmExecutor,
	event *types.EvmEvent[*types.ContractCallApproved], relayDatas []db.RelayDataPayload) []types.ExecuteResult {
	args := event.Args
	if len(relayDatas) == 0 {
		log.Info().Str("payloadHash", db.Bytes32ToHex(args.PayloadHash)).Str("commandId", db.Bytes32ToHex(args.CommandId)).
			Msg("[Handlers] [HandleCosmosToEvmCallContractCompleteEvent] cannot find payload from given payloadHash")
		return nil
	}
	isApproved := func() (bool, error) {
		return evmClient.IsCallContractApproved(ctx, args.CommandId, args.SourceChain, args.SourceAddress,
			args.ContractAddress, args.PayloadHash)
	}
	return h.executeCandidates(ctx, relayDatas, isApproved, func(payload []byte) (string, error) {
		receipt, err := evmClient.Execute(ctx, args.ContractAddress, args.CommandId, args.SourceChain, args.SourceAddress, payload)
		if err != nil {
			return "", err
		}
		return receipt.TxHash.Hex(), nil
	})
}

func (h *Handlers) HandleCosmosToEvmCallContractWithTokenCompleteEvent(ctx context.Context, evmClient EvmExecutor,
	event *types.EvmEvent[*types.ContractCallApprovedWithMint], relayDatas []db.RelayDataPayload) []types.ExecuteResult {
	args := event.Args
	if len(relayDatas) == 0 {
		log.Info().Str("payloadHash", db.Bytes32ToHex(args.PayloadHash)).Str("commandId", db.Bytes32ToHex(args.CommandId)).
			Msg("[Handlers] [HandleCosmosToEvmCallContractWithTokenCompleteEvent] cannot find payload from given payloadHash")
		return nil
	}
	isApproved := func() (bool, error) {
		return evmClient.IsCallContractWithTokenApproved(ctx, args.CommandId, args.SourceChain, args.SourceAddress,
			args.ContractAddress, args.PayloadHash, args.Symbol, args.Amount)
	}
	return h.executeCandidates(ctx, relayDatas, isApproved, func(payload []byte) (string, error) {
		receipt, err := evmClient.ExecuteWithToken(ctx, args.ContractAddress, args.CommandId, args.SourceChain,
			args.SourceAddress, payload, args.Symbol, args.Amount)
		if err != nil {
			return "", err
		}
		return receipt.TxHash.Hex(), nil
	})
}

// executeCandidates runs execute for the candidates of one approval.
// An approval that is no longer pending was consumed by an earlier execution, so the record is a success.
// Once a candidate of this loop consumed the approval, the remaining identical messages keep their status:
// each of them waits for the approval of its own command.
func (h *Handlers) executeCandidates(ctx context.Context, relayDatas []db.RelayDataPayload,
	isApproved func() (bool, error), execute func(payload []byte) (string, error)) []types.ExecuteResult {
	results := make([]types.ExecuteResult, 0, len(relayDatas))
	consumed := false
	for _, relayData := range relayDatas {
		payload, err := hexutil.Decode(relayData.Payload)
		if err != nil {
			log.Error().Err(err).Str("id", relayData.ID).Msg("[Handlers] [Execute] invalid payload, marking as failed")
			results = append(results, types.ExecuteResult{ID: relayData.ID, Status: types.FAILED, Err: err})
			continue
		}
		approved, err := isApproved()
		if err != nil {
			log.Error().Err(err).Str("id", relayData.ID).Msg("[Handlers] [Execute] approval check failed, marking as failed")
			results = append(results, types.ExecuteResult{ID: relayData.ID, Status: types.FAILED, Err: err})
			continue
		}
		if !approved {
			if consumed {
				log.Info().Str("id", relayData.ID).
					Msg("[Handlers] [Execute] approval consumed by an identical message, left for its own approval")
				continue
			}
			log.Info().Str("id", relayData.ID).Msg("[Handlers] [Execute] already executed, marking as success")
			results = append(results, types.ExecuteResult{ID: relayData.ID, Status: types.SUCCESS})
			continue
		}
		executeHash, err := execute(payload)
		if err != nil {
			log.Error().Err(err).Str("id", relayData.ID).Msg("[Handlers] [Execute] execute failed, marking as failed")
			results = append(results, types.ExecuteResult{ID: relayData.ID, Status: types.FAILED, Err: err})
			continue
		}
		consumed = true
		log.Info().Str("id", relayData.ID).Str("executeHash", executeHash).Msg("[Handlers] [Execute] executed")
		results = append(results, types.ExecuteResult{ID: relayData.ID, Status: types.SUCCESS, ExecuteHash: executeHash})
	}
	return results
}

// saveExecuteResults stores every result. Failed updates are joined, they do not stop the others.
// A record another handler already finished is left as it is.
func (h *Handlers) saveExecuteResults(ctx context.Context, results []types.ExecuteResult) error {
	var errs []error
	for _, result := range results {
		var err error
		if result.ExecuteHash != "" {
			err = h.store.UpdateRelayDataStatusWithExecuteHash(ctx, result.ID, result.Status, result.ExecuteHash)
		} else {
			err = h.store.UpdateEventStatus(ctx, result.ID, result.Status)
		}
		if errors.Is(err, db.ErrInvalidTransition) {
			log.Info().Err(err).Str("id", result.ID).Msg("[Handlers] [saveExecuteResults] relay data already finished, skipped")
			continue
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
