package relayer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/scalarorg/cosmos-gmp-relayer/config"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/api"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/clients/axelar"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/clients/evm"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/db"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/events"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/handlers"
	"golang.org/x/sync/errgroup"
)

const SHUTDOWN_TIMEOUT = 10 * time.Second

type Service struct {
	config         *config.Config
	DbAdapter      *db.DatabaseAdapter
	EventBus       *events.EventBus
	AxelarClient   *axelar.AxelarClient
	AxelarListener *axelar.AxelarListener
	EvmClients     []*evm.EvmClient
	Handlers       *handlers.Handlers
	ApiServer      *api.Server
}

func NewService(cfg *config.Config, dbAdapter *db.DatabaseAdapter, eventBus *events.EventBus) (*Service, error) {
	axelarClient, err := axelar.NewAxelarClient(&cfg.Axelar)
	if err != nil {
		return nil, fmt.Errorf("failed to create axelar client: %w", err)
	}
	evmClients, err := evm.NewEvmClients(cfg.EvmNetworks)
	if err != nil {
		return nil, fmt.Errorf("failed to create evm clients: %w", err)
	}
	executors := make([]handlers.EvmExecutor, len(evmClients))
	for i, client := range evmClients {
		executors[i] = client
	}
	service := &Service{
		config:         cfg,
		DbAdapter:      dbAdapter,
		EventBus:       eventBus,
		AxelarClient:   axelarClient,
		AxelarListener: axelar.NewAxelarListener(&cfg.Axelar),
		EvmClients:     evmClients,
		Handlers: handlers.NewHandlers(dbAdapter, axelarClient, executors, handlers.Options{
			IsDev:         cfg.IsDev,
			IsTestnetLive: cfg.IsTestnetLive,
			DevRecipient:  cfg.DevRecipient,
		}),
	}
	if cfg.Api.Enabled {
		service.ApiServer = api.NewServer(&cfg.Api, cfg.ChainEnv, dbAdapter)
	}
	return service, nil
}

// Wire binds every bus subject to its handler. Handler errors go to HandleError tagged with the subject name.
func Wire(ctx context.Context, bus *events.EventBus, h *handlers.Handlers) {
	bus.EvmContractCall.Handle(ctx, bus.EvmContractCall.Name(), h.HandleEvmContractCall, h.HandleError)
	bus.EvmContractCallWithToken.Handle(ctx, bus.EvmContractCallWithToken.Name(), h.HandleEvmContractCallWithToken, h.HandleError)
	bus.EvmContractCallApproved.Handle(ctx, bus.EvmContractCallApproved.Name(), h.HandleEvmContractCallApproved, h.HandleError)
	bus.EvmContractCallApprovedWithMint.Handle(ctx, bus.EvmContractCallApprovedWithMint.Name(), h.HandleEvmContractCallApprovedWithMint, h.HandleError)
	bus.CosmosContractCall.Handle(ctx, bus.CosmosContractCall.Name(), h.HandleCosmosContractCall, h.HandleError)
	bus.CosmosContractCallWithToken.Handle(ctx, bus.CosmosContractCallWithToken.Name(), h.HandleCosmosContractCallWithToken, h.HandleError)
	bus.EvmEventCompleted.Handle(ctx, bus.EvmEventCompleted.Name(), h.HandleEvmToCosmosConfirmEvent, h.HandleError)
	bus.IBCComplete.Handle(ctx, bus.IBCComplete.Name(), h.HandleEvmToCosmosCompleteEvent, h.HandleError)
}

// Start wires the handlers, starts every listener and the api server, and blocks until ctx is done
// or a listener gave up.
func (s *Service) Start(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	Wire(ctx, s.EventBus, s.Handlers)

	observedChains := s.config.ObservedDestinationChains()
	for _, client := range s.EvmClients {
		listener := client.NewListener(observedChains)
		if err := startEvmListener(ctx, listener, s.EventBus); err != nil {
			return fmt.Errorf("failed to start evm listener %s: %w", client.ChainId(), err)
		}
		group.Go(func() error {
			select {
			case <-ctx.Done():
				return nil
			case err := <-listener.Errors():
				return fmt.Errorf("evm listener %s: %w", listener.ChainId(), err)
			}
		})
	}

	axelar.Listen(ctx, s.AxelarListener, axelar.ContractCallSubmittedEvent, s.EventBus.CosmosContractCall)
	axelar.Listen(ctx, s.AxelarListener, axelar.ContractCallWithTokenSubmittedEvent, s.EventBus.CosmosContractCallWithToken)
	axelar.Listen(ctx, s.AxelarListener, axelar.EVMEventCompletedEvent(axelar.NewParser(s.DbAdapter)), s.EventBus.EvmEventCompleted)
	axelar.Listen(ctx, s.AxelarListener, axelar.IBCCompleteEvent, s.EventBus.IBCComplete)
	group.Go(func() error {
		select {
		case <-ctx.Done():
			return nil
		case err := <-s.AxelarListener.Errors():
			return err
		}
	})

	if s.ApiServer != nil {
		group.Go(s.ApiServer.Start)
		group.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), SHUTDOWN_TIMEOUT)
			defer cancel()
			return s.ApiServer.Shutdown(shutdownCtx)
		})
	}
	log.Info().Int("evmClients", len(s.EvmClients)).Strs("observedChains", observedChains).
		Msg("[Relayer] [Start] relayer started")
	return group.Wait()
}

func startEvmListener(ctx context.Context, listener *evm.EvmListener, bus *events.EventBus) error {
	return errors.Join(
		evm.Listen(ctx, listener, evm.EvmContractCallEvent, bus.EvmContractCall),
		evm.Listen(ctx, listener, evm.EvmContractCallWithTokenEvent, bus.EvmContractCallWithToken),
		evm.Listen(ctx, listener, evm.EvmContractCallApprovedEvent, bus.EvmContractCallApproved),
		evm.Listen(ctx, listener, evm.EvmContractCallApprovedWithMintEvent, bus.EvmContractCallApprovedWithMint),
	)
}

func (s *Service) Stop() {
	log.Info().Msg("[Relayer] [Stop] stopping relayer service")
	s.EventBus.Close()
	if err := s.AxelarClient.Close(); err != nil {
		log.Warn().Err(err).Msg("[Relayer] [Stop] failed to close axelar client")
	}
	ctx, cancel := context.WithTimeout(context.Background(), SHUTDOWN_TIMEOUT)
	defer cancel()
	s.DbAdapter.Close(ctx)
	log.Info().Msg("[Relayer] [Stop] relayer service stopped")
}
