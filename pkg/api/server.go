package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/scalarorg/cosmos-gmp-relayer/config"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/db"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/db/models"
)

const HEALTH_CHECK_TIMEOUT = 5 * time.Second

// Store is the read side of the relay database. *db.DatabaseAdapter implements it.
type Store interface {
	FindRelayDataByTxHash(ctx context.Context, txHash string, logIndex uint) (*models.RelayData, error)
	ListRelayDatas(ctx context.Context, opts db.ListRelayDataOptions) ([]models.RelayData, error)
	Ping(ctx context.Context) error
}

type requestValidator struct {
	validator *validator.Validate
}

func (v *requestValidator) Validate(i any) error {
	if err := v.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// Server exposes relay records, service status and prometheus metrics over HTTP.
type Server struct {
	echo       *echo.Echo
	store      Store
	port       int
	hermesUrl  string
	chainEnv   string
	httpClient *http.Client
}

func NewServer(apiConfig *config.ApiConfig, chainEnv string, store Store) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{validator: validator.New()}
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Debug().Str("method", v.Method).Str("uri", v.URI).Int("status", v.Status).
				Str("requestId", v.RequestID).Dur("latency", v.Latency).Err(v.Error).
				Msg("[ApiServer] request")
			return nil
		},
	}))
	server := &Server{
		echo:       e,
		store:      store,
		port:       apiConfig.Port,
		hermesUrl:  apiConfig.HermesMetricUrl,
		chainEnv:   chainEnv,
		httpClient: &http.Client{Timeout: HEALTH_CHECK_TIMEOUT},
	}
	e.GET("/tx.get", server.getTx)
	e.POST("/tx.all", server.listTxs)
	e.GET("/status", server.status)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	return server
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	address := fmt.Sprintf(":%d", s.port)
	log.Info().Str("address", address).Msg("[ApiServer] [Start] server running")
	if err := s.echo.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
