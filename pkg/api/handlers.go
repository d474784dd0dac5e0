package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/db"
	"github.com/scalarorg/cosmos-gmp-relayer/pkg/db/models"
)

const ERROR_NO_DATA_FOUND = "No data found"

type Response struct {
	Success bool   `json:"success"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

type GetTxRequest struct {
	TxHash   string `query:"txHash" validate:"required"`
	LogIndex uint   `query:"logIndex"`
}

type IncludeOptions struct {
	CallContract          bool `json:"callContract"`
	CallContractWithToken bool `json:"callContractWithToken"`
}

type OrderByOptions struct {
	UpdatedAt string `json:"updatedAt" validate:"oneof=asc desc"`
}

type ListTxsRequest struct {
	Page      int            `json:"page" validate:"gte=0"`
	Limit     int            `json:"limit" validate:"gte=1,lte=100"`
	Include   IncludeOptions `json:"include"`
	OrderBy   OrderByOptions `json:"orderBy"`
	Completed bool           `json:"completed"`
}

type ListTxsPayload struct {
	Data  []models.RelayData `json:"data"`
	Page  int                `json:"page"`
	Total int                `json:"total"`
}

type StatusResponse struct {
	Relayer  bool   `json:"relayer"`
	Hermes   bool   `json:"hermes"`
	DB       bool   `json:"db"`
	ChainEnv string `json:"chainEnv"`
}

func (s *Server) getTx(c echo.Context) error {
	var req GetTxRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	relayData, err := s.store.FindRelayDataByTxHash(c.Request().Context(), req.TxHash, req.LogIndex)
	if errors.Is(err, db.ErrRecordNotFound) {
		return c.JSON(http.StatusOK, Response{Success: false, Error: ERROR_NO_DATA_FOUND})
	}
	if err != nil {
		log.Error().Err(err).Str("txHash", req.TxHash).Msg("[ApiServer] [getTx] failed to find relay data")
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, Response{Success: true, Payload: relayData})
}

func (s *Server) listTxs(c echo.Context) error {
	req := ListTxsRequest{
		Limit:     db.DEFAULT_PAGE_LIMIT,
		OrderBy:   OrderByOptions{UpdatedAt: "desc"},
		Completed: true,
	}
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	relayDatas, err := s.store.ListRelayDatas(c.Request().Context(), db.ListRelayDataOptions{
		Page:                         req.Page,
		Limit:                        req.Limit,
		IncludeCallContract:          req.Include.CallContract,
		IncludeCallContractWithToken: req.Include.CallContractWithToken,
		OrderAscending:               req.OrderBy.UpdatedAt == "asc",
		Completed:                    req.Completed,
	})
	if err != nil {
		log.Error().Err(err).Msg("[ApiServer] [listTxs] failed to list relay data")
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if relayDatas == nil {
		relayDatas = []models.RelayData{}
	}
	return c.JSON(http.StatusOK, Response{
		Success: true,
		Payload: ListTxsPayload{Data: relayDatas, Page: req.Page, Total: len(relayDatas)},
	})
}

func (s *Server) status(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), HEALTH_CHECK_TIMEOUT)
	defer cancel()
	return c.JSON(http.StatusOK, StatusResponse{
		Relayer:  true,
		Hermes:   s.isHermesAlive(ctx),
		DB:       s.store.Ping(ctx) == nil,
		ChainEnv: s.chainEnv,
	})
}

func (s *Server) isHermesAlive(ctx context.Context) bool {
	if s.hermesUrl == "" {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.hermesUrl, nil)
	if err != nil {
		return false
	}
	res, err := s.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer res.Body.Close()
	return res.StatusCode >= 200 && res.StatusCode < 300
}
