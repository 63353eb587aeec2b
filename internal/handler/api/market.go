package api

import (
	"time"

	"github.com/labstack/echo/v4"

	"EstateDesk/internal/domain/models"
	xhttp "EstateDesk/pkg/http"
	xlogger "EstateDesk/pkg/logger"
)

type patternsResponse struct {
	Current *models.VolatilityPattern  `json:"current"`
	History []models.VolatilityPattern `json:"history"`
	Samples int                        `json:"samples"`
}

func (h *Handler) MarketData(c echo.Context) error {
	data := h.market.AllMarketData()
	return xhttp.ListResponse(c, data, int64(len(data)))
}

func (h *Handler) MarketDataByID(c echo.Context) error {
	var req models.PropertyIDRequest
	if errs := xhttp.ReadAndValidateRequest(c, &req); errs != nil {
		return xhttp.BadRequestResponse(c, errs)
	}
	d, ok := h.market.MarketData(req.ID)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no market data for property %s", req.ID))
	}
	return xhttp.SuccessResponse(c, d)
}

func (h *Handler) Tickers(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.market.Tickers())
}

func (h *Handler) Config(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.market.Config())
}

func (h *Handler) Pause(c echo.Context) error {
	h.market.Pause()
	h.logger.Info("market paused")
	return xhttp.SuccessResponse(c, h.market.Config())
}

func (h *Handler) Resume(c echo.Context) error {
	h.market.Resume()
	h.logger.Info("market resumed")
	return xhttp.SuccessResponse(c, h.market.Config())
}

func (h *Handler) SetVolatility(c echo.Context) error {
	var req models.VolatilityRequest
	if errs := xhttp.ReadAndValidateRequest(c, &req); errs != nil {
		return xhttp.BadRequestResponse(c, errs)
	}
	h.market.SetVolatility(req.Level)
	cfg := h.market.Config()
	h.logger.Info("volatility changed",
		xlogger.Float64("requested", req.Level),
		xlogger.Float64("effective", cfg.Volatility))
	return xhttp.SuccessResponse(c, cfg)
}

func (h *Handler) SetFrequency(c echo.Context) error {
	var req models.FrequencyRequest
	if errs := xhttp.ReadAndValidateRequest(c, &req); errs != nil {
		return xhttp.BadRequestResponse(c, errs)
	}
	h.market.SetUpdateFrequency(req.Multiplier)
	cfg := h.market.Config()
	h.logger.Info("update frequency changed",
		xlogger.Float64("requested", req.Multiplier),
		xlogger.Float64("effective", cfg.Multiplier))
	return xhttp.SuccessResponse(c, cfg)
}

func (h *Handler) Portfolio(c echo.Context) error {
	var req models.UserRequest
	if errs := xhttp.ReadAndValidateRequest(c, &req); errs != nil {
		return xhttp.BadRequestResponse(c, errs)
	}
	v, err := h.feed.PortfolioValue(c.Request().Context(), req.User)
	if err != nil {
		return h.fail(c, "portfolio value", err)
	}
	return xhttp.SuccessResponse(c, v)
}

func (h *Handler) Patterns(c echo.Context) error {
	resp := patternsResponse{
		History: h.patterns.History(),
		Samples: len(h.patterns.Values()),
	}
	if p, ok := h.patterns.Current(); ok {
		resp.Current = &p
	}
	return xhttp.SuccessResponse(c, resp)
}

func (h *Handler) Snapshots(c echo.Context) error {
	var req models.SnapshotHistoryRequest
	if errs := xhttp.ReadAndValidateRequest(c, &req); errs != nil {
		return xhttp.BadRequestResponse(c, errs)
	}
	snaps := h.market.HistoricalSnapshots(time.Duration(req.Seconds) * time.Second)
	return xhttp.ListResponse(c, snaps, int64(len(snaps)))
}

func (h *Handler) TakeSnapshot(c echo.Context) error {
	return xhttp.CreatedResponse(c, h.market.TakeSnapshot())
}

// RestoreSnapshot restores the snapshot at the given index of the full history.
func (h *Handler) RestoreSnapshot(c echo.Context) error {
	var req models.RestoreSnapshotRequest
	if errs := xhttp.ReadAndValidateRequest(c, &req); errs != nil {
		return xhttp.BadRequestResponse(c, errs)
	}
	history := h.market.HistoricalSnapshots(0)
	if req.Index >= len(history) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("snapshot %d not found", req.Index).
			WithParam("available", len(history)))
	}
	snap := history[req.Index]
	h.market.RestoreSnapshot(snap)
	h.logger.Info("snapshot restored",
		xlogger.Int("index", req.Index),
		xlogger.String("taken_at", snap.Timestamp.Format(time.RFC3339)))
	return xhttp.SuccessResponse(c, h.market.Config())
}

func (h *Handler) ClearSnapshots(c echo.Context) error {
	h.market.ClearHistory()
	return xhttp.NoContentResponse(c)
}
