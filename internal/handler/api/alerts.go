package api

import (
	"github.com/labstack/echo/v4"

	"EstateDesk/internal/domain/models"
	xhttp "EstateDesk/pkg/http"
	xlogger "EstateDesk/pkg/logger"
)

func (h *Handler) ListAlerts(c echo.Context) error {
	var req models.UserRequest
	if errs := xhttp.ReadAndValidateRequest(c, &req); errs != nil {
		return xhttp.BadRequestResponse(c, errs)
	}
	list, err := h.alerts.List(c.Request().Context(), req.User)
	if err != nil {
		return h.fail(c, "list alerts", err)
	}
	return xhttp.ListResponse(c, list, int64(len(list)))
}

func (h *Handler) CreateAlert(c echo.Context) error {
	var req models.CreateAlertRequest
	if errs := xhttp.ReadAndValidateRequest(c, &req); errs != nil {
		return xhttp.BadRequestResponse(c, errs)
	}
	alert, err := h.alerts.Create(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, "create alert", err)
	}
	return xhttp.CreatedResponse(c, alert)
}

func (h *Handler) ToggleAlert(c echo.Context) error {
	var req models.ToggleAlertRequest
	if errs := xhttp.ReadAndValidateRequest(c, &req); errs != nil {
		return xhttp.BadRequestResponse(c, errs)
	}
	alert, err := h.alerts.SetEnabled(c.Request().Context(), req.User, req.ID, *req.Enabled)
	if err != nil {
		return h.fail(c, "toggle alert", err)
	}
	return xhttp.SuccessResponse(c, alert)
}

func (h *Handler) DeleteAlert(c echo.Context) error {
	var req models.AlertIDRequest
	if errs := xhttp.ReadAndValidateRequest(c, &req); errs != nil {
		return xhttp.BadRequestResponse(c, errs)
	}
	if err := h.alerts.Delete(c.Request().Context(), req.User, req.ID); err != nil {
		return h.fail(c, "delete alert", err)
	}
	return xhttp.NoContentResponse(c)
}

func (h *Handler) NotificationLogs(c echo.Context) error {
	logs := h.notify.Logs()
	return xhttp.ListResponse(c, logs, int64(len(logs)))
}

func (h *Handler) ClearNotificationLogs(c echo.Context) error {
	h.notify.ClearLogs()
	return xhttp.NoContentResponse(c)
}

func (h *Handler) NotificationPreferences(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.notify.MaskedPreferences())
}

func (h *Handler) UpdateChannel(c echo.Context) error {
	var req models.UpdateChannelRequest
	if errs := xhttp.ReadAndValidateRequest(c, &req); errs != nil {
		return xhttp.BadRequestResponse(c, errs)
	}
	ch := models.Channel(req.Channel)
	h.notify.UpdatePreference(ch, models.ChannelPreference{
		Enabled:     req.Enabled,
		Destination: req.Destination,
		Priorities:  req.Priorities,
	})
	h.logger.Info("notification channel updated",
		xlogger.String("channel", req.Channel),
		xlogger.Bool("enabled", req.Enabled))
	return xhttp.SuccessResponse(c, h.notify.MaskedPreferences()[ch])
}
