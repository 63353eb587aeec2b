package api

import (
	"bytes"
	"net/http"

	"github.com/labstack/echo/v4"

	"EstateDesk/internal/domain/models"
	xhttp "EstateDesk/pkg/http"
)

func (h *Handler) Properties(c echo.Context) error {
	props, err := h.feed.Properties(c.Request().Context())
	if err != nil {
		return h.fail(c, "list properties", err)
	}
	return xhttp.ListResponse(c, props, int64(len(props)))
}

func (h *Handler) Property(c echo.Context) error {
	var req models.PropertyIDRequest
	if errs := xhttp.ReadAndValidateRequest(c, &req); errs != nil {
		return xhttp.BadRequestResponse(c, errs)
	}
	p, err := h.feed.Property(c.Request().Context(), req.ID)
	if err != nil {
		return h.fail(c, "get property", err)
	}
	return xhttp.SuccessResponse(c, p)
}

// ExportCSV writes the analyzed listing as an attachment.
func (h *Handler) ExportCSV(c echo.Context) error {
	var buf bytes.Buffer
	if err := h.feed.ExportCSV(c.Request().Context(), &buf); err != nil {
		return h.fail(c, "export properties", err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="properties.csv"`)
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (h *Handler) Watchlist(c echo.Context) error {
	props, err := h.feed.Watchlist(c.Request().Context())
	if err != nil {
		return h.fail(c, "watchlist", err)
	}
	return xhttp.ListResponse(c, props, int64(len(props)))
}

func (h *Handler) RiskMap(c echo.Context) error {
	props, err := h.feed.RiskMap(c.Request().Context())
	if err != nil {
		return h.fail(c, "risk map", err)
	}
	return xhttp.ListResponse(c, props, int64(len(props)))
}

func (h *Handler) AgentDashboard(c echo.Context) error {
	d, err := h.feed.AgentDashboard(c.Request().Context())
	if err != nil {
		return h.fail(c, "agent dashboard", err)
	}
	return xhttp.SuccessResponse(c, d)
}

func (h *Handler) ClientFeed(c echo.Context) error {
	var req models.UserRequest
	if errs := xhttp.ReadAndValidateRequest(c, &req); errs != nil {
		return xhttp.BadRequestResponse(c, errs)
	}
	feed, err := h.feed.ClientFeed(c.Request().Context(), req.User)
	if err != nil {
		return h.fail(c, "client feed", err)
	}
	return xhttp.SuccessResponse(c, feed)
}

func (h *Handler) GetPreferences(c echo.Context) error {
	var req models.PreferencesPathRequest
	if errs := xhttp.ReadAndValidateRequest(c, &req); errs != nil {
		return xhttp.BadRequestResponse(c, errs)
	}
	prefs, err := h.feed.Preferences(c.Request().Context(), req.User)
	if err != nil {
		return h.fail(c, "get preferences", err)
	}
	return xhttp.SuccessResponse(c, prefs)
}

func (h *Handler) PutPreferences(c echo.Context) error {
	var req models.UpdatePreferencesRequest
	if errs := xhttp.ReadAndValidateRequest(c, &req); errs != nil {
		return xhttp.BadRequestResponse(c, errs)
	}
	if err := h.feed.SavePreferences(c.Request().Context(), req.User, req.Preferences); err != nil {
		return h.fail(c, "save preferences", err)
	}
	return xhttp.SuccessResponse(c, req.Preferences)
}

func (h *Handler) Recommendations(c echo.Context) error {
	var req models.UserRequest
	if errs := xhttp.ReadAndValidateRequest(c, &req); errs != nil {
		return xhttp.BadRequestResponse(c, errs)
	}
	recs, err := h.feed.Recommendations(c.Request().Context(), req.User)
	if err != nil {
		return h.fail(c, "recommendations", err)
	}
	return xhttp.ListResponse(c, recs, int64(len(recs)))
}

func (h *Handler) Insights(c echo.Context) error {
	var req models.UserRequest
	if errs := xhttp.ReadAndValidateRequest(c, &req); errs != nil {
		return xhttp.BadRequestResponse(c, errs)
	}
	insights, err := h.feed.Insights(c.Request().Context(), req.User)
	if err != nil {
		return h.fail(c, "insights", err)
	}
	return xhttp.ListResponse(c, insights, int64(len(insights)))
}
