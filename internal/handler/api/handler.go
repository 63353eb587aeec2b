package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	domrepo "EstateDesk/internal/domain/repository"
	"EstateDesk/internal/domain/service"
	apimetrics "EstateDesk/internal/service/metrics"
	"EstateDesk/internal/services/alerts"
	"EstateDesk/internal/services/features"
	"EstateDesk/internal/services/notify"
	"EstateDesk/internal/usecase"
	xhttp "EstateDesk/pkg/http"
	xlogger "EstateDesk/pkg/logger"
)

var _ xhttp.Handler = (*Handler)(nil)

// Handler serves the /api routes.
type Handler struct {
	logger   *xlogger.Logger
	feed     *usecase.PropertyFeed
	market   service.MarketFeed
	patterns *features.PatternAnalyzer
	alerts   *alerts.Service
	notify   *notify.Service
	stream   *streamer
	mw       []echo.MiddlewareFunc
}

type Option func(*Handler)

// WithStreamOrigins restricts websocket upgrades to the given origins. An
// empty list accepts any origin.
func WithStreamOrigins(origins []string) Option {
	return func(h *Handler) { h.stream.origins = origins }
}

// WithStreamBuffer sets the per-connection outbound queue length.
func WithStreamBuffer(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.stream.buffer = n
		}
	}
}

// WithGroupMiddleware applies mw to every /api route.
func WithGroupMiddleware(mw ...echo.MiddlewareFunc) Option {
	return func(h *Handler) { h.mw = append(h.mw, mw...) }
}

func NewHandler(
	logger *xlogger.Logger,
	feed *usecase.PropertyFeed,
	market service.MarketFeed,
	patterns *features.PatternAnalyzer,
	alertSvc *alerts.Service,
	notifySvc *notify.Service,
	opts ...Option,
) *Handler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	apimetrics.Register()
	h := &Handler{
		logger:   logger.With(xlogger.String("component", "api")),
		feed:     feed,
		market:   market,
		patterns: patterns,
		alerts:   alertSvc,
		notify:   notifySvc,
	}
	h.stream = newStreamer(market, h.logger)
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api", h.mw...)

	g.GET("/properties", h.timed("properties", h.Properties))
	g.GET("/properties/export.csv", h.timed("properties_export", h.ExportCSV))
	g.GET("/properties/:id", h.timed("property", h.Property))
	g.GET("/compliance/watchlist", h.timed("watchlist", h.Watchlist))
	g.GET("/compliance/riskmap", h.timed("riskmap", h.RiskMap))
	g.GET("/dashboard/agent", h.timed("agent_dashboard", h.AgentDashboard))
	g.GET("/feed/client", h.timed("client_feed", h.ClientFeed))
	g.GET("/preferences/:user", h.timed("preferences_get", h.GetPreferences))
	g.PUT("/preferences/:user", h.timed("preferences_put", h.PutPreferences))
	g.GET("/recommendations", h.timed("recommendations", h.Recommendations))
	g.GET("/insights", h.timed("insights", h.Insights))

	m := g.Group("/market")
	m.GET("/data", h.timed("market_data", h.MarketData))
	m.GET("/data/:id", h.timed("market_data_one", h.MarketDataByID))
	m.GET("/tickers", h.timed("market_tickers", h.Tickers))
	m.GET("/config", h.timed("market_config", h.Config))
	m.POST("/pause", h.timed("market_pause", h.Pause))
	m.POST("/resume", h.timed("market_resume", h.Resume))
	m.PUT("/volatility", h.timed("market_volatility", h.SetVolatility))
	m.PUT("/frequency", h.timed("market_frequency", h.SetFrequency))
	m.GET("/portfolio", h.timed("market_portfolio", h.Portfolio))
	m.GET("/patterns", h.timed("market_patterns", h.Patterns))
	m.GET("/snapshots", h.timed("snapshots_list", h.Snapshots))
	m.POST("/snapshots", h.timed("snapshots_take", h.TakeSnapshot))
	m.POST("/snapshots/restore", h.timed("snapshots_restore", h.RestoreSnapshot))
	m.DELETE("/snapshots", h.timed("snapshots_clear", h.ClearSnapshots))
	m.GET("/stream", h.stream.serve)

	g.GET("/alerts", h.timed("alerts_list", h.ListAlerts))
	g.POST("/alerts", h.timed("alerts_create", h.CreateAlert))
	g.PATCH("/alerts/:id", h.timed("alerts_toggle", h.ToggleAlert))
	g.DELETE("/alerts/:id", h.timed("alerts_delete", h.DeleteAlert))

	g.GET("/notifications/logs", h.timed("notification_logs", h.NotificationLogs))
	g.DELETE("/notifications/logs", h.timed("notification_logs_clear", h.ClearNotificationLogs))
	g.GET("/notifications/preferences", h.timed("notification_prefs", h.NotificationPreferences))
	g.PUT("/notifications/preferences/:channel", h.timed("notification_prefs_put", h.UpdateChannel))
}

// timed records latency per endpoint and counts 5xx answers as errors.
func (h *Handler) timed(endpoint string, fn echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := fn(c)
		var failed error
		if err != nil {
			failed = err
		} else if c.Response().Status >= http.StatusInternalServerError {
			failed = errors.New(http.StatusText(c.Response().Status))
		}
		apimetrics.Observe(endpoint, start, failed)
		return err
	}
}

// fail maps domain errors onto API errors and logs anything unexpected.
func (h *Handler) fail(c echo.Context, op string, err error) error {
	switch {
	case errors.Is(err, domrepo.ErrPropertyNotFound):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("property not found").WithError(err))
	case errors.Is(err, alerts.ErrAlertNotFound):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("alert not found").WithError(err))
	case errors.Is(err, alerts.ErrInvalidRange):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	h.logger.Error(op+" failed", xlogger.String("path", c.Path()), xlogger.Error(err))
	return xhttp.AppErrorResponse(c, xhttp.InternalError("internal error").WithError(err))
}
