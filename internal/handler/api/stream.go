package api

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"EstateDesk/internal/domain/models"
	"EstateDesk/internal/domain/service"
	xhttp "EstateDesk/pkg/http"
	xlogger "EstateDesk/pkg/logger"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
	streamReadLimit  = 512
)

// StreamMessage is one frame on /api/market/stream.
type StreamMessage struct {
	Type      string      `json:"type"` // market, tickers or config
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

type streamer struct {
	market  service.MarketFeed
	logger  *xlogger.Logger
	origins []string
	buffer  int
	up      websocket.Upgrader
}

func newStreamer(market service.MarketFeed, logger *xlogger.Logger) *streamer {
	s := &streamer{market: market, logger: logger, buffer: 256}
	s.up = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *streamer) checkOrigin(r *http.Request) bool {
	if len(s.origins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, o := range s.origins {
		if o == "*" || strings.EqualFold(o, origin) || strings.EqualFold(o, u.Host) {
			return true
		}
	}
	return false
}

func (s *streamer) serve(c echo.Context) error {
	var req models.StreamRequest
	if errs := xhttp.ReadAndValidateRequest(c, &req); errs != nil {
		return xhttp.BadRequestResponse(c, errs)
	}
	ids := parseIDs(req.IDs)
	if len(ids) == 0 {
		for _, d := range s.market.AllMarketData() {
			ids = append(ids, d.PropertyID)
		}
	}

	conn, err := s.up.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already answered the client.
		s.logger.Warn("websocket upgrade failed", xlogger.Error(err))
		return nil
	}

	sc := &streamConn{
		conn:   conn,
		out:    make(chan StreamMessage, s.buffer),
		done:   make(chan struct{}),
		logger: s.logger.With(xlogger.String("remote", c.RealIP())),
	}
	subs := make([]*service.Subscription, 0, len(ids)+2)
	subs = append(subs, s.market.SubscribeConfig(func(cfg models.MarketConfig) {
		sc.send("config", cfg)
	}))
	subs = append(subs, s.market.SubscribeTickers(func(t []models.MarketTicker) {
		sc.send("tickers", t)
	}))
	for _, id := range ids {
		subs = append(subs, s.market.Subscribe(id, func(d models.MarketData) {
			sc.send("market", d)
		}))
	}
	sc.logger.Info("stream opened", xlogger.Int("properties", len(ids)))

	go sc.readLoop()
	sc.writeLoop()

	for _, sub := range subs {
		sub.Close()
	}
	sc.logger.Info("stream closed", xlogger.Int("dropped", sc.droppedCount()))
	return nil
}

func parseIDs(raw string) []string {
	if raw == "" {
		return nil
	}
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, id := range strings.Split(raw, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

type streamConn struct {
	conn   *websocket.Conn
	out    chan StreamMessage
	done   chan struct{}
	once   sync.Once
	logger *xlogger.Logger

	mu      sync.Mutex
	dropped int
}

// send never blocks the market loop; a slow client loses frames.
func (sc *streamConn) send(kind string, data interface{}) {
	select {
	case <-sc.done:
		return
	default:
	}
	msg := StreamMessage{Type: kind, Data: data, Timestamp: time.Now().UTC()}
	select {
	case sc.out <- msg:
	default:
		sc.mu.Lock()
		sc.dropped++
		sc.mu.Unlock()
	}
}

func (sc *streamConn) droppedCount() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.dropped
}

func (sc *streamConn) close() {
	sc.once.Do(func() { close(sc.done) })
}

// readLoop discards client frames and detects disconnects.
func (sc *streamConn) readLoop() {
	defer sc.close()
	sc.conn.SetReadLimit(streamReadLimit)
	_ = sc.conn.SetReadDeadline(time.Now().Add(streamPongWait))
	sc.conn.SetPongHandler(func(string) error {
		return sc.conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := sc.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				sc.logger.Debug("stream read failed", xlogger.Error(err))
			}
			return
		}
	}
}

func (sc *streamConn) writeLoop() {
	ping := time.NewTicker(streamPingPeriod)
	defer func() {
		ping.Stop()
		sc.close()
		_ = sc.conn.Close()
	}()
	for {
		select {
		case <-sc.done:
			_ = sc.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(streamWriteWait))
			return
		case msg := <-sc.out:
			_ = sc.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := sc.conn.WriteJSON(msg); err != nil {
				sc.logger.Debug("stream write failed", xlogger.Error(err))
				return
			}
		case <-ping.C:
			_ = sc.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := sc.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
