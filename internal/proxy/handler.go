package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"predict-console/internal/api"
	"predict-console/internal/backend"
	"predict-console/internal/config"
	"predict-console/internal/storage"
	"predict-console/internal/supervisor"
)

type ctxKey string

const ctxProxyErrKey ctxKey = "proxy_err"

// proxyErr carries the transport error from ErrorHandler back to ServeHTTP.
type proxyErr struct {
	err error
}

// Handler is the console's top-level http.Handler: UI pages, the /api dev
// proxy to the backend, telemetry API, metrics, health and live events.
type Handler struct {
	cfg           config.Config
	features      config.Features
	logger        *slog.Logger
	proxy         *httputil.ReverseProxy
	target        *url.URL
	pages         http.Handler
	static        http.Handler
	apiServer     *api.Server
	tracker       *supervisor.Tracker
	eventBus      *supervisor.EventBus
	metrics       *supervisor.Metrics
	healthChecker *supervisor.HealthChecker
	upgrader      websocket.Upgrader
}

// NewHandler constructs the handler. pages serves the UI routes; any of the
// telemetry collaborators may be nil.
func NewHandler(
	cfg config.Config,
	target *url.URL,
	pages http.Handler,
	assets fs.FS,
	apiServer *api.Server,
	tracker *supervisor.Tracker,
	eventBus *supervisor.EventBus,
	metrics *supervisor.Metrics,
	healthChecker *supervisor.HealthChecker,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		cfg:           cfg,
		features:      cfg.Features(),
		logger:        logger,
		target:        target,
		pages:         pages,
		apiServer:     apiServer,
		tracker:       tracker,
		eventBus:      eventBus,
		metrics:       metrics,
		healthChecker: healthChecker,
	}

	if assets != nil {
		if sub, err := fs.Sub(assets, "static"); err == nil {
			h.static = http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		}
	}

	h.proxy = &httputil.ReverseProxy{
		Rewrite:       h.rewrite,
		FlushInterval: cfg.FlushInterval,
		ErrorHandler:  h.proxyError,
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkWSOrigin,
	}

	return h
}

// ServeHTTP routes the request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case h.features.API && h.apiServer != nil && h.apiServer.Handles(path):
		h.setCORS(w)
		h.apiServer.ServeHTTP(w, r)
	case h.features.Metrics && path == "/metrics" && r.Method == http.MethodGet:
		h.handleMetrics(w, r)
	case path == "/healthz":
		h.handleHealthz(w, r)
	case path == "/healthz/backend":
		h.handleHealthzBackend(w, r)
	case h.features.Events && path == "/events" && r.Method == http.MethodGet:
		h.handleSSEEvents(w, r)
	case h.features.Events && path == "/ws" && r.Method == http.MethodGet:
		h.handleWebSocket(w, r)
	case strings.HasPrefix(path, "/static/") && h.static != nil:
		h.static.ServeHTTP(w, r)
	case h.isAPIPath(path):
		h.serveProxy(w, r)
	case h.pages != nil:
		h.pages.ServeHTTP(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) isAPIPath(path string) bool {
	p := h.cfg.APIPrefix
	return path == p || strings.HasPrefix(path, p+"/")
}

// backendPath maps a console path onto the backend path.
func (h *Handler) backendPath(path string) string {
	if !h.cfg.ProxyStripPrefix {
		return path
	}
	out := strings.TrimPrefix(path, h.cfg.APIPrefix)
	if out == "" {
		out = "/"
	}
	return out
}

// classifyRoute labels a call by the backend endpoint it targets, whether
// or not the prefix is stripped.
func (h *Handler) classifyRoute(path string) storage.Route {
	switch strings.TrimPrefix(path, h.cfg.APIPrefix) {
	case backend.PathPredict:
		return storage.RoutePredict
	case backend.PathHealth:
		return storage.RouteHealth
	case backend.PathRecords:
		return storage.RouteRecords
	default:
		return storage.RouteOther
	}
}

// serveProxy forwards one /api call and records its telemetry.
func (h *Handler) serveProxy(w http.ResponseWriter, r *http.Request) {
	h.setCORS(w)
	if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	backendPath := h.backendPath(r.URL.Path)

	var callID string
	if h.tracker != nil {
		callID = h.tracker.Start(h.classifyRoute(r.URL.Path), r.Method, backendPath)
	}

	var body *CountingReader
	if r.Body != nil && r.Body != http.NoBody {
		body = NewCountingReader(r.Body)
		r.Body = body
	}

	perr := &proxyErr{}
	cw := NewCountingWriter(w)
	h.proxy.ServeHTTP(cw, r.WithContext(context.WithValue(r.Context(), ctxProxyErrKey, perr)))

	if h.tracker == nil {
		return
	}
	out := supervisor.Outcome{
		HTTPStatus: cw.StatusCode(),
		BytesOut:   cw.BytesWritten(),
		Err:        perr.err,
		Canceled:   perr.err != nil && r.Context().Err() != nil,
	}
	if body != nil {
		out.BytesIn = body.BytesRead()
	}
	h.tracker.Finish(callID, out)
}

// rewrite strips the API prefix and points the request at the backend. With
// ProxyChangeOrigin the Host and Origin headers name the backend, as the
// backend sees a same-origin request.
func (h *Handler) rewrite(pr *httputil.ProxyRequest) {
	pr.Out.URL.Path = h.backendPath(pr.In.URL.Path)
	pr.Out.URL.RawPath = ""
	pr.SetURL(h.target)
	pr.SetXForwarded()

	if !h.cfg.ProxyChangeOrigin {
		pr.Out.Host = pr.In.Host
		return
	}
	if pr.Out.Header.Get("Origin") != "" {
		pr.Out.Header.Set("Origin", h.target.Scheme+"://"+h.target.Host)
	}
}

// proxyError answers 502 with a JSON detail so the UI can render it.
func (h *Handler) proxyError(w http.ResponseWriter, r *http.Request, err error) {
	if perr, ok := r.Context().Value(ctxProxyErrKey).(*proxyErr); ok {
		perr.err = err
	}
	if errors.Is(err, context.Canceled) {
		h.logger.Debug("backend call canceled", "path", r.URL.Path)
	} else {
		h.logger.Error("backend proxy error", "err", err, "path", r.URL.Path)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)
	json.NewEncoder(w).Encode(map[string]string{"detail": backend.MsgTransport})
}

func (h *Handler) setCORS(w http.ResponseWriter) {
	if h.cfg.CORSAllowOrigin == "" {
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", h.cfg.CORSAllowOrigin)
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
}

func (h *Handler) handleSSEEvents(w http.ResponseWriter, r *http.Request) {
	if h.eventBus == nil {
		http.Error(w, "event bus not available", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	h.setCORS(w)

	eventCh := h.eventBus.Subscribe()
	defer h.eventBus.Unsubscribe(eventCh)

	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			sseData, err := supervisor.FormatSSEEvent(event)
			if err != nil {
				continue
			}
			if _, err := w.Write([]byte(sseData)); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

const wsWriteWait = 10 * time.Second

// handleWebSocket streams the same events as /events over a WebSocket.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.eventBus == nil {
		http.Error(w, "event bus not available", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.logger.Debug("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	eventCh := h.eventBus.Subscribe()
	defer h.eventBus.Unsubscribe(eventCh)

	// The reader only watches for the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(wsWriteWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		}
	}
}

// checkWSOrigin accepts same-host origins and the configured CORS origin.
func (h *Handler) checkWSOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if h.cfg.CORSAllowOrigin == "*" || origin == h.cfg.CORSAllowOrigin {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if h.metrics == nil {
		http.Error(w, "metrics not enabled", http.StatusServiceUnavailable)
		return
	}
	promhttp.Handler().ServeHTTP(w, r)
}

// handleHealthz is the console's own liveness; it does not depend on the backend.
func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) handleHealthzBackend(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.healthChecker == nil {
		json.NewEncoder(w).Encode(map[string]any{
			"healthy":    true,
			"monitored":  false,
			"last_check": time.Now().Format(time.RFC3339),
		})
		return
	}

	snap := h.healthChecker.Snapshot()
	if !snap.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(snap)
}
