package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/obs"
	"main/internal/scheduler"
	"main/internal/schema"
)

const writeTimeout = 10 * time.Second

// Server exposes the execution engine over HTTP: order creation, a
// per-order websocket status stream, and metrics.
type Server struct {
	sched    *scheduler.Scheduler
	bus      *bus.Bus
	metrics  *obs.Metrics
	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

// NewServer wires the HTTP surface. It does not start listening.
func NewServer(addr string, sched *scheduler.Scheduler, b *bus.Bus, metrics *obs.Metrics) *Server {
	s := &Server{
		sched:   sched,
		bus:     b,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /orders", s.handleCreateOrder)
	mux.HandleFunc("GET /orders/{id}/stream", s.handleStream)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves until the listener fails or Close is called.
func (s *Server) Run() error {
	logs.Infof("http listening on %s", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close shuts the listener down gracefully.
func (s *Server) Close(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Handler returns the route handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

type createOrderResponse struct {
	OrderID   string `json:"orderId"`
	StreamURL string `json:"streamUrl"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleCreateOrder validates the request at the boundary; malformed orders
// never reach the scheduler.
func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req schema.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}
	if req.Kind == "" {
		req.Kind = schema.OrderKindMarket
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	order := schema.NewOrder(req)
	if err := s.sched.Submit(order); err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, scheduler.ErrQueueFull) {
			status = http.StatusTooManyRequests
		}
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, createOrderResponse{
		OrderID:   order.ID,
		StreamURL: "/orders/" + order.ID + "/stream",
	})
}

// handleStream upgrades to a websocket and forwards the order's status
// events in emission order until a terminal event. A second subscriber for
// the same order replaces the first.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("id")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing order id"})
		return
	}

	events, err := s.bus.Subscribe(orderID)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.bus.Unsubscribe(orderID)
		return
	}
	defer conn.Close()

	// Reader goroutine only to detect client disconnect.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			s.bus.Unsubscribe(orderID)
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				s.bus.Unsubscribe(orderID)
				return
			}
			if ev.Status.IsTerminal() {
				s.bus.Unsubscribe(orderID)
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(ev.Status)),
					time.Now().Add(writeTimeout))
				return
			}
		}
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"scheduler": s.sched.GetMetrics(),
		"pipeline":  s.metrics.Snapshot(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logs.Errorf("encode response, err: %+v", err)
	}
}
