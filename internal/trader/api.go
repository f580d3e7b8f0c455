package trader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dvvvvv411/lead-whisperer-portal-sub000/internal/database"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const streamBuffer = 64

// APIServer provides an HTTP interface for the session controller.
type APIServer struct {
	server     *http.Server
	controller *Controller
	logger     *zap.Logger
	upgrader   websocket.Upgrader
}

// NewAPIServer creates a new APIServer listening on port.
func NewAPIServer(controller *Controller, port int, logger *zap.Logger) *APIServer {
	s := &APIServer{
		controller: controller,
		logger:     logger.Named("api-server"),
		upgrader:   websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Routes returns the API handler.
func (s *APIServer) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.statusHandler)
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("POST /sessions", s.startHandler)
	mux.HandleFunc("GET /sessions/{account}", s.sessionHandler)
	mux.HandleFunc("DELETE /sessions/{account}", s.cancelHandler)
	mux.HandleFunc("POST /sessions/{account}/ack", s.ackHandler)
	mux.HandleFunc("GET /accounts/{account}/quota", s.quotaHandler)
	mux.HandleFunc("GET /ws/status", s.streamHandler)
	return mux
}

// Start runs the HTTP server in a new goroutine.
func (s *APIServer) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *APIServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}

func (s *APIServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := struct {
		UUID      string `json:"uuid"`
		Name      string `json:"name"`
		Strategy  string `json:"strategy"`
		StartTime string `json:"start_time"`
		Uptime    string `json:"uptime"`
	}{
		UUID:      s.controller.UUID,
		Name:      s.controller.Name,
		Strategy:  s.controller.Strategy().Name(),
		StartTime: s.controller.StartTime.Format(time.RFC3339),
		Uptime:    time.Since(s.controller.StartTime).String(),
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *APIServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (s *APIServer) startHandler(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}

	session, err := s.controller.Start(r.Context(), req)
	if err != nil {
		s.writeError(w, httpStatusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, session)
}

func (s *APIServer) sessionHandler(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("account")
	s.writeJSON(w, http.StatusOK, NewStatusView(accountID, s.controller.Status(accountID)))
}

func (s *APIServer) cancelHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Cancel(r.PathValue("account")); err != nil {
		s.writeError(w, httpStatusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *APIServer) ackHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Acknowledge(r.PathValue("account")); err != nil {
		s.writeError(w, httpStatusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *APIServer) quotaHandler(w http.ResponseWriter, r *http.Request) {
	usage, err := s.controller.Quota(r.Context(), r.PathValue("account"))
	if err != nil {
		s.writeError(w, httpStatusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, usage)
}

// streamHandler pushes status events over a websocket. ?account= limits
// the stream to one account.
func (s *APIServer) streamHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	accountID := r.URL.Query().Get("account")
	sub := s.controller.Subscribe(streamBuffer)
	defer s.controller.Unsubscribe(sub)

	// Detect client disconnects; the stream is write-only.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if accountID != "" {
		if err := conn.WriteJSON(NewStatusView(accountID, s.controller.Status(accountID))); err != nil {
			return
		}
	}

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			if accountID != "" && ev.AccountID != accountID {
				continue
			}
			view := NewStatusView(ev.AccountID, ev.Status)
			view.At = ev.At
			if err := conn.WriteJSON(view); err != nil {
				return
			}
		}
	}
}

// StatusView is the wire form of a Status.
type StatusView struct {
	AccountID string       `json:"account_id"`
	Phase     Phase        `json:"phase"`
	At        time.Time    `json:"at,omitempty"`
	SessionID string       `json:"session_id,omitempty"`
	Reason    string       `json:"reason,omitempty"`
	Message   string       `json:"message,omitempty"`
	Fatal     bool         `json:"fatal,omitempty"`
	Session   *Session     `json:"session,omitempty"`
	Progress  *Progress    `json:"progress,omitempty"`
	Trade     *TradeResult `json:"trade,omitempty"`
}

// NewStatusView flattens a status for JSON clients.
func NewStatusView(accountID string, status Status) StatusView {
	v := StatusView{AccountID: accountID, Phase: status.Phase()}
	switch st := status.(type) {
	case Eligible:
		v.SessionID = st.SessionID
	case Simulating:
		v.SessionID = st.Session.ID
		v.Session = &st.Session
		v.Progress = &st.Progress
	case Completing:
		v.SessionID = st.Session.ID
		v.Session = &st.Session
	case Result:
		v.SessionID = st.Session.ID
		v.Session = &st.Session
		v.Trade = st.Trade
		v.Reason = st.Reason()
		v.Fatal = st.Fatal
		if st.Err != nil {
			v.Message = st.Err.Error()
		}
	case Rejected:
		v.SessionID = st.SessionID
		v.Reason = st.Reason()
		v.Message = st.Err.Error()
	case Cancelled:
		v.SessionID = st.Session.ID
		v.Session = &st.Session
		v.Reason = st.Reason
	}
	return v
}

func httpStatusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidAccount):
		return http.StatusBadRequest
	case errors.Is(err, database.ErrAccountNotFound),
		errors.Is(err, ErrNoActiveSession):
		return http.StatusNotFound
	case errors.Is(err, ErrSessionAlreadyActive),
		errors.Is(err, ErrSessionCompleting),
		errors.Is(err, ErrNoResult):
		return http.StatusConflict
	case errors.Is(err, ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrNoEligibleAsset):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrShuttingDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

func (s *APIServer) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error(), Reason: ReasonCode(err)})
}

func (s *APIServer) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to write response", zap.Error(err))
	}
}
