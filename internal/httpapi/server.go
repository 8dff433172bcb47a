package httpapi

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/BrandonDHaskell/Portunus/door/internal/portunus/types"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

// DoorSource is the read-only view of the door loop the API serves.
type DoorSource interface {
	Status() types.DoorStatus
	RecentEvents(ctx context.Context, limit int) ([]types.AccessEvent, error)
}

type Dependencies struct {
	Logger *log.Logger
	Addr   string
	Door   DoorSource
}

type Server struct {
	httpServer *http.Server
	logger     *log.Logger
	mux        *http.ServeMux
	door       DoorSource
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	s := &Server{
		logger: d.Logger,
		mux:    mux,
		door:   d.Door,
	}

	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/events", s.handleEvents)

	handler := loggingMiddleware(d.Logger, mux)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.door.Status()

	if wantsProtobuf(r) {
		msg, err := statusToProto(st)
		if err != nil {
			s.logger.Printf("status proto error: %v", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
			return
		}
		writeProto(w, http.StatusOK, msg)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "bad_limit", "limit must be a positive integer")
			return
		}
		limit = min(n, maxEventLimit)
	}

	events, err := s.door.RecentEvents(r.Context(), limit)
	if err != nil {
		s.logger.Printf("events error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}

	resp := types.EventsResponse{
		OK:         true,
		Events:     events,
		ServerTime: time.Now().UTC().Format(time.RFC3339Nano),
	}

	if wantsProtobuf(r) {
		msg, err := eventsToProto(resp)
		if err != nil {
			s.logger.Printf("events proto error: %v", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
			return
		}
		writeProto(w, http.StatusOK, msg)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
