package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/adwski/watchparty/model"
	"github.com/adwski/watchparty/registry"
	"github.com/rs/zerolog"
)

const (
	defaultShutdownDeadline = 10 * time.Second
	defaultHistoryLimit     = 100
)

var (
	ErrUnexpected = errors.New("unexpected server error")
)

// RoomService answers read-only room snapshot lookups. Joins happen over
// the websocket, never here.
type RoomService interface {
	Get(roomCode string) (model.RoomSnapshot, error)
}

// ChatHistory serves messages from the durable store; nil when persistence
// is disabled.
type ChatHistory interface {
	RecentMessages(ctx context.Context, roomCode string, limit int) ([]model.ChatMessage, error)
}

type GenericResponse struct {
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type Server struct {
	logger  zerolog.Logger
	rooms   RoomService
	history ChatHistory
	*http.Server
}

type Config struct {
	Logger      *zerolog.Logger
	RoomService RoomService
	ChatHistory ChatHistory
	ListenAddr  string
}

func NewServer(cfg Config) *Server {
	srv := &Server{
		logger:  cfg.Logger.With().Str("component", "api-server").Logger(),
		rooms:   cfg.RoomService,
		history: cfg.ChatHistory,
	}

	r := http.NewServeMux()
	r.HandleFunc("GET /api/room/{roomCode}", srv.roomStatus)
	r.HandleFunc("GET /api/room/{roomCode}/history", srv.roomHistory)
	r.HandleFunc("GET /healthz", srv.healthz)
	r.HandleFunc("OPTIONS /", corsHandler)

	srv.Server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}
	return srv
}

func corsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.WriteHeader(http.StatusNoContent)
}

func (srv *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (srv *Server) roomStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	roomCode := r.PathValue("roomCode")

	snap, err := srv.rooms.Get(roomCode)
	if err != nil {
		if errors.Is(err, registry.ErrRoomNotFound) {
			writeJSON(w, http.StatusNotFound, &GenericResponse{Error: "room is not found"})
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, &GenericResponse{Data: snap})
}

func (srv *Server) roomHistory(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if srv.history == nil {
		writeJSON(w, http.StatusNotImplemented, &GenericResponse{Error: "history is not enabled"})
		return
	}

	roomCode := r.PathValue("roomCode")
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	msgs, err := srv.history.RecentMessages(r.Context(), roomCode, limit)
	if err != nil {
		srv.logger.Error().Err(err).Str("roomCode", roomCode).Msg("history lookup failed")
		writeJSON(w, http.StatusInternalServerError, &GenericResponse{Error: "history lookup failed"})
		return
	}
	writeJSON(w, http.StatusOK, &GenericResponse{Data: msgs})
}

func writeJSON(w http.ResponseWriter, code int, resp *GenericResponse) {
	b, err := json.Marshal(resp)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(code)
	if _, err = w.Write(b); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}

func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	hErr := make(chan error)
	go func() {
		hErr <- srv.ListenAndServe()
	}()

	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-hErr:
		if !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Join(ErrUnexpected, err)
		}
	case <-ctx.Done():
		shCtx, shCancel := context.WithTimeout(context.Background(), defaultShutdownDeadline)
		defer shCancel()
		if err := srv.Shutdown(shCtx); err != nil {
			srv.logger.Error().Err(err).Msg("server shutdown failed")
		}
	}
}
