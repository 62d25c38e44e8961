package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"github.com/dgnsrekt/habla/internal/cache"
	"github.com/dgnsrekt/habla/internal/coordinator"
	"github.com/dgnsrekt/habla/internal/playback"
)

// StateSource provides the data served on /debug/state.
type StateSource struct {
	Snapshot func() coordinator.Snapshot
	Cache    func() cache.CacheStats
	Playback func() playback.Stats
	Mode     func() string
}

// DebugServer serves metrics and a JSON view of the coordinator on a
// local address.
type DebugServer struct {
	srv    *http.Server
	logger *log.Logger
}

type stateResponse struct {
	State      string `json:"state"`
	Visibility string `json:"visibility"`
	OpID       uint64 `json:"op_id"`
	Messages   int    `json:"messages"`
	Playing    string `json:"playing,omitempty"`
	Status     string `json:"status,omitempty"`
	NeedsPrime bool   `json:"needs_prime"`
	Mode       string `json:"capture_mode,omitempty"`

	Cache    *cacheResponse  `json:"cache,omitempty"`
	Playback *playback.Stats `json:"playback,omitempty"`
}

type cacheResponse struct {
	Entries    int64   `json:"entries"`
	Size       string  `json:"size"`
	Playing    int64   `json:"playing"`
	HitRate    float64 `json:"hit_rate"`
	Evictions  int64   `json:"evictions"`
	Throwaways int64   `json:"throwaways"`
}

// NewDebugServer builds the router.
func NewDebugServer(addr string, metrics *Metrics, src StateSource, logger *log.Logger) *DebugServer {
	if logger == nil {
		logger = log.Default().WithPrefix("debug")
	}
	return &DebugServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(metrics, src),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// NewRouter exposes /metrics, /debug/state and /healthz.
func NewRouter(metrics *Metrics, src StateSource) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	if metrics != nil {
		r.Handle("/metrics", metrics.Handler())
	}
	r.Get("/debug/state", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, buildState(src))
	})
	return r
}

func buildState(src StateSource) stateResponse {
	var resp stateResponse
	if src.Snapshot != nil {
		s := src.Snapshot()
		resp.State = s.State.String()
		resp.Visibility = s.Visibility.String()
		resp.OpID = s.OpID
		resp.Messages = len(s.Messages)
		resp.Playing = s.Playing
		resp.Status = s.Status
		resp.NeedsPrime = s.NeedsPrime
	}
	if src.Mode != nil {
		resp.Mode = src.Mode()
	}
	if src.Cache != nil {
		cs := src.Cache()
		resp.Cache = &cacheResponse{
			Entries:    cs.ItemCount,
			Size:       humanize.Bytes(uint64(cs.Size)),
			Playing:    cs.Playing,
			HitRate:    cs.HitRate,
			Evictions:  cs.Evictions,
			Throwaways: cs.Throwaways,
		}
	}
	if src.Playback != nil {
		ps := src.Playback()
		resp.Playback = &ps
	}
	return resp
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// Start listens in the background. It returns once the address is bound.
func (s *DebugServer) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("debug server listening", "addr", ln.Addr().String())
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("debug server", "err", err)
		}
	}()
	return nil
}

// Shutdown stops the server.
func (s *DebugServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
