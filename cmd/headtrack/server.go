package main

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skyrookie/opentrack/internal/httputil"
	"github.com/skyrookie/opentrack/internal/pipeline"
	"github.com/skyrookie/opentrack/internal/pose"
)

// wsPushInterval paces the websocket pose stream; browsers don't need
// the full 250 Hz.
const wsPushInterval = 33 * time.Millisecond

type Server struct {
	pipe     *pipeline.Pipeline
	upgrader websocket.Upgrader
}

func NewServer(pipe *pipeline.Pipeline) *Server {
	return &Server{pipe: pipe}
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/pose", s.poseHandler)
	mux.HandleFunc("/center", s.centerHandler)
	mux.HandleFunc("/toggle-enabled", s.toggleEnabledHandler)
	mux.HandleFunc("/toggle-zero", s.toggleZeroHandler)
	mux.HandleFunc("/ws", s.wsHandler)
	return mux
}

type poseJSON struct {
	TX    float64 `json:"tx"`
	TY    float64 `json:"ty"`
	TZ    float64 `json:"tz"`
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
}

func toPoseJSON(p pose.Pose) poseJSON {
	return poseJSON{
		TX: p[pose.TX], TY: p[pose.TY], TZ: p[pose.TZ],
		Yaw: p[pose.Yaw], Pitch: p[pose.Pitch], Roll: p[pose.Roll],
	}
}

type snapshotJSON struct {
	Raw    poseJSON `json:"raw"`
	Mapped poseJSON `json:"mapped"`
}

func (s *Server) snapshot() snapshotJSON {
	raw, mapped := s.pipe.RawAndMappedPose()
	return snapshotJSON{Raw: toPoseJSON(raw), Mapped: toPoseJSON(mapped)}
}

func (s *Server) poseHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) centerHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.pipe.SetCenter()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) toggleEnabledHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.pipe.ToggleEnabled()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) toggleZeroHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.pipe.ToggleZero()
	w.WriteHeader(http.StatusNoContent)
}

// wsHandler streams pose snapshots until the client disconnects.
func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Drain client frames so close messages are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := conn.WriteJSON(s.snapshot()); err != nil {
				return
			}
		}
	}
}
