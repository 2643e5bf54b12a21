// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/relabs-tech/safe_space/internal/discovery"
	"github.com/relabs-tech/safe_space/internal/physio"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local UI only
	},
}

// Server exposes the session, discovery and assessment over HTTP.
type Server struct {
	sys      *System
	assessor *Assessor
	router   *mux.Router

	// one discovery pass at a time; probing opens ports
	discoverMu sync.Mutex
}

// NewServer builds the HTTP API for sys.
func NewServer(sys *System, assessor *Assessor) *Server {
	s := &Server{
		sys:      sys,
		assessor: assessor,
		router:   mux.NewRouter(),
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/ports", s.handlePorts).Methods(http.MethodGet)
	api.HandleFunc("/connect", s.handleConnect).Methods(http.MethodPost)
	api.HandleFunc("/disconnect", s.handleDisconnect).Methods(http.MethodPost)
	api.HandleFunc("/scan", s.handleScan).Methods(http.MethodPost)
	api.HandleFunc("/log", s.handleLog).Methods(http.MethodGet)
	api.HandleFunc("/latest", s.handleLatest).Methods(http.MethodGet)
	api.HandleFunc("/assess", s.handleAssess).Methods(http.MethodPost)
	s.router.HandleFunc("/ws/discover", s.handleDiscoverWS)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on the configured port until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.sys.Config.WebServerPort),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.sys.Logger.Info("web server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("web server shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type connectRequest struct {
	Port string `json:"port"`
}

type sessionStatus struct {
	Connected bool   `json:"connected"`
	Port      string `json:"port,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

type scanResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp,omitempty"`
	Line      string `json:"line,omitempty"`
	Message   string `json:"message"`
}

type latestResponse struct {
	Line        string        `json:"line"`
	Vitals      physio.Vitals `json:"vitals"`
	Temperature string        `json:"temperature"`
}

func (s *Server) handlePorts(w http.ResponseWriter, r *http.Request) {
	ports, err := s.sys.Ports()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if ports == nil {
		ports = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"ports": ports})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	if err := s.sys.Session.Connect(req.Port); err != nil {
		s.writeJSON(w, http.StatusBadGateway, sessionStatus{
			Message: fmt.Sprintf("Failed to connect to %s: %v", req.Port, err),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.sys.Session.Disconnect()
	s.writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) status() sessionStatus {
	port := s.sys.Session.PortName()
	if port == "" {
		return sessionStatus{Message: "Disconnected."}
	}
	return sessionStatus{
		Connected: true,
		Port:      port,
		SessionID: s.sys.Session.ID().String(),
		Message:   fmt.Sprintf("Connected to %s.", port),
	}
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	res := s.sys.Session.ReadOne()
	handleResult(s.sys, res)
	s.writeJSON(w, http.StatusOK, scanResponse{
		Status:    res.Status.String(),
		Timestamp: res.Timestamp,
		Line:      res.Line,
		Message:   res.Message(),
	})
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.sys.Session.Log())
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	line := s.sys.Session.LatestLine()
	if line == "" {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	payload, err := physio.ParseLine(line)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	vitals := physio.VitalsFrom(payload)
	s.writeJSON(w, http.StatusOK, latestResponse{
		Line:        line,
		Vitals:      vitals,
		Temperature: vitals.Temperature().String(),
	})
}

func (s *Server) handleAssess(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	s.writeJSON(w, http.StatusOK, s.assessor.Assess(r.Context(), req))
}

// handleDiscoverWS streams one discovery pass as JSON events and binds the
// session to the port that answered. A client that goes away ends the pass
// before another port is opened.
func (s *Server) handleDiscoverWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.sys.Logger.Warn("discover: websocket upgrade error", zap.Error(err))
		return
	}
	defer conn.Close()

	// a hijacked request's context does not see the peer leave
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s.discoverMu.Lock()
	defer s.discoverMu.Unlock()

	var writeErr error
	port, err := s.sys.Discover(ctx, func(ev discovery.Event) error {
		if writeErr = conn.WriteJSON(ev); writeErr != nil {
			cancel()
		}
		return writeErr
	})
	if writeErr != nil {
		s.sys.Logger.Info("discover: client went away", zap.Error(writeErr))
		return
	}
	if err != nil {
		s.closeWS(conn, err.Error())
		return
	}

	var status sessionStatus
	if err := s.sys.Session.Connect(port); err != nil {
		status = sessionStatus{Message: fmt.Sprintf("Failed to connect to %s: %v", port, err)}
	} else {
		status = s.status()
	}
	if err := conn.WriteJSON(status); err != nil {
		return
	}
	s.closeWS(conn, status.Message)
}

func (s *Server) closeWS(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.sys.Logger.Warn("json encode error", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
