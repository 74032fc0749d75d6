package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/li-xiu-qi/SmartlmageFinder/internal/apperr"
	"github.com/li-xiu-qi/SmartlmageFinder/internal/config"
)

func (s *Server) watchDisabled(w http.ResponseWriter, r *http.Request) bool {
	if s.watch != nil {
		return false
	}
	s.respondError(w, r, apperr.Unavailablef("directory watching is not enabled"))
	return true
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watchDisabled(w, r) {
		return
	}
	s.respondOK(w, http.StatusOK, map[string]interface{}{"directories": s.watch.Directories()}, nil)
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watchDisabled(w, r) {
		return
	}
	var req watchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondInvalid(w, r, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondInvalid(w, r, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondInvalid(w, r, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if os.IsNotExist(err) {
		s.respondError(w, r, apperr.NotFoundf("directory %s not found", abs).WithDetail("path", abs))
		return
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if !info.IsDir() {
		s.respondInvalid(w, r, "path is not a directory")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.persistWatchConfig()
	s.respondOK(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"}, nil)
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watchDisabled(w, r) {
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			path = body.Path
		}
	}
	if path == "" {
		s.respondInvalid(w, r, "path is required (query or body)")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondInvalid(w, r, "invalid path")
		return
	}
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.persistWatchConfig()
	s.respondOK(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"}, nil)
}

// persistWatchConfig writes the current watch directories back to the config file.
func (s *Server) persistWatchConfig() {
	if s.configPath == "" || s.cfg == nil {
		return
	}
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	s.cfg.Watch.Directories = s.watch.Directories()
	if err := config.Save(s.configPath, s.cfg); err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}
