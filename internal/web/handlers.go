package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"legalqa/internal/domain"
	"legalqa/internal/loader"
	"legalqa/internal/prompt"
	"legalqa/internal/service"
)

type askRequest struct {
	Question   string `json:"question"`
	PromptType string `json:"prompt_type"`
}

type summarizeRequest struct {
	Source string `json:"source"`
}

type modelRequest struct {
	Model string `json:"model"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := indexTmpl.Execute(w, struct {
		Model       string
		MaxUploadMB int
		Types       []prompt.Type
		Extensions  string
	}{s.engine.Model(), s.opts.MaxUploadMB, prompt.Types(), strings.Join(loader.SupportedExtensions(), ",")})
	if err != nil {
		s.log.Error("render index", "err", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.Status(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.engine.Sources(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if sources == nil {
		sources = []domain.SourceInfo{}
	}
	writeJSON(w, http.StatusOK, sources)
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.DeleteSource(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	limit := int64(s.opts.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{fmt.Sprintf("file is larger than %d MB", s.opts.MaxUploadMB)})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{"multipart field \"file\" is required"})
		return
	}
	defer file.Close()
	if header.Size > limit {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{fmt.Sprintf("file is larger than %d MB", s.opts.MaxUploadMB)})
		return
	}
	name := filepath.Base(header.Filename)
	if !loader.Supported(name) {
		s.writeError(w, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, name))
		return
	}

	path, cleanup, err := s.engine.TempPath(name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer cleanup()
	if err := saveTo(path, file); err != nil {
		s.writeError(w, err)
		return
	}

	res, err := s.engine.Ingest(r.Context(), path)
	if err != nil {
		s.log.Warn("upload rejected", "name", name, "err", err)
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func saveTo(path string, src io.Reader) error {
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if !s.decode(w, r, &req) {
		return
	}
	turn, err := s.engine.Ask(r.Context(), req.Question, prompt.ParseType(req.PromptType))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	var req summarizeRequest
	if !s.decode(w, r, &req) {
		return
	}
	turn, err := s.engine.Summarize(r.Context(), req.Source)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	hist := s.engine.History()
	if hist == nil {
		hist = []domain.Turn{}
	}
	writeJSON(w, http.StatusOK, hist)
}

func (s *Server) handleResetHistory(w http.ResponseWriter, r *http.Request) {
	s.engine.ResetHistory()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	scope, err := service.ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	report := s.engine.Clear(r.Context(), scope)
	status := http.StatusOK
	if len(report.Errors) > 0 {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, report)
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.Cleanup(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleStorage(w http.ResponseWriter, r *http.Request) {
	info, err := s.engine.Storage()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.engine.Models(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"current": s.engine.Model(), "models": models})
}

func (s *Server) handleSetModel(w http.ResponseWriter, r *http.Request) {
	var req modelRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.SetModel(req.Model); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"current": s.engine.Model()})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mt != "application/json" {
		writeJSON(w, http.StatusUnsupportedMediaType, errorResponse{"Content-Type must be application/json"})
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{"invalid JSON body: " + err.Error()})
		return false
	}
	return true
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnsupportedFormat),
		errors.Is(err, domain.ErrUnreadableFile),
		errors.Is(err, domain.ErrEmptyDocument):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrModelTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrDimensionMismatch):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "err", err)
	}
	writeJSON(w, status, errorResponse{err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
