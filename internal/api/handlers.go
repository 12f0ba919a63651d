package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/foodtruck-cli/internal/extract"
	"github.com/sells-group/foodtruck-cli/internal/pipeline"
)

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.ok(w, map[string]string{"status": "ok"})
}

type pipelineRequest struct {
	Action string             `json:"action"`
	Config pipeline.Overrides `json:"config"`
}

func (s *Server) runPipeline(w http.ResponseWriter, r *http.Request) {
	var req pipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	typ, err := pipeline.ParseType(req.Action)
	if err != nil {
		s.fail(w, http.StatusBadRequest, err.Error(),
			map[string]any{"allowed": []pipeline.Type{pipeline.TypeDiscovery, pipeline.TypeProcessing, pipeline.TypeFull, pipeline.TypeMaintenance}})
		return
	}

	params := pipeline.DefaultParams(s.cfg).Apply(req.Config)
	res := s.pipeline.Run(r.Context(), pipeline.Request{Type: typ, Params: params})
	if !res.Success {
		s.fail(w, http.StatusInternalServerError, res.Error, res)
		return
	}
	s.ok(w, res)
}

func (s *Server) pipelineStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.pipeline.Status(r.Context())
	if err != nil {
		s.failErr(w, err)
		return
	}
	s.ok(w, st)
}

func (s *Server) executeJob(w http.ResponseWriter, r *http.Request) {
	out, err := s.pipeline.ExecuteJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.failErr(w, err)
		return
	}
	if out.Error != "" {
		s.fail(w, http.StatusUnprocessableEntity, out.Error, out)
		return
	}
	s.ok(w, out)
}

type extractRequest struct {
	Kind  string `json:"kind"`
	Input string `json:"input"`
}

// extractStatus maps extraction outcomes to HTTP status codes.
var extractStatus = map[extract.Status]int{
	extract.StatusRateLimited: http.StatusTooManyRequests,
	extract.StatusParseError:  http.StatusUnprocessableEntity,
	extract.StatusConfigError: http.StatusServiceUnavailable,
	extract.StatusFailed:      http.StatusBadGateway,
}

func (s *Server) runExtract(w http.ResponseWriter, r *http.Request) {
	if s.extractor == nil {
		s.fail(w, http.StatusServiceUnavailable, "extraction is disabled", nil)
		return
	}
	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	kind, ok := extract.ParseKind(req.Kind)
	if !ok {
		s.fail(w, http.StatusBadRequest, "unknown extraction kind", map[string]any{"allowed": extract.Kinds})
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		s.fail(w, http.StatusBadRequest, "input is required", nil)
		return
	}

	res := s.extractor.Extract(r.Context(), kind, req.Input)
	if res.OK() {
		s.ok(w, res)
		return
	}
	code, known := extractStatus[res.Status]
	if !known {
		code = http.StatusInternalServerError
	}
	s.fail(w, code, res.Error, res)
}

func (s *Server) getUsage(w http.ResponseWriter, r *http.Request) {
	service := strings.TrimSpace(r.URL.Query().Get("service"))
	if service == "" {
		snap, err := s.usage.Snapshot(r.Context())
		if err != nil {
			s.failErr(w, err)
			return
		}
		s.ok(w, snap)
		return
	}
	u, err := s.usage.Usage(r.Context(), service)
	if err != nil {
		s.failErr(w, err)
		return
	}
	s.ok(w, u)
}

func (s *Server) schedulerStatus(w http.ResponseWriter, _ *http.Request) {
	if s.scheduler == nil {
		s.fail(w, http.StatusServiceUnavailable, "scheduler is disabled", nil)
		return
	}
	s.ok(w, s.scheduler.Status())
}

func (s *Server) toggleTask(enable bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.scheduler == nil {
			s.fail(w, http.StatusServiceUnavailable, "scheduler is disabled", nil)
			return
		}
		id := chi.URLParam(r, "id")
		toggle := s.scheduler.Disable
		if enable {
			toggle = s.scheduler.Enable
		}
		if err := toggle(id); err != nil {
			s.failErr(w, err)
			return
		}
		for _, t := range s.scheduler.Status() {
			if t.ID == id {
				s.ok(w, t)
				return
			}
		}
		s.ok(w, map[string]string{"id": id})
	}
}
