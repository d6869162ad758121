package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MikeSquared-Agency/refinery/internal/corpus"
	"github.com/MikeSquared-Agency/refinery/internal/extractor"
	"github.com/MikeSquared-Agency/refinery/internal/hermes"
	"github.com/MikeSquared-Agency/refinery/internal/processor"
	"github.com/MikeSquared-Agency/refinery/internal/prompts"
	"github.com/MikeSquared-Agency/refinery/internal/skills"
	"github.com/MikeSquared-Agency/refinery/internal/store"
	"github.com/MikeSquared-Agency/refinery/internal/trust"
)

const maxBody = 1 << 20

// trustDecayRate is the daily decay applied when reporting trust.
const trustDecayRate = 0.01

// callCompleted handles POST /api/v1/calls/completed with the same payload as
// the swarm.call.completed event.
func (s *Server) callCompleted(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	evt, err := hermes.ParseCallCompleted(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.deps.Processor.Process(r.Context(), processor.CallFromEvent(evt))
	if err != nil {
		s.logger.Error("call processing failed", "call_id", evt.CallID, "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, extractor.ErrExtraction) {
			status = http.StatusBadGateway
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// getPrompt handles GET /api/v1/prompts?country=&industry=. A store failure
// still answers with the default prompt.
func (s *Server) getPrompt(w http.ResponseWriter, r *http.Request) {
	seg := prompts.NewSegment(r.URL.Query().Get("country"), r.URL.Query().Get("industry"))
	res, err := s.deps.Prompts.Resolve(r.Context(), seg)
	if err != nil {
		s.logger.Warn("prompt resolution degraded", "segment", seg.Key(), "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"segment":    seg.Key(),
		"resolution": res,
	})
}

type promptRequest struct {
	Prompt string `json:"prompt"`
}

func decodePrompt(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req promptRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return "", false
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return "", false
	}
	return req.Prompt, true
}

func (s *Server) setBasePrompt(w http.ResponseWriter, r *http.Request) {
	p, ok := decodePrompt(w, r)
	if !ok {
		return
	}
	if err := s.deps.Prompts.SetBase(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated", "level": string(prompts.LevelBase)})
}

func (s *Server) setIndustryPrompt(w http.ResponseWriter, r *http.Request) {
	p, ok := decodePrompt(w, r)
	if !ok {
		return
	}
	industry := chi.URLParam(r, "industry")
	if err := s.deps.Prompts.SetIndustry(r.Context(), industry, p); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated", "level": string(prompts.LevelIndustry), "industry": industry})
}

func (s *Server) setSegmentPrompt(w http.ResponseWriter, r *http.Request) {
	p, ok := decodePrompt(w, r)
	if !ok {
		return
	}
	seg := prompts.NewSegment(chi.URLParam(r, "country"), chi.URLParam(r, "industry"))
	if err := s.deps.Prompts.SetSegment(r.Context(), seg, p); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated", "level": string(prompts.LevelSegment), "segment": seg.Key()})
}

type searchRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

// searchSkills handles POST /api/v1/skills/search. The context field is the
// text the voice agent receives from its search_context tool.
func (s *Server) searchSkills(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	matches, err := s.deps.Retriever.Search(r.Context(), req.Query, req.K)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"matches": matches,
		"count":   len(matches),
		"context": skills.FormatMatches(matches),
	})
}

func (s *Server) skillClusters(w http.ResponseWriter, r *http.Request) {
	threshold := skills.DefaultClusterThreshold
	if v := r.URL.Query().Get("threshold"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil || t <= 0 || t > 1 {
			writeError(w, http.StatusBadRequest, "threshold must be in (0, 1]")
			return
		}
		threshold = t
	}
	report, err := skills.FindClusters(r.Context(), s.deps.Skills, threshold)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) skillTool(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, skills.ToolDefinition())
}

func (s *Server) listTestCases(w http.ResponseWriter, r *http.Request) {
	cases, err := s.deps.Corpus.All(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if cases == nil {
		cases = []corpus.TestCase{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"test_cases": cases, "count": len(cases)})
}

func (s *Server) addTestCase(w http.ResponseWriter, r *http.Request) {
	var tc corpus.TestCase
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&tc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(tc.Input) == "" {
		writeError(w, http.StatusBadRequest, "input is required")
		return
	}
	if err := s.deps.Corpus.Append(r.Context(), tc); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, tc)
}

func (s *Server) listOptimizations(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ledger == nil {
		writeError(w, http.StatusServiceUnavailable, "ledger not configured")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	recs, err := s.deps.Ledger.ListOptimizations(r.Context(), r.URL.Query().Get("segment"), limit)
	if errors.Is(err, store.ErrDisabled) {
		writeError(w, http.StatusServiceUnavailable, "ledger not configured")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recs == nil {
		recs = []store.OptimizationRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"optimizations": recs, "count": len(recs)})
}

// getTrust handles GET /api/v1/trust/{segment}. current_score is the stored
// score decayed for the days since the last grade.
func (s *Server) getTrust(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ledger == nil {
		writeError(w, http.StatusServiceUnavailable, "ledger not configured")
		return
	}
	segment := prompts.ParseSegment(chi.URLParam(r, "segment")).Key()
	rec, err := s.deps.Ledger.GetTrust(r.Context(), segment)
	if errors.Is(err, store.ErrDisabled) {
		writeError(w, http.StatusServiceUnavailable, "ledger not configured")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "no grades for segment "+segment)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"trust":         rec,
		"current_score": trust.Current(*rec, trustDecayRate, time.Now().UTC()),
	})
}
