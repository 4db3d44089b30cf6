package devserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/restocorp/answerflow/internal/backend"
	"github.com/restocorp/answerflow/internal/cache"
	"github.com/restocorp/answerflow/internal/db"
	"github.com/restocorp/answerflow/internal/errors"
	"github.com/restocorp/answerflow/internal/markdown"
)

const (
	defaultRole           = "user"
	defaultSpecialization = "unspecified"

	maxRequestBytes = 1 << 20
)

// Handlers contains HTTP route handlers for the development backend.
type Handlers struct {
	db        *sql.DB
	cache     cache.Cache
	answerer  Answerer
	suggester Suggester
	enricher  *markdown.Enricher
	limiter   *limiterPool
	metrics   *metrics
	renderer  *Renderer
	version   string
	now       func() time.Time
}

// HandleAsk handles POST /api/ask: answer a free-text question.
func (h *Handlers) HandleAsk(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeAsk(w, r)
	if !ok {
		return
	}

	answer, err := h.answerer.Answer(r.Context(), AnswerRequest{
		Question:       req.Question,
		Role:           req.Role,
		Specialization: req.Specialization,
	})
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInternal(err))
		return
	}

	if err := h.save(r, req, answer, false); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.metrics.answers.WithLabelValues("ask").Inc()
	renderJSON(w, http.StatusOK, backend.AskResponse{Answer: answer})
}

// HandleAskLibrary handles POST /api/ask_library: answer a library question,
// from the cache when it has been answered before for the same specialization.
func (h *Handlers) HandleAskLibrary(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeAsk(w, r)
	if !ok {
		return
	}
	if req.QuestionID == nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("question_id is required"))
		return
	}

	key := cache.Key{QuestionID: *req.QuestionID, Specialization: req.Specialization}
	answer, cached, err := h.cache.Get(r.Context(), key)
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInternal(err))
		return
	}

	if cached {
		h.metrics.cacheLookups.WithLabelValues("hit").Inc()
	} else {
		h.metrics.cacheLookups.WithLabelValues("miss").Inc()
		answer, err = h.answerer.Answer(r.Context(), AnswerRequest{
			Question:       req.Question,
			Role:           req.Role,
			Specialization: req.Specialization,
		})
		if err != nil {
			h.renderer.renderError(w, r, errors.NewInternal(err))
			return
		}
		if err := h.cache.Set(r.Context(), key, answer); err != nil {
			h.renderer.renderError(w, r, errors.NewInternal(err))
			return
		}
	}

	if err := h.save(r, req, answer, cached); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.metrics.answers.WithLabelValues("ask_library").Inc()
	renderJSON(w, http.StatusOK, backend.AskResponse{Answer: answer, Cached: cached})
}

// decodeAsk reads and validates an ask body and applies the rate limit.
// On failure the error response has been written.
func (h *Handlers) decodeAsk(w http.ResponseWriter, r *http.Request) (backend.AskRequest, bool) {
	var req backend.AskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.renderer.renderError(w, r, err)
		return req, false
	}

	req.Question = strings.TrimSpace(req.Question)
	req.UserID = strings.TrimSpace(req.UserID)
	if req.Question == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("question is required"))
		return req, false
	}
	if req.UserID == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("user_id is required"))
		return req, false
	}
	if req.Role == "" {
		req.Role = defaultRole
	}
	if req.Specialization == "" {
		req.Specialization = defaultSpecialization
	}

	if !h.limiter.Allow(req.UserID) {
		h.metrics.rateLimited.Inc()
		w.Header().Set("Retry-After", "1")
		h.renderer.renderError(w, r, errors.NewRateLimited(req.UserID))
		return req, false
	}
	return req, true
}

func (h *Handlers) save(r *http.Request, req backend.AskRequest, answer string, cached bool) error {
	return db.SaveExchange(r.Context(), h.db, db.Exchange{
		UserID:         req.UserID,
		Question:       req.Question,
		Answer:         answer,
		Role:           req.Role,
		Specialization: req.Specialization,
		Cached:         cached,
		At:             h.now(),
	})
}

// HandleSuggest handles POST /api/suggest_questions and answers a bare JSON array.
func (h *Handlers) HandleSuggest(w http.ResponseWriter, r *http.Request) {
	var req backend.SuggestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if strings.TrimSpace(req.UserQuestion) == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("user_question is required"))
		return
	}

	questions, err := h.suggester.Suggest(r.Context(), req)
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInternal(err))
		return
	}
	if questions == nil {
		questions = []string{}
	}
	renderJSON(w, http.StatusOK, questions)
}

// HandleHistory handles GET /api/history/{user_id}: answered questions, newest first.
func (h *Handlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := db.History(r.Context(), h.db, r.PathValue("user_id"), db.DefaultHistoryLimit)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, entries)
}

// HandleClearHistory handles DELETE /api/history/{user_id}.
func (h *Handlers) HandleClearHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	n, err := db.DeleteHistory(r.Context(), h.db, userID)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{
		"deleted": n,
		"user_id": userID,
	})
}

// HandleHealth handles GET /api/health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status, code, cacheState := "ok", http.StatusOK, "memory"
	if p, ok := h.cache.(cache.Pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		cacheState = "ok"
		if err := p.Ping(ctx); err != nil {
			log.Printf("health: cache ping failed: %v", err)
			status, code, cacheState = "degraded", http.StatusServiceUnavailable, "unavailable"
		}
	}
	renderJSON(w, code, map[string]any{
		"status":    status,
		"cache":     cacheState,
		"timestamp": h.now().UTC().Format(time.RFC3339),
		"version":   h.version,
	})
}

// HandlePreview handles GET /preview/{user_id}: every answer of the user
// rendered by the enrichment pipeline next to a strict CommonMark rendering.
func (h *Handlers) HandlePreview(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	entries, err := db.History(r.Context(), h.db, userID, db.DefaultHistoryLimit)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	items := make([]PreviewItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, PreviewItem{
			Question:       e.Question,
			Timestamp:      e.Timestamp,
			Role:           e.Role,
			Specialization: e.Specialization,
			Cached:         e.Cached,
			Raw:            e.Answer,
			Enriched:       template.HTML(h.enricher.HTML(e.Answer)),
			Reference:      template.HTML(markdown.RenderCommonMark(e.Answer)),
		})
	}

	h.renderer.renderPage(w, "preview", PreviewPageData{
		PageData: PageData{
			Title:   fmt.Sprintf("Answers for %s", userID),
			Version: h.version,
		},
		UserID: userID,
		Items:  items,
	})
}

// decodeJSON reads one JSON object from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid JSON body: %v", err))
	}
	return nil
}
