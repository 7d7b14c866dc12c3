package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/olegkarev/testcase-search/internal/config"
	"github.com/olegkarev/testcase-search/internal/core/domain"
	"github.com/olegkarev/testcase-search/internal/core/ports"
	"github.com/olegkarev/testcase-search/internal/observability/metrics"
)

type Router struct {
	cfg      config.Config
	uploadUC ports.BatchIngestor
	searchUC ports.SearchService
	records  ports.RecordRepository
	batches  ports.BatchRepository
	metrics  *metrics.HTTPServerMetrics
}

func NewRouter(
	cfg config.Config,
	uploadUC ports.BatchIngestor,
	searchUC ports.SearchService,
	records ports.RecordRepository,
	batches ports.BatchRepository,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		cfg:      cfg,
		uploadUC: uploadUC,
		searchUC: searchUC,
		records:  records,
		batches:  batches,
		metrics:  httpMetrics,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/testcases/upload", rt.uploadBatch)
	mux.HandleFunc("/v1/testcases/", rt.getTestCaseByID)
	mux.HandleFunc("/v1/batches/", rt.getBatchByID)
	mux.HandleFunc("/v1/search", rt.search)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = accessLogMiddleware(handler)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware("api", handler)
	}
	if rt.cfg.APIMaxConcurrent > 0 {
		wait := time.Duration(rt.cfg.APIBackpressureWaitMS) * time.Millisecond
		handler = backpressureMiddleware(handler, rt.cfg.APIMaxConcurrent, wait)
	}
	if rt.cfg.APIRateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	}
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	batch, err := rt.uploadUC.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, batch)
}

func (rt *Router) getTestCaseByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/testcases/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "test case id is required"})
		return
	}

	tc, err := rt.records.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, tc)
}

func (rt *Router) getBatchByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/batches/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "batch id is required"})
		return
	}

	batch, err := rt.batches.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

type searchRequestBody struct {
	Question string   `json:"question"`
	Limit    int      `json:"limit"`
	Variant  string   `json:"variant"`
	Feature  string   `json:"feature"`
	Tags     []string `json:"tags"`
	Priority string   `json:"priority"`
	Platform string   `json:"platform"`
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req searchRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}

	filter := domain.SearchFilter{
		Feature:  req.Feature,
		Tags:     req.Tags,
		Platform: req.Platform,
	}
	if req.Priority != "" {
		filter.Priority = domain.ParsePriority(req.Priority)
	}

	variant := domain.ParseVariant(req.Variant)
	start := time.Now()
	results, err := rt.searchUC.Search(r.Context(), ports.SearchRequest{
		Question: req.Question,
		TopK:     req.Limit,
		Variant:  variant,
		Filter:   filter,
	})
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordSearch("api", string(variant), len(results), time.Since(start))
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
