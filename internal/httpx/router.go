package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sagerenn/gdengine/internal/dict"
	"github.com/sagerenn/gdengine/internal/dict/registry"
	"github.com/sagerenn/gdengine/internal/finder"
	"github.com/sagerenn/gdengine/internal/observability"
	"github.com/sagerenn/gdengine/internal/service"
)

// Routes lists every path served by the router, without the base path.
var Routes = []string{
	"/health",
	"/dicts",
	"/groups",
	"/status",
	"/prefix",
	"/article",
	"/synonyms",
	"/reload",
	"/debug/vars",
}

type Router struct {
	svc      *service.Service
	log      *slog.Logger
	basePath string
}

type healthResponse struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

type prefixResponse struct {
	Query   string              `json:"query"`
	Group   string              `json:"group,omitempty"`
	Words   []string            `json:"words"`
	Count   int                 `json:"count"`
	Context finder.QueryContext `json:"context"`
}

type articleResponse struct {
	Query   string                  `json:"query"`
	Group   string                  `json:"group,omitempty"`
	Results []service.ArticleResult `json:"results"`
	Count   int                     `json:"count"`
}

type synonymsResponse struct {
	Dict      string   `json:"dict"`
	Query     string   `json:"query"`
	Headwords []string `json:"headwords"`
}

type reloadResponse struct {
	Status string          `json:"status"`
	Report registry.Report `json:"report"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewRouter(svc *service.Service, log *observability.Logger, basePath string) http.Handler {
	r := &Router{svc: svc, log: log.Component("http"), basePath: normalizeBasePath(basePath)}
	mux := http.NewServeMux()
	r.handleRoute(mux, "/health", r.handleHealth)
	r.handleRoute(mux, "/dicts", r.handleDicts)
	r.handleRoute(mux, "/groups", r.handleGroups)
	r.handleRoute(mux, "/status", r.handleStatus)
	r.handleRoute(mux, "/prefix", r.handlePrefix)
	r.handleRoute(mux, "/article", r.handleArticle)
	r.handleRoute(mux, "/synonyms", r.handleSynonyms)
	r.handleRoute(mux, "/reload", r.handleReload)
	r.handle(mux, "/debug/vars", expvar.Handler())

	h := observability.RecoveryMiddleware(log)(mux)
	h = observability.LoggingMiddleware(log)(h)
	h = observability.RequestIDMiddleware(h)
	return h
}

func (r *Router) handleRoute(mux *http.ServeMux, path string, handler http.HandlerFunc) {
	mux.HandleFunc(path, handler)
	if r.basePath != "" {
		mux.HandleFunc(r.basePath+path, handler)
	}
}

func (r *Router) handle(mux *http.ServeMux, path string, handler http.Handler) {
	mux.Handle(path, handler)
	if r.basePath != "" {
		mux.Handle(r.basePath+path, handler)
	}
}

func (r *Router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Time: time.Now().UTC()})
}

func (r *Router) handleDicts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, r.svc.Dictionaries())
}

func (r *Router) handleGroups(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, r.svc.Groups())
}

func (r *Router) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, r.svc.Status())
}

func (r *Router) handlePrefix(w http.ResponseWriter, req *http.Request) {
	query := strings.TrimSpace(req.URL.Query().Get("q"))
	groupName := strings.TrimSpace(req.URL.Query().Get("group"))
	res, err := r.svc.Prefix(req.Context(), query, groupName)
	if err != nil {
		r.writeError(w, req, err)
		return
	}
	words := res.Words
	if words == nil {
		words = []string{}
	}
	limit := observability.ParseLimit(req.URL.Query().Get("limit"), len(words), r.svc.Finder().MaxResults())
	if limit < len(words) {
		words = words[:limit]
	}
	writeJSON(w, http.StatusOK, prefixResponse{
		Query:   query,
		Group:   groupName,
		Words:   words,
		Count:   len(words),
		Context: res.Context,
	})
}

func (r *Router) handleArticle(w http.ResponseWriter, req *http.Request) {
	query := strings.TrimSpace(req.URL.Query().Get("q"))
	if query == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing q"})
		return
	}
	groupName := strings.TrimSpace(req.URL.Query().Get("group"))
	results, err := r.svc.Article(req.Context(), query, groupName)
	if err != nil {
		r.writeError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, articleResponse{Query: query, Group: groupName, Results: results, Count: len(results)})
}

func (r *Router) handleSynonyms(w http.ResponseWriter, req *http.Request) {
	dictID := strings.TrimSpace(req.URL.Query().Get("dict"))
	query := strings.TrimSpace(req.URL.Query().Get("q"))
	if dictID == "" || query == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing dict or q"})
		return
	}
	headwords, err := r.svc.Synonyms(req.Context(), dictID, query)
	if err != nil {
		r.writeError(w, req, err)
		return
	}
	if headwords == nil {
		headwords = []string{}
	}
	writeJSON(w, http.StatusOK, synonymsResponse{Dict: dictID, Query: query, Headwords: headwords})
}

func (r *Router) handleReload(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "use POST"})
		return
	}
	rep, err := r.svc.Reload(req.Context())
	if err != nil {
		r.writeError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, reloadResponse{Status: rep.Status(), Report: rep})
}

// writeError maps service errors to status codes. Server-side failures are
// logged with the request logger.
func (r *Router) writeError(w http.ResponseWriter, req *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrEmptyQuery):
		status = http.StatusBadRequest
	case errors.Is(err, dict.ErrNotFound),
		errors.Is(err, registry.ErrUnknownGroup),
		errors.Is(err, service.ErrUnknownDictionary):
		status = http.StatusNotFound
	case errors.Is(err, registry.ErrSuperseded):
		status = http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		observability.LoggerFrom(req.Context(), r.log).Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func normalizeBasePath(basePath string) string {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" || basePath == "/" {
		return ""
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	return strings.TrimRight(basePath, "/")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	_ = enc.Encode(payload)
}
