package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Macrina/Listify-Agent-sub000/internal/config"
	"github.com/Macrina/Listify-Agent-sub000/internal/core/domain"
	"github.com/Macrina/Listify-Agent-sub000/internal/core/ports"
)

const (
	xlsxContentType     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	defaultMaxInFlight  = 16
	backpressureTimeout = 2 * time.Second
)

// ExtractionRecorder receives one observation per extraction request.
type ExtractionRecorder interface {
	RecordExtraction(service, source string, items int, err error)
}

type RouterOption func(*Router)

func WithExtractionRecorder(recorder ExtractionRecorder) RouterOption {
	return func(rt *Router) { rt.recorder = recorder }
}

func WithMaxInFlight(n int64) RouterOption {
	return func(rt *Router) { rt.maxInFlight = n }
}

type Router struct {
	cfg         config.Config
	extractor   ports.Extractor
	lists       ports.ListManager
	recorder    ExtractionRecorder
	maxInFlight int64
}

func NewRouter(cfg config.Config, extractor ports.Extractor, lists ports.ListManager, opts ...RouterOption) *Router {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 20 << 20
	}
	rt := &Router{
		cfg:         cfg,
		extractor:   extractor,
		lists:       lists,
		maxInFlight: defaultMaxInFlight,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)

	mux.HandleFunc("POST /v1/extract/text", rt.extractText)
	mux.HandleFunc("POST /v1/extract/url", rt.extractURL)
	mux.HandleFunc("POST /v1/extract/image", rt.extractImage)
	mux.HandleFunc("POST /v1/extract/document", rt.extractDocument)

	mux.HandleFunc("GET /v1/lists", rt.listLists)
	mux.HandleFunc("GET /v1/lists/{id}", rt.getList)
	mux.HandleFunc("DELETE /v1/lists/{id}", rt.deleteList)
	mux.HandleFunc("PATCH /v1/lists/{id}/items/{itemID}", rt.updateItem)
	mux.HandleFunc("GET /v1/lists/{id}/export", rt.exportList)

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.maxInFlight, backpressureTimeout)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type extractTextRequest struct {
	Text            string `json:"text"`
	ListName        string `json:"list_name"`
	ListDescription string `json:"list_description"`
}

type extractURLRequest struct {
	URL             string `json:"url"`
	ListName        string `json:"list_name"`
	ListDescription string `json:"list_description"`
}

func (rt *Router) extractText(w http.ResponseWriter, r *http.Request) {
	var req extractTextRequest
	if !rt.decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "extract text", errors.New("text is required")))
		return
	}
	result, err := rt.extractor.ExtractFromText(r.Context(), req.Text, domain.ExtractOptions{
		ListName:        req.ListName,
		ListDescription: req.ListDescription,
	})
	rt.writeExtraction(w, r, "text", result, err)
}

func (rt *Router) extractURL(w http.ResponseWriter, r *http.Request) {
	var req extractURLRequest
	if !rt.decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "extract url", errors.New("url is required")))
		return
	}
	result, err := rt.extractor.ExtractFromURL(r.Context(), req.URL, domain.ExtractOptions{
		ListName:        req.ListName,
		ListDescription: req.ListDescription,
	})
	rt.writeExtraction(w, r, "url", result, err)
}

func (rt *Router) extractImage(w http.ResponseWriter, r *http.Request) {
	data, mimeType, opts, ok := rt.readUpload(w, r)
	if !ok {
		return
	}
	result, err := rt.extractor.ExtractFromImage(r.Context(), data, mimeType, opts)
	rt.writeExtraction(w, r, "image", result, err)
}

func (rt *Router) extractDocument(w http.ResponseWriter, r *http.Request) {
	data, mimeType, opts, ok := rt.readUpload(w, r)
	if !ok {
		return
	}
	result, err := rt.extractor.ExtractFromDocument(r.Context(), data, mimeType, opts)
	rt.writeExtraction(w, r, "document", result, err)
}

func (rt *Router) listLists(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "list lists", fmt.Errorf("invalid limit %q", raw)))
			return
		}
		limit = n
	}
	lists, err := rt.lists.ListLists(r.Context(), limit)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lists": lists})
}

func (rt *Router) getList(w http.ResponseWriter, r *http.Request) {
	id, ok := rt.pathID(w, r, "id")
	if !ok {
		return
	}
	list, err := rt.lists.GetList(r.Context(), id)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (rt *Router) deleteList(w http.ResponseWriter, r *http.Request) {
	id, ok := rt.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := rt.lists.DeleteList(r.Context(), id); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) updateItem(w http.ResponseWriter, r *http.Request) {
	listID, ok := rt.pathID(w, r, "id")
	if !ok {
		return
	}
	itemID, ok := rt.pathID(w, r, "itemID")
	if !ok {
		return
	}
	var patch domain.ItemPatch
	if !rt.decodeJSON(w, r, &patch) {
		return
	}
	item, err := rt.lists.UpdateItem(r.Context(), listID, itemID, patch)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (rt *Router) exportList(w http.ResponseWriter, r *http.Request) {
	id, ok := rt.pathID(w, r, "id")
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := rt.lists.ExportList(r.Context(), id, &buf); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="list-%d.xlsx"`, id))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (rt *Router) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, domain.ExtractOptions, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(rt.cfg.MaxUploadBytes); err != nil {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "read upload", err))
		return nil, "", domain.ExtractOptions{}, false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "read upload", errors.New("multipart field 'file' is required")))
		return nil, "", domain.ExtractOptions{}, false
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, rt.cfg.MaxUploadBytes+1))
	if err != nil {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "read upload", err))
		return nil, "", domain.ExtractOptions{}, false
	}
	if int64(len(data)) > rt.cfg.MaxUploadBytes {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "read upload", fmt.Errorf("file exceeds %d bytes", rt.cfg.MaxUploadBytes)))
		return nil, "", domain.ExtractOptions{}, false
	}

	opts := domain.ExtractOptions{
		ListName:        r.FormValue("list_name"),
		ListDescription: r.FormValue("list_description"),
	}
	return data, header.Header.Get("Content-Type"), opts, true
}

func (rt *Router) decodeJSON(w http.ResponseWriter, r *http.Request, out any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "decode request", errors.New("invalid json")))
		return false
	}
	return true
}

func (rt *Router) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "parse path", fmt.Errorf("invalid %s %q", name, raw)))
		return 0, false
	}
	return id, true
}

type errorResponse struct {
	Error     string `json:"error"`
	Detail    string `json:"detail,omitempty"`
	RunID     string `json:"run_id,omitempty"`
	Stage     string `json:"stage,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func (rt *Router) writeExtraction(w http.ResponseWriter, r *http.Request, source string, result *domain.ExtractionResult, err error) {
	if rt.recorder != nil {
		items := 0
		if result != nil {
			items = len(result.Items)
		}
		rt.recorder.RecordExtraction("listify-api", source, items, err)
	}
	if err != nil {
		status := mapErrorToHTTPStatus(err)
		resp := errorResponse{
			Error:     domain.UserMessage(err),
			Detail:    err.Error(),
			RequestID: requestIDFromContext(r.Context()),
		}
		if result != nil {
			resp.RunID = result.RunID
			resp.Stage = string(result.Stage)
		}
		logError(r, status, err)
		writeJSON(w, status, resp)
		return
	}
	status := http.StatusOK
	if result.List != nil {
		status = http.StatusCreated
	}
	writeJSON(w, status, result)
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	logError(r, status, err)
	writeJSON(w, status, errorResponse{
		Error:     domain.UserMessage(err),
		Detail:    err.Error(),
		RequestID: requestIDFromContext(r.Context()),
	})
}

func logError(r *http.Request, status int, err error) {
	if status < 500 {
		return
	}
	slog.Error("http_handler_error",
		"request_id", requestIDFromContext(r.Context()),
		"path", r.URL.Path,
		"status", status,
		"error", err,
	)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
