package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/jdziat/firmware-jobs/pkg/core"
	"github.com/jdziat/firmware-jobs/pkg/pool"
	"github.com/jdziat/firmware-jobs/pkg/supervisor"
)

// Backend is the part of service.Service the API needs.
type Backend interface {
	Submit(ctx context.Context, sub supervisor.Submission, artifact string) (*pool.Handle, error)
	Job(ctx context.Context, id string) (*core.Job, error)
	Result(ctx context.Context, id string) (*core.Result, error)
	Jobs(ctx context.Context, status core.JobStatus, limit int) ([]*core.Job, error)
	Outstanding() int64
	Capacity() int64
	Events() <-chan core.Event
	Unsubscribe(ch <-chan core.Event)
}

// Handler creates an http.Handler serving the analysis API.
//
// Usage:
//
//	srv := &http.Server{Addr: ":8080", Handler: api.Handler(svc)}
func Handler(backend Backend, opts ...Option) http.Handler {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt.apply(cfg)
	}
	h := &handler{backend: backend, cfg: cfg, logger: cfg.logger}

	router := mux.NewRouter()
	v1 := router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/analyses", h.submit).Methods(http.MethodPost)
	v1.HandleFunc("/status", h.status).Methods(http.MethodGet)
	v1.Handle("/jobs", gzhttp.GzipHandler(http.HandlerFunc(h.listJobs))).Methods(http.MethodGet)
	v1.Handle("/jobs/{id}", gzhttp.GzipHandler(http.HandlerFunc(h.getJob))).Methods(http.MethodGet)
	v1.Handle("/jobs/{id}/result", gzhttp.GzipHandler(http.HandlerFunc(h.getResult))).Methods(http.MethodGet)
	v1.HandleFunc("/events", h.events).Methods(http.MethodGet)

	// HTTP/2 over cleartext for clients behind TLS-terminating proxies
	h2cHandler := h2c.NewHandler(router, &http2.Server{})

	if cfg.middleware != nil {
		return cfg.middleware(h2cHandler)
	}
	return h2cHandler
}

type handler struct {
	backend Backend
	cfg     *config
	logger  *slog.Logger
}

func (h *handler) submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("reading upload: %w", err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("firmware")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing firmware file: %w", err))
		return
	}
	defer file.Close()

	dir, err := os.MkdirTemp(h.cfg.uploadDir, "upload-")
	if err != nil {
		h.logger.Error("creating upload directory", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer func() { _ = os.RemoveAll(dir) }()

	artifact := filepath.Join(dir, uploadName(header.Filename))
	if err := saveUpload(file, artifact); err != nil {
		h.logger.Error("saving upload", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	id := r.FormValue("id")
	if id == "" {
		id = uuid.New().String()
	}
	sub := supervisor.Submission{
		ID:      id,
		Name:    r.FormValue("name"),
		Version: r.FormValue("version"),
		Notes:   r.FormValue("notes"),
		Flags:   r.FormValue("flags"),
	}
	_, err = h.backend.Submit(r.Context(), sub, artifact)
	if err != nil {
		status := submitStatus(err)
		if status == http.StatusServiceUnavailable {
			w.Header().Set("Retry-After", "30")
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func submitStatus(err error) int {
	switch {
	case errors.Is(err, core.ErrAdmissionRejected), errors.Is(err, core.ErrPoolClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, supervisor.ErrStagingExists):
		return http.StatusConflict
	case errors.Is(err, core.ErrMalformedSubmission),
		errors.Is(err, core.ErrInvalidJobID),
		errors.Is(err, core.ErrInvalidFlags):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int64{
		"outstanding": h.backend.Outstanding(),
		"capacity":    h.backend.Capacity(),
	})
}

func (h *handler) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 100
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}

	jobs, err := h.backend.Jobs(r.Context(), core.JobStatus(q.Get("status")), limit)
	if err != nil {
		h.logger.Error("listing jobs", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	views := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, newJobView(j))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *handler) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.backend.Job(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.lookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newJobView(job))
}

func (h *handler) getResult(w http.ResponseWriter, r *http.Request) {
	res, err := h.backend.Result(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.lookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultView{JobID: res.JobID, ResultFields: res.ResultFields})
}

func (h *handler) lookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, core.ErrJobNotFound) || errors.Is(err, core.ErrResultNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	h.logger.Error("lookup failed", "error", err)
	writeError(w, http.StatusInternalServerError, err)
}

// uploadName keeps the client's base name so archive extensions survive.
func uploadName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" || name == ".." || name == "" {
		return "firmware.bin"
	}
	return name
}

func saveUpload(src io.Reader, path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, src); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
