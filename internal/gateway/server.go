// Package gateway is the only surface a remote worker talks to: it expands a
// job id into a full rendering payload and accepts completion and failure
// reports. Workers authenticate with a shared secret; they never get
// database access.
package gateway

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"docpack/internal/config"
	"docpack/internal/errs"
	"docpack/internal/httpkit"
	"docpack/internal/models"
	"docpack/internal/store"
	"docpack/internal/telemetry"
)

// HeaderAPIKey carries the shared secret on every internal request.
const HeaderAPIKey = "X-Internal-Api-Key"

// Server wires the internal worker endpoints.
type Server struct {
	cfg   config.Config
	store *store.Store
}

// New constructs the gateway server.
func New(cfg config.Config, st *store.Store) *Server {
	return &Server{cfg: cfg, store: st}
}

// Router builds the internal route tree. Mount under /internal.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requireInternalKey)
	r.Get("/jobs/{id}/payload", s.handlePayload)
	r.Post("/jobs/{id}/complete", s.handleComplete)
	r.Post("/jobs/{id}/fail", s.handleFail)
	return r
}

// RequireKey guards non-worker internal routes (company provisioning) with
// the same shared secret.
func (s *Server) RequireKey(next http.Handler) http.Handler {
	return s.requireInternalKey(next)
}

func (s *Server) requireInternalKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(HeaderAPIKey) != s.cfg.InternalAPIKey {
			httpkit.WriteError(w, errs.New(errs.CodeUnauthorized, "unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handlePayload claims the job on first fetch and returns the frozen
// rendering payload. Re-fetching a running job is read-only and returns the
// same payload, which is what makes queue redelivery safe.
func (s *Server) handlePayload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	job, err := s.store.ClaimJob(ctx, id)
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}

	pkg, err := s.store.GetPackage(ctx, job.PackageID)
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	client, err := s.store.GetClient(ctx, pkg.ClientID)
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	company, err := s.store.GetCompany(ctx, pkg.CompanyID)
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}

	httpkit.WriteJSON(w, http.StatusOK, BuildPayload(s.cfg.TemplateKey, job, pkg, client, company))
}

// CompleteRequest is a worker's success report.
type CompleteRequest struct {
	Files []ReportedFile `json:"files"`
}

// ReportedFile describes one uploaded artifact.
type ReportedFile struct {
	DocType     string `json:"doc_type"`
	Version     int    `json:"version"`
	Filename    string `json:"filename"`
	StorageKey  string `json:"storage_key"`
	ContentType string `json:"content_type"`
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var req CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpkit.WriteError(w, errs.New(errs.CodeValidation, "invalid json"))
		return
	}
	if len(req.Files) == 0 {
		httpkit.WriteError(w, errs.New(errs.CodeValidation, "files must not be empty"))
		return
	}

	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}

	docs := make([]models.Document, 0, len(req.Files))
	for _, f := range req.Files {
		if f.DocType == "" || f.StorageKey == "" || f.Filename == "" {
			httpkit.WriteError(w, errs.New(errs.CodeValidation, "invalid file item"))
			return
		}
		if !models.ValidDocType(f.DocType) {
			httpkit.WriteError(w, errs.Newf(errs.CodeValidation, "invalid doc_type: %q", f.DocType))
			return
		}
		if f.Version != 0 && f.Version != job.TargetVersion {
			httpkit.WriteError(w, errs.New(errs.CodeValidation, "version mismatch"))
			return
		}
		contentType := f.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		docs = append(docs, models.Document{
			DocType:     f.DocType,
			Filename:    f.Filename,
			StorageKey:  f.StorageKey,
			ContentType: contentType,
		})
	}

	if err := s.store.CompleteJob(ctx, id, docs); err != nil {
		if errs.IsCode(err, errs.CodeVersionConflict) {
			// Should never happen while serialization holds; flag loudly.
			telemetry.VersionConflicts.Inc()
			log.Printf("version conflict on job %s: %v", id, err)
		}
		httpkit.WriteError(w, err)
		return
	}
	telemetry.JobsCompleted.Inc()
	httpkit.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "job_id": id})
}

// FailRequest is a worker's failure report. The message is recorded
// verbatim, never interpreted.
type FailRequest struct {
	ErrorMessage string `json:"error_message"`
}

func (s *Server) handleFail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var req FailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpkit.WriteError(w, errs.New(errs.CodeValidation, "invalid json"))
		return
	}
	if req.ErrorMessage == "" {
		req.ErrorMessage = "worker reported failure"
	}

	if err := s.store.FailJob(ctx, id, req.ErrorMessage); err != nil {
		httpkit.WriteError(w, err)
		return
	}
	telemetry.JobsFailed.Inc()
	httpkit.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "job_id": id})
}
