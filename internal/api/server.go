package api

import (
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"docpack/internal/config"
	"docpack/internal/errs"
	"docpack/internal/gateway"
	"docpack/internal/httpkit"
	"docpack/internal/models"
	"docpack/internal/producer"
	"docpack/internal/ratelimit"
	"docpack/internal/storage"
	"docpack/internal/store"
	"docpack/internal/telemetry"
)

// Server wires the public HTTP surface: submission, polling, and downloads.
type Server struct {
	cfg      config.Config
	store    *store.Store
	producer *producer.Producer
	storage  *storage.Client
	gateway  *gateway.Server
	limiter  *ratelimit.TokenBucket
}

// New constructs the API server.
func New(cfg config.Config, st *store.Store, prod *producer.Producer, blob *storage.Client, gw *gateway.Server, limiter *ratelimit.TokenBucket) *Server {
	return &Server{
		cfg:      cfg,
		store:    st,
		producer: prod,
		storage:  blob,
		gateway:  gw,
		limiter:  limiter,
	}
}

// Router builds the HTTP router, mounting the worker gateway under /internal.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Mount("/metrics", telemetry.Handler())

	r.Post("/packages/generate", s.handleGenerate)
	r.Post("/packages/{id}/regenerate", s.handleRegenerate)
	r.Get("/packages/{id}", s.handleGetPackage)
	r.Get("/packages/{id}/download", s.handleDownload)

	r.Get("/jobs/{id}", s.handleGetJob)

	r.Get("/clients", s.handleSearchClients)
	r.Get("/clients/{id}", s.handleGetClient)
	r.Get("/clients/{id}/packages", s.handleClientPackages)

	r.Get("/companies", s.handleListCompanies)
	r.Get("/files/presign", s.handlePresign)

	r.With(s.gateway.RequireKey).Post("/internal/companies", s.handleCreateCompany)
	r.Mount("/internal", s.gateway.Router())

	return r
}

func (s *Server) allow(w http.ResponseWriter, r *http.Request, key string) bool {
	if s.limiter == nil {
		return true
	}
	allowed, _, err := s.limiter.Allow(r.Context(), key)
	if err != nil {
		log.Printf("rate limiter: %v", err)
		return true // fail open
	}
	if !allowed {
		telemetry.RateLimitRejects.Inc()
		httpkit.WriteError(w, errs.New(errs.CodeRateLimited, "rate limited"))
		return false
	}
	return true
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req producer.SubmitRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		httpkit.WriteError(w, errs.New(errs.CodeValidation, "invalid json"))
		return
	}
	if !s.allow(w, r, req.CompanyID) {
		return
	}

	receipt, err := s.producer.Submit(r.Context(), req)
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	httpkit.WriteJSON(w, http.StatusAccepted, receipt)
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.allow(w, r, id) {
		return
	}

	receipt, err := s.producer.Regenerate(r.Context(), id)
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	httpkit.WriteJSON(w, http.StatusAccepted, receipt)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	httpkit.WriteJSON(w, http.StatusOK, job)
}

type documentOut struct {
	models.Document
	PresignedURL string `json:"presigned_url,omitempty"`
}

type packageOut struct {
	models.Package
	Client    clientOut      `json:"client"`
	Company   companySummary `json:"company"`
	Documents []documentOut  `json:"documents"`
}

type clientOut struct {
	ClientID       string  `json:"client_id"`
	FullName       string  `json:"full_name"`
	PassportMasked string  `json:"passport_masked"`
	DOB            string  `json:"dob"`
	IssuingCountry *string `json:"issuing_country,omitempty"`
}

type companySummary struct {
	CompanyID string `json:"company_id"`
	Name      string `json:"name"`
}

func (s *Server) handleGetPackage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pkg, err := s.store.GetPackage(ctx, chi.URLParam(r, "id"))
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
	docs, err := s.store.ListDocuments(ctx, pkg.ID)
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}

	out := packageOut{
		Package: pkg,
		Client: clientOut{
			ClientID:       client.ID,
			FullName:       client.FullName,
			PassportMasked: client.PassportMasked(),
			DOB:            client.DOB.Format("2006-01-02"),
			IssuingCountry: client.IssuingCountry,
		},
		Company:   companySummary{CompanyID: company.ID, Name: company.Name},
		Documents: make([]documentOut, 0, len(docs)),
	}
	for _, d := range docs {
		url, err := s.storage.PresignGet(ctx, d.StorageKey)
		if err != nil {
			// A presign failure should not hide the document row.
			log.Printf("presign %s: %v", d.StorageKey, err)
			url = ""
		}
		out.Documents = append(out.Documents, documentOut{Document: d, PresignedURL: url})
	}
	httpkit.WriteJSON(w, http.StatusOK, out)
}

// handleDownload returns a presigned URL for the bundle at the current
// version, falling back to the highest bundle on record.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pkg, err := s.store.GetPackage(ctx, chi.URLParam(r, "id"))
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}

	bundle, err := s.store.FindBundle(ctx, pkg.ID, pkg.VersionCounter)
	if errs.IsCode(err, errs.CodeNotFound) {
		bundle, err = s.store.FindBundle(ctx, pkg.ID, 0)
	}
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}

	url, err := s.storage.PresignGet(ctx, bundle.StorageKey)
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]string{"url": url})
}

type clientSearchItem struct {
	ClientID       string  `json:"client_id"`
	FullName       string  `json:"full_name"`
	PassportMasked string  `json:"passport_masked"`
	DOB            string  `json:"dob"`
	IssuingCountry *string `json:"issuing_country,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

func (s *Server) handleSearchClients(w http.ResponseWriter, r *http.Request) {
	limit := 30
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	clients, err := s.store.SearchClients(r.Context(), r.URL.Query().Get("query"), limit)
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	out := make([]clientSearchItem, 0, len(clients))
	for _, c := range clients {
		out = append(out, clientSearchItem{
			ClientID:       c.ID,
			FullName:       c.FullName,
			PassportMasked: c.PassportMasked(),
			DOB:            c.DOB.Format("2006-01-02"),
			IssuingCountry: c.IssuingCountry,
			CreatedAt:      c.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	httpkit.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetClient(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.GetClient(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	httpkit.WriteJSON(w, http.StatusOK, clientSearchItem{
		ClientID:       c.ID,
		FullName:       c.FullName,
		PassportMasked: c.PassportMasked(),
		DOB:            c.DOB.Format("2006-01-02"),
		IssuingCountry: c.IssuingCountry,
		CreatedAt:      c.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

func (s *Server) handleClientPackages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetClient(ctx, id); err != nil {
		httpkit.WriteError(w, err)
		return
	}
	pkgs, err := s.store.ListClientPackages(ctx, id)
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	httpkit.WriteJSON(w, http.StatusOK, pkgs)
}

func (s *Server) handleListCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := s.store.ListCompanies(r.Context())
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	type companyPublic struct {
		CompanyID string `json:"company_id"`
		Name      string `json:"name"`
	}
	out := make([]companyPublic, 0, len(companies))
	for _, c := range companies {
		out = append(out, companyPublic{CompanyID: c.ID, Name: c.Name})
	}
	httpkit.WriteJSON(w, http.StatusOK, out)
}

type createCompanyRequest struct {
	Name            string `json:"name"`
	SealKey         string `json:"seal_key"`
	LogoKey         string `json:"logo_key"`
	DirectorSignKey string `json:"director_sign_key"`
	ClientSignKey   string `json:"client_sign_key"`
}

func (s *Server) handleCreateCompany(w http.ResponseWriter, r *http.Request) {
	var req createCompanyRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		httpkit.WriteError(w, errs.New(errs.CodeValidation, "invalid json"))
		return
	}
	if req.Name == "" || req.SealKey == "" || req.LogoKey == "" || req.DirectorSignKey == "" || req.ClientSignKey == "" {
		httpkit.WriteError(w, errs.New(errs.CodeValidation, "name and all asset keys are required"))
		return
	}
	company, err := s.store.CreateCompany(r.Context(), models.Company{
		Name:            req.Name,
		SealKey:         req.SealKey,
		LogoKey:         req.LogoKey,
		DirectorSignKey: req.DirectorSignKey,
		ClientSignKey:   req.ClientSignKey,
	})
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	httpkit.WriteJSON(w, http.StatusCreated, company)
}

func (s *Server) handlePresign(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		httpkit.WriteError(w, errs.New(errs.CodeValidation, "key is required"))
		return
	}
	url, err := s.storage.PresignGet(r.Context(), key)
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]string{"url": url})
}
