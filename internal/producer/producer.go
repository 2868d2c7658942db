// Package producer accepts generation and regeneration requests, owning
// package creation, version reservation, and dispatch. It never waits for a
// worker: callers get identifiers back and poll job status.
package producer

import (
	"context"
	"fmt"
	"log"
	"time"

	"docpack/internal/errs"
	"docpack/internal/models"
	"docpack/internal/queue"
	"docpack/internal/store"
	"docpack/internal/telemetry"
)

// RateSource resolves a currency's RUB rate when the request asks for a
// live source instead of a manual rate.
type RateSource interface {
	Rate(ctx context.Context, currency string) (float64, error)
}

// Store is the slice of persistence the producer needs.
type Store interface {
	GetCompany(ctx context.Context, id string) (models.Company, error)
	UpsertClient(ctx context.Context, p store.UpsertClientParams) (models.Client, error)
	FindPackageByTerms(ctx context.Context, p models.Package) (models.Package, bool, error)
	RefreshPackageTerms(ctx context.Context, id, fxSource string, fxRate float64, countryDisplay, address string) (models.Package, error)
	CreatePackage(ctx context.Context, p models.Package) (models.Package, error)
	ContractNumberExists(ctx context.Context, number string) (bool, error)
	GetPackage(ctx context.Context, id string) (models.Package, error)
	CreateGenerationJob(ctx context.Context, packageID string) (models.Job, error)
	MarkScheduleFailed(ctx context.Context, id string, msg string) error
}

// Dispatcher pushes job-start messages to workers.
type Dispatcher interface {
	Enqueue(ctx context.Context, msg queue.Message) error
}

// Producer validates requests and turns them into queued jobs.
type Producer struct {
	store Store
	queue Dispatcher
	rates RateSource
}

// New constructs a producer.
func New(st Store, q Dispatcher, rates RateSource) *Producer {
	return &Producer{store: st, queue: q, rates: rates}
}

// Receipt identifies the created job for polling.
type Receipt struct {
	JobID         string `json:"job_id"`
	PackageID     string `json:"package_id"`
	TargetVersion int    `json:"target_version"`
}

// Submit validates the request, finds or creates the package, reserves the
// next version, and dispatches the job.
func (p *Producer) Submit(ctx context.Context, req SubmitRequest) (Receipt, error) {
	dob, err := req.Validate()
	if err != nil {
		return Receipt{}, err
	}

	company, err := p.store.GetCompany(ctx, req.CompanyID)
	if err != nil {
		if errs.IsCode(err, errs.CodeNotFound) {
			return Receipt{}, errs.New(errs.CodeValidation, "company_id not found")
		}
		return Receipt{}, err
	}

	fxRate, err := p.resolveRate(ctx, req)
	if err != nil {
		return Receipt{}, err
	}

	issuing := req.Client.IssuingCountry
	if issuing == "" && req.Client.MRZ != "" {
		issuing = IssuingCountryFromMRZ(req.Client.MRZ)
	}

	var mrz, issuingPtr *string
	if req.Client.MRZ != "" {
		mrz = &req.Client.MRZ
	}
	if issuing != "" {
		issuingPtr = &issuing
	}
	client, err := p.store.UpsertClient(ctx, store.UpsertClientParams{
		FullName:       req.Client.FullName,
		PassportNo:     req.Client.PassportNo,
		DOB:            dob,
		MRZ:            mrz,
		IssuingCountry: issuingPtr,
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("upsert client: %w", err)
	}

	address := req.Address
	if address == "" {
		address = defaultAddress
	}

	pkg := models.Package{
		ClientID:          client.ID,
		CompanyID:         company.ID,
		Currency:          req.Currency,
		FxSource:          req.FxSource,
		FxRate:            fxRate,
		SalaryRUB:         req.SalaryRUB,
		Position:          req.Position,
		ContractTemplate:  req.ContractTemplate,
		InsuranceTemplate: req.InsuranceTemplate,
		CountryDisplay:    CountryDisplayFromIssuing(issuing),
		Address:           address,
	}

	existing, found, err := p.store.FindPackageByTerms(ctx, pkg)
	if err != nil {
		return Receipt{}, fmt.Errorf("find package: %w", err)
	}
	if found {
		// The terms match ignores FX and address, so a reused package must
		// pick up the rate resolved for this request before dispatch.
		pkg, err = p.store.RefreshPackageTerms(ctx, existing.ID, pkg.FxSource, pkg.FxRate, pkg.CountryDisplay, pkg.Address)
		if err != nil {
			return Receipt{}, fmt.Errorf("refresh package terms: %w", err)
		}
	} else {
		startDate := RandomStartDateWithinLast6Months(time.Time{})
		pkg.StartDate = startDate
		pkg.ContractStartDate = startDate
		number, err := p.allocateContractNumber(ctx)
		if err != nil {
			return Receipt{}, err
		}
		pkg.ContractNumber = number
		if pkg, err = p.store.CreatePackage(ctx, pkg); err != nil {
			return Receipt{}, err
		}
	}

	return p.dispatch(ctx, pkg.ID)
}

// Regenerate reuses the package's stored parameters and dispatches a job for
// the next version, subject to the same serialization rules as Submit.
func (p *Producer) Regenerate(ctx context.Context, packageID string) (Receipt, error) {
	pkg, err := p.store.GetPackage(ctx, packageID)
	if err != nil {
		return Receipt{}, err
	}
	return p.dispatch(ctx, pkg.ID)
}

func (p *Producer) dispatch(ctx context.Context, packageID string) (Receipt, error) {
	job, err := p.store.CreateGenerationJob(ctx, packageID)
	if err != nil {
		return Receipt{}, err
	}

	msg := queue.Message{JobID: job.ID, PackageID: packageID}
	if err := p.queue.Enqueue(ctx, msg); err != nil {
		// The job must not dangle in queued with no message behind it.
		if markErr := p.store.MarkScheduleFailed(ctx, job.ID, "failed to schedule"); markErr != nil {
			log.Printf("mark schedule failure job=%s: %v", job.ID, markErr)
		}
		return Receipt{}, errs.Wrap(errs.CodeScheduling, "enqueue dispatch message", err)
	}
	telemetry.JobsEnqueued.Inc()

	return Receipt{JobID: job.ID, PackageID: packageID, TargetVersion: job.TargetVersion}, nil
}

func (p *Producer) resolveRate(ctx context.Context, req SubmitRequest) (float64, error) {
	if req.FxSource == models.FxManual {
		return *req.FxRate, nil
	}
	rate, err := p.rates.Rate(ctx, req.Currency)
	if err != nil {
		return 0, err
	}
	return rate, nil
}

func (p *Producer) allocateContractNumber(ctx context.Context) (string, error) {
	for i := 0; i < 15; i++ {
		candidate := GenerateContractNumber(0)
		exists, err := p.store.ContractNumberExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", errs.New(errs.CodeInternal, "failed to allocate unique contract number")
}
