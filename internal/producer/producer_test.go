package producer

import (
	"context"
	"errors"
	"testing"

	"docpack/internal/errs"
	"docpack/internal/models"
	"docpack/internal/queue"
	"docpack/internal/store"
)

type fakeStore struct {
	company  models.Company
	client   models.Client
	existing *models.Package
	job      models.Job

	refreshedRate    float64
	refreshedSource  string
	refreshedAddress string
	refreshCalls     int
	created          *models.Package
	scheduleFailed   []string
}

func (f *fakeStore) GetCompany(_ context.Context, id string) (models.Company, error) {
	if id != f.company.ID {
		return models.Company{}, errs.New(errs.CodeNotFound, "company not found")
	}
	return f.company, nil
}

func (f *fakeStore) UpsertClient(_ context.Context, _ store.UpsertClientParams) (models.Client, error) {
	return f.client, nil
}

func (f *fakeStore) FindPackageByTerms(_ context.Context, _ models.Package) (models.Package, bool, error) {
	if f.existing == nil {
		return models.Package{}, false, nil
	}
	return *f.existing, true, nil
}

func (f *fakeStore) RefreshPackageTerms(_ context.Context, id, fxSource string, fxRate float64, countryDisplay, address string) (models.Package, error) {
	f.refreshCalls++
	f.refreshedSource = fxSource
	f.refreshedRate = fxRate
	f.refreshedAddress = address
	p := *f.existing
	p.FxSource = fxSource
	p.FxRate = fxRate
	p.CountryDisplay = countryDisplay
	p.Address = address
	return p, nil
}

func (f *fakeStore) CreatePackage(_ context.Context, p models.Package) (models.Package, error) {
	p.ID = "pkg-new"
	p.Status = models.PackageDraft
	f.created = &p
	return p, nil
}

func (f *fakeStore) ContractNumberExists(_ context.Context, _ string) (bool, error) {
	return false, nil
}

func (f *fakeStore) GetPackage(_ context.Context, id string) (models.Package, error) {
	if f.existing != nil && f.existing.ID == id {
		return *f.existing, nil
	}
	return models.Package{}, errs.New(errs.CodeNotFound, "package not found")
}

func (f *fakeStore) CreateGenerationJob(_ context.Context, packageID string) (models.Job, error) {
	job := f.job
	job.PackageID = packageID
	return job, nil
}

func (f *fakeStore) MarkScheduleFailed(_ context.Context, id string, _ string) error {
	f.scheduleFailed = append(f.scheduleFailed, id)
	return nil
}

type fakeQueue struct {
	messages []queue.Message
	err      error
}

func (q *fakeQueue) Enqueue(_ context.Context, msg queue.Message) error {
	if q.err != nil {
		return q.err
	}
	q.messages = append(q.messages, msg)
	return nil
}

type fixedRate float64

func (r fixedRate) Rate(_ context.Context, _ string) (float64, error) {
	return float64(r), nil
}

func submitFixtures() (*fakeStore, SubmitRequest) {
	st := &fakeStore{
		company: models.Company{ID: "c1", Name: "Horizon LLC"},
		client:  models.Client{ID: "cl1", FullName: "IVANOV IVAN"},
		job:     models.Job{ID: "j1", Status: models.JobQueued, TargetVersion: 2},
	}
	req := validRequest()
	req.CompanyID = "c1"
	return st, req
}

func TestSubmitReuseRefreshesManualRate(t *testing.T) {
	st, req := submitFixtures()
	st.existing = &models.Package{
		ID:       "p1",
		ClientID: "cl1",
		FxSource: models.FxManual,
		FxRate:   90,
	}
	q := &fakeQueue{}
	p := New(st, q, fixedRate(0))

	rate := 95.5
	req.FxRate = &rate
	receipt, err := p.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if st.created != nil {
		t.Fatal("matching package must be reused, not recreated")
	}
	if st.refreshCalls != 1 {
		t.Fatalf("expected one terms refresh, got %d", st.refreshCalls)
	}
	if st.refreshedSource != models.FxManual || st.refreshedRate != 95.5 {
		t.Fatalf("stale FX kept: source=%s rate=%v", st.refreshedSource, st.refreshedRate)
	}
	if receipt.PackageID != "p1" || receipt.JobID != "j1" {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
	if len(q.messages) != 1 || q.messages[0].PackageID != "p1" {
		t.Fatalf("unexpected dispatch: %+v", q.messages)
	}
}

func TestSubmitReuseStoresFreshCBRRate(t *testing.T) {
	st, req := submitFixtures()
	st.existing = &models.Package{
		ID:       "p1",
		ClientID: "cl1",
		FxSource: models.FxCBR,
		FxRate:   88,
	}
	p := New(st, &fakeQueue{}, fixedRate(93.25))

	req.FxSource = models.FxCBR
	req.FxRate = nil
	if _, err := p.Submit(context.Background(), req); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if st.refreshCalls != 1 || st.refreshedRate != 93.25 {
		t.Fatalf("fetched rate dropped: calls=%d rate=%v", st.refreshCalls, st.refreshedRate)
	}
}

func TestSubmitCreatesPackageWhenNoMatch(t *testing.T) {
	st, req := submitFixtures()
	q := &fakeQueue{}
	p := New(st, q, fixedRate(0))

	receipt, err := p.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if st.created == nil {
		t.Fatal("expected a new package")
	}
	if st.refreshCalls != 0 {
		t.Fatal("fresh package must not be refreshed")
	}
	if st.created.ContractNumber == "" {
		t.Fatal("new package must get a contract number")
	}
	if st.created.Address != defaultAddress {
		t.Fatalf("expected placeholder address, got %q", st.created.Address)
	}
	if receipt.PackageID != "pkg-new" {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
}

func TestSubmitEnqueueFailureMarksJob(t *testing.T) {
	st, req := submitFixtures()
	p := New(st, &fakeQueue{err: errors.New("redis down")}, fixedRate(0))

	_, err := p.Submit(context.Background(), req)
	if !errs.IsCode(err, errs.CodeScheduling) {
		t.Fatalf("expected SCHEDULING_ERROR, got %v", err)
	}
	if len(st.scheduleFailed) != 1 || st.scheduleFailed[0] != "j1" {
		t.Fatalf("job not marked schedule-failed: %v", st.scheduleFailed)
	}
}
