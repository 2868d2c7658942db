package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"docpack/internal/errs"
	"docpack/internal/models"
)

const packageColumns = `
	id, status, client_id, company_id, currency, fx_source, fx_rate,
	salary_rub, position, start_date, contract_start_date, contract_number,
	contract_template, insurance_template, country_display, address,
	version_counter, reserved_version, created_at, updated_at`

// GetPackage fetches a package by id.
func (s *Store) GetPackage(ctx context.Context, id string) (models.Package, error) {
	row := s.pool.QueryRow(ctx, `SELECT`+packageColumns+` FROM packages WHERE id = $1`, id)
	p, err := scanPackage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Package{}, errs.New(errs.CodeNotFound, "package not found")
	}
	return p, err
}

// ListClientPackages returns a client's packages, newest first.
func (s *Store) ListClientPackages(ctx context.Context, clientID string) ([]models.Package, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT`+packageColumns+` FROM packages WHERE client_id = $1 ORDER BY created_at DESC
	`, clientID)
	if err != nil {
		return nil, fmt.Errorf("list client packages: %w", err)
	}
	defer rows.Close()

	var out []models.Package
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// FindPackageByTerms looks for an existing package matching the same
// client/company/job-terms combination so repeated submissions version one
// package instead of spawning siblings.
func (s *Store) FindPackageByTerms(ctx context.Context, p models.Package) (models.Package, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT`+packageColumns+`
		FROM packages
		WHERE client_id = $1 AND company_id = $2 AND currency = $3
		  AND position = $4 AND salary_rub = $5
		  AND contract_template = $6 AND insurance_template = $7
		ORDER BY created_at DESC
		LIMIT 1
	`, p.ClientID, p.CompanyID, p.Currency, p.Position, p.SalaryRUB, p.ContractTemplate, p.InsuranceTemplate)
	found, err := scanPackage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Package{}, false, nil
	}
	if err != nil {
		return models.Package{}, false, err
	}
	return found, true, nil
}

// RefreshPackageTerms overwrites the request-scoped fields on a reused
// package. The terms match deliberately ignores FX values and address, so a
// new submission must land its freshly resolved rate here or the next
// version would render against a stale one.
func (s *Store) RefreshPackageTerms(ctx context.Context, id, fxSource string, fxRate float64, countryDisplay, address string) (models.Package, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE packages
		SET fx_source = $2, fx_rate = $3, country_display = $4, address = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING`+packageColumns+`
	`, id, fxSource, fxRate, countryDisplay, address)
	p, err := scanPackage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Package{}, errs.New(errs.CodeNotFound, "package not found")
	}
	return p, err
}

// CreatePackage inserts a fresh draft package with both counters at zero.
func (s *Store) CreatePackage(ctx context.Context, p models.Package) (models.Package, error) {
	p.ID = uuid.New().String()
	p.Status = models.PackageDraft
	row := s.pool.QueryRow(ctx, `
		INSERT INTO packages (
			id, status, client_id, company_id, currency, fx_source, fx_rate,
			salary_rub, position, start_date, contract_start_date, contract_number,
			contract_template, insurance_template, country_display, address
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING`+packageColumns+`
	`, p.ID, p.Status, p.ClientID, p.CompanyID, p.Currency, p.FxSource, p.FxRate,
		p.SalaryRUB, p.Position, p.StartDate, p.ContractStartDate, p.ContractNumber,
		p.ContractTemplate, p.InsuranceTemplate, p.CountryDisplay, p.Address)
	out, err := scanPackage(row)
	if isUniqueViolation(err) {
		return models.Package{}, errs.New(errs.CodeConflict, "contract number collision")
	}
	return out, err
}

// ContractNumberExists reports whether a contract number is already taken.
func (s *Store) ContractNumberExists(ctx context.Context, number string) (bool, error) {
	var id string
	err := s.pool.QueryRow(ctx, `SELECT id FROM packages WHERE contract_number = $1`, number).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check contract number: %w", err)
	}
	return true, nil
}

func scanPackage(row pgx.Row) (models.Package, error) {
	var p models.Package
	var startDate, contractStart time.Time
	err := row.Scan(
		&p.ID, &p.Status, &p.ClientID, &p.CompanyID, &p.Currency, &p.FxSource, &p.FxRate,
		&p.SalaryRUB, &p.Position, &startDate, &contractStart, &p.ContractNumber,
		&p.ContractTemplate, &p.InsuranceTemplate, &p.CountryDisplay, &p.Address,
		&p.VersionCounter, &p.ReservedVersion, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
			return models.Package{}, err
		}
		return models.Package{}, fmt.Errorf("scan package: %w", err)
	}
	p.StartDate = startDate
	p.ContractStartDate = contractStart
	return p, nil
}
