package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"docpack/internal/errs"
	"docpack/internal/models"
)

// Store wraps pgxpool for Postgres persistence.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// isUniqueViolation reports a Postgres 23505 unique constraint error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func textPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}

func timePtr(t pgtype.Timestamptz) *time.Time {
	if t.Valid {
		return &t.Time
	}
	return nil
}

// UpsertClientParams collects inputs for client upsert by passport+dob.
type UpsertClientParams struct {
	FullName       string
	PassportNo     string
	DOB            time.Time
	MRZ            *string
	IssuingCountry *string
}

// UpsertClient finds a client by (passport_no, dob) or creates one. On reuse
// the name, MRZ, and issuing country are refreshed from the request.
func (s *Store) UpsertClient(ctx context.Context, p UpsertClientParams) (models.Client, error) {
	id := uuid.New().String()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO clients (id, full_name, passport_no, dob, mrz, issuing_country)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (passport_no, dob) DO UPDATE
		SET full_name = EXCLUDED.full_name,
		    mrz = EXCLUDED.mrz,
		    issuing_country = EXCLUDED.issuing_country,
		    updated_at = NOW()
		RETURNING id, full_name, passport_no, dob, mrz, issuing_country, created_at, updated_at
	`, id, p.FullName, p.PassportNo, p.DOB, p.MRZ, p.IssuingCountry)
	return scanClient(row)
}

// GetClient fetches a client by id.
func (s *Store) GetClient(ctx context.Context, id string) (models.Client, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, full_name, passport_no, dob, mrz, issuing_country, created_at, updated_at
		FROM clients WHERE id = $1
	`, id)
	c, err := scanClient(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Client{}, errs.New(errs.CodeNotFound, "client not found")
	}
	return c, err
}

// SearchClients filters by name or passport substring, newest first.
func (s *Store) SearchClients(ctx context.Context, query string, limit int) ([]models.Client, error) {
	if limit <= 0 || limit > 100 {
		limit = 30
	}
	var rows pgx.Rows
	var err error
	if query == "" {
		rows, err = s.pool.Query(ctx, `
			SELECT id, full_name, passport_no, dob, mrz, issuing_country, created_at, updated_at
			FROM clients ORDER BY created_at DESC LIMIT $1
		`, limit)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT id, full_name, passport_no, dob, mrz, issuing_country, created_at, updated_at
			FROM clients
			WHERE full_name ILIKE '%' || $1 || '%' OR passport_no LIKE '%' || $1 || '%'
			ORDER BY created_at DESC LIMIT $2
		`, query, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("search clients: %w", err)
	}
	defer rows.Close()

	var out []models.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanClient(row pgx.Row) (models.Client, error) {
	var c models.Client
	var mrz, issuing pgtype.Text
	if err := row.Scan(&c.ID, &c.FullName, &c.PassportNo, &c.DOB, &mrz, &issuing, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Client{}, err
		}
		return models.Client{}, fmt.Errorf("scan client: %w", err)
	}
	c.MRZ = textPtr(mrz)
	c.IssuingCountry = textPtr(issuing)
	return c, nil
}

// CreateCompany inserts a company with its asset keys.
func (s *Store) CreateCompany(ctx context.Context, c models.Company) (models.Company, error) {
	c.ID = uuid.New().String()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO companies (id, name, seal_key, logo_key, director_sign_key, client_sign_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, name, seal_key, logo_key, director_sign_key, client_sign_key, created_at, updated_at
	`, c.ID, c.Name, c.SealKey, c.LogoKey, c.DirectorSignKey, c.ClientSignKey)
	out, err := scanCompany(row)
	if isUniqueViolation(err) {
		return models.Company{}, errs.Newf(errs.CodeConflict, "company %q already exists", c.Name)
	}
	return out, err
}

// GetCompany fetches a company by id.
func (s *Store) GetCompany(ctx context.Context, id string) (models.Company, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, seal_key, logo_key, director_sign_key, client_sign_key, created_at, updated_at
		FROM companies WHERE id = $1
	`, id)
	c, err := scanCompany(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Company{}, errs.New(errs.CodeNotFound, "company not found")
	}
	return c, err
}

// ListCompanies returns all companies, oldest first.
func (s *Store) ListCompanies(ctx context.Context) ([]models.Company, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, seal_key, logo_key, director_sign_key, client_sign_key, created_at, updated_at
		FROM companies ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	defer rows.Close()

	var out []models.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCompany(row pgx.Row) (models.Company, error) {
	var c models.Company
	err := row.Scan(&c.ID, &c.Name, &c.SealKey, &c.LogoKey, &c.DirectorSignKey, &c.ClientSignKey, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
			return models.Company{}, err
		}
		return models.Company{}, fmt.Errorf("scan company: %w", err)
	}
	return c, nil
}
