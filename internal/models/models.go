package models

import (
	"strings"
	"time"
)

// JobStatus values persisted in Postgres. A job is created queued, claimed by
// the first payload fetch, and finishes done or error. Terminal jobs are
// never mutated again.
const (
	JobQueued  = "queued"
	JobRunning = "running"
	JobDone    = "done"
	JobError   = "error"
)

// PackageStatus values.
const (
	PackageDraft     = "draft"
	PackageGenerated = "generated"
	PackageError     = "error"
)

// Document types produced per package version.
const (
	DocContract      = "contract"
	DocBankStatement = "bank_statement"
	DocInsurance     = "insurance"
	DocSalary        = "salary"
	DocBundle        = "bundle"
	DocOther         = "other"
)

// Supported currencies and FX sources.
const (
	CurrencyUSD = "USD"
	CurrencyAED = "AED"

	FxManual = "manual"
	FxCBR    = "cbr"
)

// CanTransition reports whether a job status edge is legal. The only edges
// are queued->running and queued/running->done|error.
func CanTransition(from, to string) bool {
	switch from {
	case JobQueued:
		return to == JobRunning || to == JobDone || to == JobError
	case JobRunning:
		return to == JobDone || to == JobError
	default:
		return false
	}
}

// Terminal reports whether a job status is final.
func Terminal(status string) bool {
	return status == JobDone || status == JobError
}

// ValidDocType reports whether a worker-supplied document type is known.
func ValidDocType(t string) bool {
	switch t {
	case DocContract, DocBankStatement, DocInsurance, DocSalary, DocBundle, DocOther:
		return true
	}
	return false
}

// Client is a person documents are produced for. Unique on (passport_no, dob).
type Client struct {
	ID             string    `json:"client_id"`
	FullName       string    `json:"full_name"`
	PassportNo     string    `json:"-"`
	DOB            time.Time `json:"dob"`
	MRZ            *string   `json:"-"`
	IssuingCountry *string   `json:"issuing_country,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// PassportMasked hides all but the last two alphanumeric characters.
func (c Client) PassportMasked() string {
	return MaskPassport(c.PassportNo)
}

// MaskPassport keeps punctuation and the last two alphanumerics visible.
func MaskPassport(p string) string {
	idx := make([]int, 0, len(p))
	for i, r := range p {
		if isAlnum(r) {
			idx = append(idx, i)
		}
	}
	if len(idx) <= 2 {
		return strings.Repeat("*", len(p))
	}
	keep := map[int]bool{idx[len(idx)-2]: true, idx[len(idx)-1]: true}
	var b strings.Builder
	for i, r := range p {
		switch {
		case keep[i]:
			b.WriteRune(r)
		case isAlnum(r):
			b.WriteRune('*')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isAlnum(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// Company holds the visual assets stamped into every rendered document.
// The *Key fields are blob storage keys, not URLs.
type Company struct {
	ID              string    `json:"company_id"`
	Name            string    `json:"name"`
	SealKey         string    `json:"seal_key"`
	LogoKey         string    `json:"logo_key"`
	DirectorSignKey string    `json:"director_sign_key"`
	ClientSignKey   string    `json:"client_sign_key"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Package is the versioned bundle of documents for one client/company/terms
// combination. VersionCounter is the highest version with a done job;
// ReservedVersion is the last target version handed to any job, so failed
// versions are skipped rather than reissued.
type Package struct {
	ID                string    `json:"package_id"`
	Status            string    `json:"status"`
	ClientID          string    `json:"client_id"`
	CompanyID         string    `json:"company_id"`
	Currency          string    `json:"currency"`
	FxSource          string    `json:"fx_source"`
	FxRate            float64   `json:"fx_rate"`
	SalaryRUB         float64   `json:"salary_rub"`
	Position          string    `json:"position"`
	StartDate         time.Time `json:"start_date"`
	ContractStartDate time.Time `json:"contract_start_date"`
	ContractNumber    string    `json:"contract_number"`
	ContractTemplate  string    `json:"contract_template"`
	InsuranceTemplate string    `json:"insurance_template"`
	CountryDisplay    string    `json:"country_display"`
	Address           string    `json:"address"`
	VersionCounter    int       `json:"version_counter"`
	ReservedVersion   int       `json:"-"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Job is one attempt to produce a new package version.
type Job struct {
	ID            string     `json:"job_id"`
	PackageID     string     `json:"package_id"`
	Status        string     `json:"status"`
	TargetVersion int        `json:"target_version"`
	ErrorMessage  *string    `json:"error_message,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Document is one rendered artifact. Rows are append-only and stamped with
// the version of the job that produced them.
type Document struct {
	ID          string    `json:"-"`
	PackageID   string    `json:"-"`
	DocType     string    `json:"doc_type"`
	Version     int       `json:"version"`
	Filename    string    `json:"filename"`
	StorageKey  string    `json:"storage_key"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
}
