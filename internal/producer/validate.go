package producer

import (
	"time"

	"docpack/internal/errs"
	"docpack/internal/models"
)

// SubmitRequest is the validated input for a first-time generation.
type SubmitRequest struct {
	Client struct {
		FullName       string `json:"full_name"`
		PassportNo     string `json:"passport_no"`
		DOB            string `json:"dob"`
		MRZ            string `json:"mrz,omitempty"`
		IssuingCountry string `json:"issuing_country,omitempty"`
	} `json:"client"`

	CompanyID string `json:"company_id"`

	SalaryRUB float64 `json:"salary_rub"`
	Position  string  `json:"position"`

	Currency string   `json:"currency"`
	FxSource string   `json:"fx_source"`
	FxRate   *float64 `json:"fx_rate,omitempty"`

	ContractTemplate  string `json:"contract_template"`
	InsuranceTemplate string `json:"insurance_template"`

	Address string `json:"address,omitempty"`
}

var (
	contractTemplates  = map[string]bool{"договор": true, "договор2": true}
	insuranceTemplates = map[string]bool{"страховка": true, "РГС": true}
)

// Validate checks required fields and enum values; returns the parsed date
// of birth. Nothing is persisted before this passes.
func (r SubmitRequest) Validate() (time.Time, error) {
	if r.Client.FullName == "" {
		return time.Time{}, errs.New(errs.CodeValidation, "client.full_name is required")
	}
	if r.Client.PassportNo == "" {
		return time.Time{}, errs.New(errs.CodeValidation, "client.passport_no is required")
	}
	dob, err := time.Parse("2006-01-02", r.Client.DOB)
	if err != nil {
		return time.Time{}, errs.New(errs.CodeValidation, "client.dob must be YYYY-MM-DD")
	}
	if r.CompanyID == "" {
		return time.Time{}, errs.New(errs.CodeValidation, "company_id is required")
	}
	if r.Position == "" {
		return time.Time{}, errs.New(errs.CodeValidation, "position is required")
	}
	if r.SalaryRUB <= 0 {
		return time.Time{}, errs.New(errs.CodeValidation, "salary_rub must be positive")
	}
	if r.Currency != models.CurrencyUSD && r.Currency != models.CurrencyAED {
		return time.Time{}, errs.Newf(errs.CodeValidation, "currency must be %s or %s", models.CurrencyUSD, models.CurrencyAED)
	}
	switch r.FxSource {
	case models.FxManual:
		if r.FxRate == nil || *r.FxRate <= 0 {
			return time.Time{}, errs.New(errs.CodeValidation, "fx_rate is required for manual fx")
		}
	case models.FxCBR:
	default:
		return time.Time{}, errs.Newf(errs.CodeValidation, "fx_source must be %s or %s", models.FxManual, models.FxCBR)
	}
	if !contractTemplates[r.ContractTemplate] {
		return time.Time{}, errs.New(errs.CodeValidation, "unknown contract_template")
	}
	if !insuranceTemplates[r.InsuranceTemplate] {
		return time.Time{}, errs.New(errs.CodeValidation, "unknown insurance_template")
	}
	return dob, nil
}
