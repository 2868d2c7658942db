package gateway

import (
	"fmt"
	"path"
	"strings"

	"docpack/internal/models"
)

// Payload is everything a worker needs to render one package version. All
// lookups are resolved up front so the worker never touches the database and
// a re-fetch of a running job yields the identical document.
type Payload struct {
	JobID     string `json:"job_id"`
	PackageID string `json:"package_id"`

	TemplateKey string `json:"template_key"`

	Company CompanyBlock `json:"company"`
	Client  ClientBlock  `json:"client"`
	Job     JobBlock     `json:"job"`
	Export  ExportBlock  `json:"export"`
}

// CompanyBlock resolves the "selected company" into explicit values.
type CompanyBlock struct {
	CompanyID string     `json:"company_id"`
	Name      string     `json:"selected_company_name"`
	Assets    AssetBlock `json:"assets"`
}

// AssetBlock carries storage keys for the company's visual assets.
type AssetBlock struct {
	LogoKey         string `json:"logo_key"`
	SealKey         string `json:"seal_key"`
	DirectorSignKey string `json:"director_sign_key"`
	ClientSignKey   string `json:"client_sign_key"`
}

// ClientBlock is the flat set of person fields filled into the templates.
type ClientBlock struct {
	FullName       string `json:"full_name"`
	PassportNo     string `json:"passport_no"`
	DOB            string `json:"dob"`
	Address        string `json:"address"`
	CountryDisplay string `json:"country_display"`
}

// JobBlock carries the contract terms frozen at submission time.
type JobBlock struct {
	TargetVersion     int     `json:"target_version"`
	CurrencySymbol    string  `json:"currency_symbol"`
	FxRate            float64 `json:"fx_rate"`
	SalaryRUB         float64 `json:"salary_rub"`
	Position          string  `json:"position"`
	ContractStartDate string  `json:"contract_start_date"`
	ContractNumber    string  `json:"contract_number"`
}

// ExportBlock enumerates the render targets. StorageKey is precomputed here
// so the versioned key layout stays in one place.
type ExportBlock struct {
	Targets   []ExportTarget `json:"targets"`
	BundleKey string         `json:"bundle_key"`
}

// ExportTarget maps one document type onto its sheet template, output file
// name, and final storage key.
type ExportTarget struct {
	DocType    string `json:"doc_type"`
	Sheet      string `json:"sheet"`
	OutputFile string `json:"output_file"`
	StorageKey string `json:"storage_key"`
}

// BuildPayload assembles the rendering payload for a job.
func BuildPayload(templateKey string, job models.Job, pkg models.Package, client models.Client, company models.Company) Payload {
	return Payload{
		JobID:       job.ID,
		PackageID:   pkg.ID,
		TemplateKey: templateKey,
		Company: CompanyBlock{
			CompanyID: company.ID,
			Name:      company.Name,
			Assets: AssetBlock{
				LogoKey:         company.LogoKey,
				SealKey:         company.SealKey,
				DirectorSignKey: company.DirectorSignKey,
				ClientSignKey:   company.ClientSignKey,
			},
		},
		Client: ClientBlock{
			FullName:       client.FullName,
			PassportNo:     client.PassportNo,
			DOB:            client.DOB.Format("2006-01-02"),
			Address:        pkg.Address,
			CountryDisplay: pkg.CountryDisplay,
		},
		Job: JobBlock{
			TargetVersion:     job.TargetVersion,
			CurrencySymbol:    currencySymbol(pkg.Currency),
			FxRate:            pkg.FxRate,
			SalaryRUB:         pkg.SalaryRUB,
			Position:          pkg.Position,
			ContractStartDate: pkg.ContractStartDate.Format("2006-01-02"),
			ContractNumber:    pkg.ContractNumber,
		},
		Export: exportBlock(pkg, job.TargetVersion),
	}
}

func exportBlock(pkg models.Package, version int) ExportBlock {
	targets := []ExportTarget{
		{DocType: models.DocContract, Sheet: pkg.ContractTemplate, OutputFile: "Contract.pdf"},
		{DocType: models.DocBankStatement, Sheet: bankTemplate(pkg.Currency), OutputFile: "Bank_Statement_6m.pdf"},
		{DocType: models.DocInsurance, Sheet: pkg.InsuranceTemplate, OutputFile: "Insurance.pdf"},
		{DocType: models.DocSalary, Sheet: "Salary упрошенная", OutputFile: "Salary_Certificate.pdf"},
	}
	for i := range targets {
		targets[i].StorageKey = documentKey(pkg.ID, targets[i].OutputFile, version)
	}
	return ExportBlock{
		Targets:   targets,
		BundleKey: fmt.Sprintf("packages/%s/bundle_v%d.zip", pkg.ID, version),
	}
}

// documentKey renders packages/{package_id}/{Name}_v{version}.{ext}.
func documentKey(packageID, outputFile string, version int) string {
	ext := path.Ext(outputFile)
	base := strings.TrimSuffix(outputFile, ext)
	return fmt.Sprintf("packages/%s/%s_v%d%s", packageID, base, version, ext)
}

func currencySymbol(currency string) string {
	if currency == models.CurrencyAED {
		return "AED"
	}
	return "$"
}

// bankTemplate picks the statement sheet for the currency. Sheet names come
// from the source workbook.
func bankTemplate(currency string) string {
	if currency == models.CurrencyUSD {
		return "т-банк 2 (6 мес) $"
	}
	return "т-банк 2 (6 мес)"
}
