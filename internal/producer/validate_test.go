package producer

import (
	"testing"

	"docpack/internal/errs"
)

func validRequest() SubmitRequest {
	var r SubmitRequest
	r.Client.FullName = "IVANOV IVAN"
	r.Client.PassportNo = "75 1234567"
	r.Client.DOB = "1990-04-12"
	r.CompanyID = "c1"
	r.SalaryRUB = 250000
	r.Position = "Engineer"
	r.Currency = "USD"
	r.FxSource = "manual"
	rate := 92.5
	r.FxRate = &rate
	r.ContractTemplate = "договор"
	r.InsuranceTemplate = "страховка"
	return r
}

func TestValidateOK(t *testing.T) {
	dob, err := validRequest().Validate()
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if dob.Year() != 1990 || dob.Month() != 4 {
		t.Fatalf("unexpected dob %s", dob)
	}
}

func TestValidateCBRNeedsNoRate(t *testing.T) {
	r := validRequest()
	r.FxSource = "cbr"
	r.FxRate = nil
	if _, err := r.Validate(); err != nil {
		t.Fatalf("cbr source should not require fx_rate: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*SubmitRequest)
	}{
		{"missing full name", func(r *SubmitRequest) { r.Client.FullName = "" }},
		{"missing passport", func(r *SubmitRequest) { r.Client.PassportNo = "" }},
		{"bad dob", func(r *SubmitRequest) { r.Client.DOB = "12.04.1990" }},
		{"missing company", func(r *SubmitRequest) { r.CompanyID = "" }},
		{"missing position", func(r *SubmitRequest) { r.Position = "" }},
		{"zero salary", func(r *SubmitRequest) { r.SalaryRUB = 0 }},
		{"bad currency", func(r *SubmitRequest) { r.Currency = "EUR" }},
		{"bad fx source", func(r *SubmitRequest) { r.FxSource = "ecb" }},
		{"manual without rate", func(r *SubmitRequest) { r.FxRate = nil }},
		{"manual with zero rate", func(r *SubmitRequest) { z := 0.0; r.FxRate = &z }},
		{"unknown contract template", func(r *SubmitRequest) { r.ContractTemplate = "договор3" }},
		{"unknown insurance template", func(r *SubmitRequest) { r.InsuranceTemplate = "none" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := validRequest()
			tc.mutate(&r)
			_, err := r.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errs.IsCode(err, errs.CodeValidation) {
				t.Fatalf("expected VALIDATION_ERROR, got %v", err)
			}
		})
	}
}
