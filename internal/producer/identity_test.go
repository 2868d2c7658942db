package producer

import (
	"regexp"
	"testing"
	"time"
)

func TestIssuingCountryFromMRZ(t *testing.T) {
	cases := []struct {
		name string
		mrz  string
		want string
	}{
		{"russian passport", "P<RUSIVANOV<<IVAN<<<<<<<<<<<<<<<<<<<<<<<<<<<", "RUS"},
		{"lowercase code", "p<gbrSMITH<<JOHN", ""},
		{"second line ignored", "P<ARENAME<<FIRST\n1234567890ARE8001014M2501017<<<<<<<<<<<<<<04", "ARE"},
		{"leading blank line", "\n  P<USADOE<<JANE", "USA"},
		{"no marker", "1234567890", ""},
		{"too short", "P<RU", ""},
		{"digits in code", "P<R1SFOO", ""},
		{"empty", "   ", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IssuingCountryFromMRZ(tc.mrz); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCountryDisplayFromIssuing(t *testing.T) {
	cases := []struct {
		code string
		want string
	}{
		{"", "RUSSIA, Moscow"},
		{"RUS", "RUSSIA, Moscow"},
		{"rus", "RUSSIA, Moscow"},
		{"ARE", "UAE"},
		{"GBR", "UK"},
		{"USA", "USA"},
		{"FRA", "FRA"},
	}
	for _, tc := range cases {
		if got := CountryDisplayFromIssuing(tc.code); got != tc.want {
			t.Fatalf("code %q: got %q, want %q", tc.code, got, tc.want)
		}
	}
}

func TestGenerateContractNumberFormat(t *testing.T) {
	re := regexp.MustCompile(`^\d{6}/2026$`)
	for i := 0; i < 20; i++ {
		n := GenerateContractNumber(2026)
		if !re.MatchString(n) {
			t.Fatalf("bad contract number %q", n)
		}
	}
}

func TestRandomStartDateWithinLast6Months(t *testing.T) {
	today := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 50; i++ {
		d := RandomStartDateWithinLast6Months(today)
		if d.After(today) {
			t.Fatalf("start date %s in the future", d)
		}
		if today.Sub(d) > 180*24*time.Hour {
			t.Fatalf("start date %s more than 180 days back", d)
		}
	}
}
