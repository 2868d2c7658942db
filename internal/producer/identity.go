package producer

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// defaultAddress is the placeholder used when a request carries no address.
const defaultAddress = "RUSSIA, Moscow, 119087, Akademik Tupolev str.14 apt.430"

var countryDisplay = map[string]string{
	"RUS": "RUSSIA",
	"USA": "USA",
	"ARE": "UAE",
	"GBR": "UK",
}

// IssuingCountryFromMRZ extracts the 3-letter issuing country from a passport
// MRZ. Typical line 1: "P<RUS...".
func IssuingCountryFromMRZ(mrz string) string {
	raw := strings.TrimSpace(mrz)
	if raw == "" {
		return ""
	}
	var line1 string
	for _, ln := range strings.Split(raw, "\n") {
		if s := strings.TrimSpace(ln); s != "" {
			line1 = s
			break
		}
	}
	if line1 == "" {
		return ""
	}
	idx := strings.Index(line1, "P<")
	if idx < 0 || len(line1) < idx+5 {
		return ""
	}
	code := line1[idx+2 : idx+5]
	for _, r := range code {
		if !(r >= 'A' && r <= 'Z') && !(r >= 'a' && r <= 'z') {
			return ""
		}
	}
	return strings.ToUpper(code)
}

// CountryDisplayFromIssuing renders the display string stamped into the
// documents. Russian passports get the city suffix the templates expect.
func CountryDisplayFromIssuing(code string) string {
	if code == "" {
		return "RUSSIA, Moscow"
	}
	name, ok := countryDisplay[strings.ToUpper(code)]
	if !ok {
		return strings.ToUpper(code)
	}
	if name == "RUSSIA" {
		return "RUSSIA, Moscow"
	}
	return name
}

// GenerateContractNumber produces a candidate "NNNNNN/YYYY" number.
// Uniqueness is enforced by the caller against the store.
func GenerateContractNumber(year int) string {
	if year == 0 {
		year = time.Now().Year()
	}
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		// crypto/rand only fails when the OS entropy source is broken.
		panic(err)
	}
	return fmt.Sprintf("%06d/%d", n.Int64()+100000, year)
}

// RandomStartDateWithinLast6Months picks an employment start date up to 180
// days before today.
func RandomStartDateWithinLast6Months(today time.Time) time.Time {
	if today.IsZero() {
		today = time.Now()
	}
	n, err := rand.Int(rand.Reader, big.NewInt(181))
	if err != nil {
		panic(err)
	}
	return today.AddDate(0, 0, -int(n.Int64()))
}
