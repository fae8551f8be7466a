package submission

import "strings"

// dialCodes maps ISO 3166-1 alpha-2 country codes to international dialling codes.
var dialCodes = map[string]string{
	"AT": "43", "AU": "61", "BE": "32", "BG": "359", "BR": "55", "CA": "1", "CH": "41",
	"CY": "357", "CZ": "420", "DE": "49", "DK": "45", "EE": "372", "ES": "34", "FI": "358",
	"FR": "33", "GB": "44", "GR": "30", "HR": "385", "HU": "36", "IE": "353", "IN": "91",
	"IS": "354", "IT": "39", "LT": "370", "LU": "352", "LV": "371", "MA": "212", "MT": "356",
	"NL": "31", "NO": "47", "PL": "48", "PT": "351", "RO": "40", "SE": "46", "SI": "386",
	"SK": "421", "TR": "90", "UA": "380", "US": "1",
}

// DialCode returns the dialling code for a country, without the leading "+".
func DialCode(country string) (string, bool) {
	c, ok := dialCodes[strings.ToUpper(strings.TrimSpace(country))]
	return c, ok
}

// NormalizePhone returns phone in international "+<digits>" form. Numbers already in
// international form keep their code; national numbers lose their trunk zero and get
// the country's dial code. With an unknown country the digits are returned unprefixed.
func NormalizePhone(phone, country string) string {
	p := strings.TrimSpace(phone)
	if p == "" {
		return ""
	}
	international := strings.HasPrefix(p, "+")
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, p)
	if !international && strings.HasPrefix(digits, "00") {
		international = true
		digits = digits[2:]
	}
	if international {
		return "+" + digits
	}
	code, ok := DialCode(country)
	if !ok {
		return digits
	}
	return "+" + code + strings.TrimLeft(digits, "0")
}
