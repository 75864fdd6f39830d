package model

import (
	"regexp"
	"strings"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ShippingAddress is embedded in an order as an immutable snapshot.
type ShippingAddress struct {
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	CompanyName   string `json:"companyName,omitempty"`
	Country       string `json:"country"`
	StreetAddress string `json:"streetAddress"`
	City          string `json:"city"`
	Province      string `json:"province"`
	ZipCode       string `json:"zipCode"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
	Notes         string `json:"notes,omitempty"`
}

// MissingFields returns the JSON names of required fields that are blank, in form order.
// A present but malformed email is reported as "email" too.
func (a ShippingAddress) MissingFields() []string {
	required := []struct {
		name  string
		value string
	}{
		{"firstName", a.FirstName},
		{"lastName", a.LastName},
		{"streetAddress", a.StreetAddress},
		{"city", a.City},
		{"zipCode", a.ZipCode},
		{"phone", a.Phone},
		{"email", a.Email},
	}

	var missing []string
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}

	if strings.TrimSpace(a.Email) != "" && !ValidEmail(a.Email) {
		missing = append(missing, "email")
	}

	return missing
}

// FullName joins first and last name.
func (a ShippingAddress) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// ValidEmail reports whether s has the basic shape of an email address.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(strings.TrimSpace(s))
}
