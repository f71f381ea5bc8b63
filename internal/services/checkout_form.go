package services

import (
	"fmt"
	"html"
	"net/mail"
	"regexp"
	"sort"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	domain "github.com/hanko-field/storefront/internal/domain"
)

var (
	formPolicy    = bluemonday.StrictPolicy()
	zipPattern    = regexp.MustCompile(`^[A-Za-z0-9 -]{3,10}$`)
	expPattern    = regexp.MustCompile(`^(0[1-9]|1[0-2])/[0-9]{2}$`)
	cvvPattern    = regexp.MustCompile(`^[0-9]{3,4}$`)
	digitsPattern = regexp.MustCompile(`^[0-9]{12,19}$`)
)

// FormError lists per-field validation messages keyed by the form's JSON field names.
type FormError struct {
	Fields map[string]string
}

func (e *FormError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "checkout form is invalid"
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("checkout form is invalid: %s", strings.Join(names, ", "))
}

// NewCheckoutForm returns an empty form with the default country selected.
func NewCheckoutForm() domain.CheckoutForm {
	return domain.CheckoutForm{Country: domain.DefaultCheckoutCountry}
}

// NormaliseCheckoutForm strips markup and surrounding whitespace from every field.
// Card number separators are removed.
func NormaliseCheckoutForm(form domain.CheckoutForm) domain.CheckoutForm {
	clean := func(value string) string {
		return strings.TrimSpace(html.UnescapeString(formPolicy.Sanitize(value)))
	}
	return domain.CheckoutForm{
		FirstName:  clean(form.FirstName),
		LastName:   clean(form.LastName),
		Email:      clean(form.Email),
		Address:    clean(form.Address),
		City:       clean(form.City),
		State:      clean(form.State),
		Zip:        clean(form.Zip),
		Country:    clean(form.Country),
		CardName:   clean(form.CardName),
		CardNumber: strings.NewReplacer(" ", "", "-", "").Replace(clean(form.CardNumber)),
		ExpDate:    clean(form.ExpDate),
		CVV:        clean(form.CVV),
	}
}

// ValidateCheckoutForm normalises the form and checks that every field is present and
// the email is well formed. It returns the normalised form and a *FormError otherwise.
// Other format checks are advisory, see CheckoutFormHints.
func ValidateCheckoutForm(form domain.CheckoutForm) (domain.CheckoutForm, error) {
	form = NormaliseCheckoutForm(form)
	fields := map[string]string{}

	required := []struct {
		name  string
		value string
	}{
		{"firstName", form.FirstName},
		{"lastName", form.LastName},
		{"email", form.Email},
		{"address", form.Address},
		{"city", form.City},
		{"state", form.State},
		{"zip", form.Zip},
		{"country", form.Country},
		{"cardName", form.CardName},
		{"cardNumber", form.CardNumber},
		{"expDate", form.ExpDate},
		{"cvv", form.CVV},
	}
	for _, field := range required {
		if field.value == "" {
			fields[field.name] = "is required"
		}
	}

	if _, ok := fields["email"]; !ok {
		if addr, err := mail.ParseAddress(form.Email); err != nil || addr.Address != form.Email {
			fields["email"] = "must be a valid email address"
		}
	}
	if len(fields) > 0 {
		return form, &FormError{Fields: fields}
	}
	return form, nil
}

// CheckoutFormHints reports fields that do not look like the expected format.
// Hints never block a submission. Empty fields are left to ValidateCheckoutForm.
func CheckoutFormHints(form domain.CheckoutForm) map[string]string {
	form = NormaliseCheckoutForm(form)
	hints := map[string]string{}
	if form.Zip != "" && !zipPattern.MatchString(form.Zip) {
		hints["zip"] = "usually 3-10 letters, digits, spaces or dashes"
	}
	if form.Country != "" && !allowedCountry(form.Country) {
		hints["country"] = "not in the list of shipping countries"
	}
	if form.CardNumber != "" && !digitsPattern.MatchString(form.CardNumber) {
		hints["cardNumber"] = "expected XXXX XXXX XXXX XXXX"
	}
	if form.ExpDate != "" && !expPattern.MatchString(form.ExpDate) {
		hints["expDate"] = "expected MM/YY"
	}
	if form.CVV != "" && !cvvPattern.MatchString(form.CVV) {
		hints["cvv"] = "expected XXX"
	}
	if len(hints) == 0 {
		return nil
	}
	return hints
}

func allowedCountry(country string) bool {
	for _, allowed := range domain.CheckoutCountries {
		if country == allowed {
			return true
		}
	}
	return false
}
