// Package validation normalizes and checks registration input at the HTTP
// boundary, before anything is persisted.
package validation

import (
	"errors"
	"html"
	"reflect"
	"regexp"
	"strings"

	"github.com/devsoc/devsoc-backend/internal/common"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
)

// RegistrationForm is the text part of a registration submission. Validate
// normalizes it in place.
type RegistrationForm struct {
	Name          string          `validate:"required,min=2,max=100,personname"`
	Roll          string          `validate:"required,min=3,max=20,rollno"`
	Phone         string          `validate:"required,min=10,max=15,phonechars,phonedigits"`
	Email         string          `validate:"required,email,min=5,max=100"`
	Department    string          `validate:"required,max=50"`
	Year          string          `validate:"required,max=20"`
	Questions     string          `validate:"required,max=1000"`
	TransactionID string          `validate:"required,min=5,max=100,alphanum"`
	EventSlug     string          `validate:"required,eventslug"`
	EventTitle    string          `validate:"required,max=200"`
	Amount        decimal.Decimal `validate:"gte=0"`
}

var (
	personNameRe = regexp.MustCompile(`^[a-zA-Z\s.'-]+$`)
	rollRe       = regexp.MustCompile(`^[a-zA-Z0-9/-]+$`)
	phoneRe      = regexp.MustCompile(`^[0-9+\-\s()]+$`)
	eventSlugRe  = regexp.MustCompile(`^[a-z0-9-]+$`)
	fileNameRe   = regexp.MustCompile(`[^a-zA-Z0-9.-]`)
)

// messages maps "<Field>.<tag>" to the message shown to the registrant.
var messages = map[string]string{
	"Name.required":          "Name is required",
	"Name.min":               "Name must be at least 2 characters",
	"Name.max":               "Name must be less than 100 characters",
	"Name.personname":        "Name can only contain letters, spaces, and common punctuation (. ' -)",
	"Roll.required":          "Roll number is required",
	"Roll.min":               "Roll number must be at least 3 characters",
	"Roll.max":               "Roll number must be less than 20 characters",
	"Roll.rollno":            "Roll number can only contain letters, numbers, hyphens, and slashes",
	"Phone.required":         "Phone number is required",
	"Phone.min":              "Phone number must be at least 10 digits",
	"Phone.max":              "Phone number must be less than 15 digits",
	"Phone.phonechars":       "Phone number can only contain digits, +, -, spaces, and parentheses",
	"Phone.phonedigits":      "Phone number must contain at least 10 digits",
	"Email.required":         "Email is required",
	"Email.email":            "Please enter a valid email address (e.g., name@example.com)",
	"Email.min":              "Email must be at least 5 characters",
	"Email.max":              "Email must be less than 100 characters",
	"Department.required":    "Please select your department",
	"Department.max":         "Department name is too long",
	"Year.required":          "Please select your year",
	"Year.max":               "Year is too long",
	"Questions.required":     "This field is required. Write 'N/A' or 'None' if you have no questions",
	"Questions.max":          "Response must be less than 1000 characters",
	"TransactionID.required": "Transaction ID is required",
	"TransactionID.min":      "Transaction ID must be at least 5 characters",
	"TransactionID.max":      "Transaction ID must be less than 100 characters",
	"TransactionID.alphanum": "Transaction ID can only contain letters and numbers (no spaces or special characters)",
	"EventSlug.required":     "Event slug is required",
	"EventSlug.eventslug":    "Invalid event slug format",
	"EventTitle.required":    "Event title is required",
	"EventTitle.max":         "Event title is too long",
	"Amount.gte":             "Amount must not be negative",
}

type Validator struct {
	validate *validator.Validate
	policy   *bluemonday.Policy
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	mustRegister(v, "personname", personNameRe.MatchString)
	mustRegister(v, "rollno", rollRe.MatchString)
	mustRegister(v, "phonechars", phoneRe.MatchString)
	mustRegister(v, "eventslug", eventSlugRe.MatchString)
	mustRegister(v, "phonedigits", func(s string) bool { return countDigits(s) >= 10 })
	v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})

	return &Validator{validate: v, policy: bluemonday.StrictPolicy()}
}

// decimalValue lets numeric tags such as gte apply to decimal amounts.
func decimalValue(field reflect.Value) any {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		f, _ := d.Float64()
		return f
	}
	return nil
}

func mustRegister(v *validator.Validate, tag string, fn func(string) bool) {
	err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return fn(fl.Field().String())
	})
	if err != nil {
		panic(err)
	}
}

// Registration strips markup, normalizes case and whitespace, then checks
// every field. The first failing field determines the returned message.
func (v *Validator) Registration(f *RegistrationForm) error {
	f.Name = v.clean(f.Name)
	f.Roll = strings.ToUpper(v.clean(f.Roll))
	f.Phone = v.clean(f.Phone)
	f.Email = strings.ToLower(v.clean(f.Email))
	f.Department = v.clean(f.Department)
	f.Year = v.clean(f.Year)
	f.Questions = v.clean(f.Questions)
	f.TransactionID = strings.ToUpper(v.clean(f.TransactionID))
	f.EventSlug = strings.TrimSpace(f.EventSlug)
	f.EventTitle = v.clean(f.EventTitle)

	return v.toUserError(v.validate.Struct(f))
}

// clean removes any markup and trims surrounding whitespace. Entities
// produced by the sanitizer are decoded back so names like O'Neil survive.
func (v *Validator) clean(s string) string {
	return strings.TrimSpace(html.UnescapeString(v.policy.Sanitize(s)))
}

func (v *Validator) toUserError(err error) error {
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return common.NewUserError(common.ErrValidation, "Invalid input")
	}
	fe := ve[0]
	if msg, ok := messages[fe.StructField()+"."+fe.Tag()]; ok {
		return common.NewUserError(common.ErrValidation, msg)
	}
	return common.NewUserError(common.ErrValidation, "Invalid "+fe.Field())
}

// SanitizeFileName replaces every character outside [a-zA-Z0-9.-] with '_'.
func SanitizeFileName(name string) string {
	return fileNameRe.ReplaceAllString(name, "_")
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
