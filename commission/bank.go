package commission

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var digitsOnly = regexp.MustCompile(`^[0-9]+$`)

// bankDetails is the validation view of a PayeeProfile.
type bankDetails struct {
	BankName      string     `validate:"required"`
	BankBranch    string     `validate:"required,digits,min=2,max=4"`
	AccountNumber string     `validate:"required,digits,min=4,max=12"`
	ConfirmedAt   *time.Time `validate:"required"`
}

// BankDetailsValidator checks that a payee can be paid.
//
// Branch numbers are 2-4 digits, account numbers 4-12 digits, the bank name
// is non-empty and the payee has confirmed the details.
type BankDetailsValidator struct {
	validate *validator.Validate
}

func NewBankDetailsValidator() *BankDetailsValidator {
	v := validator.New()
	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation("digits", func(fl validator.FieldLevel) bool {
		return digitsOnly.MatchString(fl.Field().String())
	})
	return &BankDetailsValidator{validate: v}
}

// Validate returns a *BankDetailsError, or nil when the profile is payable.
func (b *BankDetailsValidator) Validate(p PayeeProfile) error {
	in := bankDetails{
		BankName:      strings.TrimSpace(p.BankName),
		BankBranch:    strings.TrimSpace(p.BankBranch),
		AccountNumber: strings.TrimSpace(p.AccountNumber),
		ConfirmedAt:   p.ConfirmedAt,
	}
	err := b.validate.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &BankDetailsError{}
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			out.Missing = true
		}
		out.Fields = append(out.Fields, fieldLabel(fe.Field()))
	}
	return out
}

func fieldLabel(f string) string {
	switch f {
	case "BankName":
		return "bank_name"
	case "BankBranch":
		return "bank_branch"
	case "AccountNumber":
		return "account_number"
	case "ConfirmedAt":
		return "confirmed_at"
	}
	return f
}
