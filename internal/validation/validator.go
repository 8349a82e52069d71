package validation

import (
	"log"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"github.com/imrishuroy/go-idempotent-payflow/internal/payment"
)

// Result holds field errors keyed by JSON field name. An empty Result is valid.
type Result struct {
	FieldErrors map[string]string
	// crossField is set when the failure came from the amount/promotion rules rather than from
	// the per-field checks. Those messages are safe to show to callers.
	crossField bool
}

// Valid reports whether no field errors were recorded.
func (r Result) Valid() bool { return len(r.FieldErrors) == 0 }

// Message returns a caller-safe summary. Per-field structural errors are not echoed.
func (r Result) Message() string {
	if r.Valid() {
		return ""
	}
	if r.crossField {
		for _, msg := range r.FieldErrors {
			return msg
		}
	}
	return payment.MsgValidation
}

// Fields returns the failing field names in sorted order, for logging.
func (r Result) Fields() []string {
	out := make([]string, 0, len(r.FieldErrors))
	for f := range r.FieldErrors {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Validator checks payment requests. It is safe for concurrent use.
type Validator struct {
	v *validatorv10.Validate
}

// New returns a Validator with the payment rules registered.
func New() *Validator {
	v := validatorv10.New()

	// report JSON names so errors line up with what the client sent
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		log.Fatalf("[validation] register notblank: %v", err)
	}
	if err := v.RegisterValidation("digits", digits); err != nil {
		log.Fatalf("[validation] register digits: %v", err)
	}

	return &Validator{v: v}
}

// Validate runs the structural checks and, only if they all pass, the cross-field rules.
func (val *Validator) Validate(req payment.Request) Result {
	if err := val.v.Struct(req); err != nil {
		return Result{FieldErrors: validationErrorsToMap(err)}
	}

	// cross-field rules: first failure wins
	if *req.RealAmount > *req.DebitAmount {
		return Result{
			FieldErrors: map[string]string{"realAmount": payment.MsgRealAmountExceedsDebit},
			crossField:  true,
		}
	}
	if req.HasPromotion() && *req.DebitAmount == *req.RealAmount {
		return Result{
			FieldErrors: map[string]string{"promotionCode": payment.MsgInvalidPromotionCode},
			crossField:  true,
		}
	}
	return Result{}
}

// digits implements `digits=N`: the string is exactly N ASCII digits.
func digits(fl validatorv10.FieldLevel) bool {
	n, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	s := fl.Field().String()
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if r > unicode.MaxASCII || !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func validationErrorsToMap(err error) map[string]string {
	out := map[string]string{}
	if ve, ok := err.(validatorv10.ValidationErrors); ok {
		for _, fe := range ve {
			out[fe.Field()] = fieldMessage(fe)
		}
	} else {
		out["request"] = err.Error()
	}
	return out
}

func fieldMessage(fe validatorv10.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return fe.Field() + " is required"
	case "digits":
		return fe.Field() + " must be exactly " + fe.Param() + " digits"
	case "datetime":
		return fe.Field() + " is not a valid " + fe.Param() + " timestamp"
	default:
		return fe.Field() + " failed " + fe.Tag()
	}
}
