package models

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ValidationError carries per-field messages keyed by the JSON path of the field
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator instance with the custom rules registered
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(jsonFieldName)
		validate.RegisterStructValidation(validateDIDDestination, DIDDestinationRequest{})
	})
	return validate
}

// Validate runs struct validation on v
func Validate(v any) error {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		out.Fields[fieldPath(fe.Namespace())] = message(fe)
	}
	return out
}

func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}

// fieldPath drops the struct type name from a namespace like "RouteRequest.carrier_ids[0]"
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if", "required_unless":
		return "is required"
	case "excluded_if":
		return "must be empty"
	case "email":
		return "must be a valid email address"
	case "e164":
		return "must be an E.164 phone number (+15551234567)"
	case "iso3166_1_alpha2":
		return "must be a two-letter country code"
	case "iso4217":
		return "must be a three-letter currency code"
	case "bcp47_language_tag":
		return "must be a language tag such as en-US"
	case "numeric":
		return "must contain digits only"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "unique":
		return "must not contain duplicates"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must have at least %s items", fe.Param())
		}
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must have at most %s items", fe.Param())
		}
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + boundParam(fe)
	case "gte":
		if fe.Param() == "0" {
			return "must not be negative"
		}
		return "must be at least " + boundParam(fe)
	case "lte":
		return "must be at most " + boundParam(fe)
	case "ne":
		return "must not be " + fe.Param()
	case "ltefield":
		return "must not exceed " + strings.ToLower(fe.Param())
	case "hostname_rfc1123|ip":
		return "must be a hostname or IP address"
	case "sip_uri":
		return "must be a sip: or sips: URI"
	default:
		return "is invalid (" + fe.Tag() + ")"
	}
}

var moneyType = reflect.TypeOf(Money(0))

// boundParam renders a numeric tag parameter, in currency units for Money fields
func boundParam(fe validator.FieldError) string {
	if fe.Type() != moneyType {
		return fe.Param()
	}
	v, err := strconv.ParseInt(fe.Param(), 10, 64)
	if err != nil {
		return fe.Param()
	}
	return Money(v).String()
}

func validateDIDDestination(sl validator.StructLevel) {
	req := sl.Current().Interface().(DIDDestinationRequest)
	if req.DestinationType != DestinationSIPURI {
		return
	}
	if !strings.HasPrefix(req.DestinationID, "sip:") && !strings.HasPrefix(req.DestinationID, "sips:") {
		sl.ReportError(req.DestinationID, "destination_id", "DestinationID", "sip_uri", "")
	}
}
