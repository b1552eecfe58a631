package payload

import (
	"reflect"
	"strings"
	"sync"

	perr "detrelay/internal/platform/errors"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	vOnce sync.Once
	vld   *validator.Validate
	trans ut.Translator
)

// vd returns the singleton validator with english translations and json tag names
func vd() *validator.Validate {
	vOnce.Do(func() {
		enLoc := en.New()
		uni := ut.New(enLoc, enLoc)
		trans, _ = uni.GetTranslator("en")

		v := validator.New(validator.WithRequiredStructEnabled())

		// prefer json tag names in messages and namespaces
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("json")
			if tag == "-" || tag == "" {
				return fld.Name
			}
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			return tag
		})

		_ = en_translations.RegisterDefaultTranslations(v, trans)

		registerIoCType(v, trans)
		registerISO8601Z(v, trans)
		registerDetectionRule(v, trans)

		vld = v
	})
	return vld
}

// Validate checks p against the ingestion API data contract. It returns nil
// when valid, otherwise a single ErrorCodeValidation error naming the first
// offending field path (e.g. data[0].ioc.type)
func Validate(p *Payload) error {
	if p == nil {
		return perr.Validationf("validation error at 'data': payload is empty")
	}
	err := vd().Struct(p)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return perr.Validationf("unknown validation error")
	}
	// first violation only; callers and reports key off this string shape
	fe := verrs[0]
	path := fieldPath(fe.Namespace())
	return perr.WithField(
		perr.Validationf("validation error at '%s': %s", path, fe.Translate(trans)),
		path,
	)
}

// fieldPath strips the root struct segment from a validator namespace,
// turning "Payload.data[0].ioc.type" into "data[0].ioc.type"
func fieldPath(ns string) string {
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return ns
}

var iocTypes = map[string]struct{}{
	IoCTypeIP:            {},
	IoCTypeDomain:        {},
	IoCTypeHash:          {},
	IoCTypeVulnerability: {},
	IoCTypeURL:           {},
}

func registerIoCType(v *validator.Validate, t ut.Translator) {
	_ = v.RegisterValidation("ioctype", func(fl validator.FieldLevel) bool {
		_, ok := iocTypes[fl.Field().String()]
		return ok
	})
	_ = v.RegisterTranslation("ioctype", t,
		func(u ut.Translator) error {
			return u.Add("ioctype", "{0} must be one of ip, domain, hash, vulnerability, url", true)
		},
		func(u ut.Translator, fe validator.FieldError) string {
			s, _ := u.T("ioctype", fe.Field())
			return s
		},
	)
}

// registerISO8601Z enforces the API's timestamp shape: a Z-suffixed UTC
// instant containing a T separator with date and time components
func registerISO8601Z(v *validator.Validate, t ut.Translator) {
	_ = v.RegisterValidation("iso8601z", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if !strings.Contains(s, "T") || !strings.HasSuffix(s, "Z") {
			return false
		}
		parts := strings.FieldsFunc(s, func(r rune) bool { return r == '-' || r == ':' })
		return len(parts) >= 5
	})
	_ = v.RegisterTranslation("iso8601z", t,
		func(u ut.Translator) error {
			return u.Add("iso8601z", "{0} must be an ISO-8601 UTC timestamp (e.g. 2024-01-02T03:04:05Z)", true)
		},
		func(u ut.Translator, fe validator.FieldError) string {
			s, _ := u.T("iso8601z", fe.Field())
			return s
		},
	)
}

// registerDetectionRule wires the cross-field invariant: detections of type
// detection_rule must carry a sub_type
func registerDetectionRule(v *validator.Validate, t ut.Translator) {
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		d := sl.Current().Interface().(Detection)
		if d.Type == DetectionTypeRule && d.SubType == "" {
			sl.ReportError(d.SubType, "sub_type", "SubType", "subtype_required", "")
		}
	}, Detection{})
	_ = v.RegisterTranslation("subtype_required", t,
		func(u ut.Translator) error {
			return u.Add("subtype_required", "'sub_type' is required when type is 'detection_rule'", true)
		},
		func(u ut.Translator, fe validator.FieldError) string {
			s, _ := u.T("subtype_required")
			return s
		},
	)
}
