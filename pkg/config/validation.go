package config

import (
	"reflect"

	bberr "github.com/ssimonitch/back-burn-core/pkg/errors"
)

// Validator is an optional interface that configuration structs may
// implement for custom validation logic. If the struct passed to
// [Loader.Load] implements Validator, its Validate method is called
// after tag-based validation (the `required` tag) succeeds.
//
// Validate should return an error describing the first validation
// failure, or nil if the configuration is valid. Errors that are
// already [*bberr.Error] are returned as-is; other errors are wrapped
// with [bberr.CodeValidation].
//
// Example:
//
//	type VerifierConfig struct {
//	    KeySetURL string `env:"KEYSET_URL" required:"true"`
//	    CacheTTL  time.Duration `env:"CACHE_TTL" envDefault:"10m"`
//	}
//
//	func (c *VerifierConfig) Validate() error {
//	    if c.CacheTTL < 0 {
//	        return bberr.New(bberr.CodeValidation, "config: cache TTL must be non-negative")
//	    }
//	    return nil
//	}
type Validator interface {
	Validate() error
}

// validate performs tag-based required validation and then invokes the
// Validator interface if the config struct implements it. The cfg
// parameter is the original interface value (for Validator type
// assertion); rv is the dereferenced reflect.Value of the struct.
func validate(cfg any, rv reflect.Value) error {
	if err := validateRequired(rv, ""); err != nil {
		return err
	}

	if v, ok := cfg.(Validator); ok {
		if err := v.Validate(); err != nil {
			// Pass through bberr.Error instances unchanged.
			if _, isPlatformErr := bberr.AsError(err); isPlatformErr {
				return err
			}
			return bberr.Wrap(err, bberr.CodeValidation,
				"config: custom validation failed")
		}
	}

	return nil
}

// validateRequired recursively checks that all fields tagged with
// `required:"true"` hold non-zero values. The path parameter tracks
// the dotted field path for error messages (e.g., "Verifier.KeySetURL").
func validateRequired(rv reflect.Value, path string) error {
	rt := rv.Type()

	for i := 0; i < rt.NumField(); i++ {
		field := rv.Field(i)
		sf := rt.Field(i)

		if !field.CanSet() {
			continue
		}

		fieldPath := sf.Name
		if path != "" {
			fieldPath = path + "." + sf.Name
		}

		if field.Kind() == reflect.Struct && sf.Type != durationType {
			if err := validateRequired(field, fieldPath); err != nil {
				return err
			}
			continue
		}

		if sf.Tag.Get("required") != "true" {
			continue
		}

		if field.IsZero() {
			return bberr.Newf(bberr.CodeValidationRequired,
				"config: required field %q is empty", fieldPath)
		}
	}

	return nil
}
