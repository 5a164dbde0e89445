package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration against the struct validation tags.
//
// Validation covers value ranges and enumerations only; existence checks for
// the root directory are performed by the engine at start time, because the
// directory may legitimately appear between configuration and start.
func Validate(cfg *Config) error {
	validate := validator.New()

	if err := validate.Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			// Report the first violation with its field path for actionable output
			for _, ve := range verrs {
				return fmt.Errorf("invalid value for %s: failed %q constraint", ve.Namespace(), ve.Tag())
			}
		}
		return err
	}

	// Duplicate usernames would make authentication ambiguous
	seen := make(map[string]struct{}, len(cfg.Users))
	for _, u := range cfg.Users {
		if _, dup := seen[u.Username]; dup {
			return fmt.Errorf("duplicate user %q in configuration", u.Username)
		}
		seen[u.Username] = struct{}{}
	}

	return nil
}
