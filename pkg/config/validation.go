package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Struct-tag validation covers the declarative constraints; custom rules
// cover what tags cannot express. Log level normalization happens in
// ApplyDefaults, not here.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	// Block size must be a power of two so offsets split cleanly into
	// block index and intra-block offset.
	if size := cfg.Enclave.BlockSize; size&(size-1) != 0 {
		return fmt.Errorf("enclave: block_size %d is not a power of two", size)
	}

	switch cfg.Persistence.Type {
	case "badger":
		if path, _ := cfg.Persistence.Badger["db_path"].(string); path == "" {
			return fmt.Errorf("persistence: badger backend requires db_path")
		}
	case "s3":
		if bucket, _ := cfg.Persistence.S3["bucket"].(string); bucket == "" {
			return fmt.Errorf("persistence: s3 backend requires bucket")
		}
		if region, _ := cfg.Persistence.S3["region"].(string); region == "" {
			return fmt.Errorf("persistence: s3 backend requires region")
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly
// messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
