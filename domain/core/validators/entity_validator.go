package validators

import (
	"fmt"
	"net/url"
	"strings"

	"stash-backend/domain/config"
	"stash-backend/domain/core/entities"
	"stash-backend/domain/core/valueobjects"
	"stash-backend/pkg/errors"
)

// EntityValidator enforces field-level business rules on entities before
// they are persisted.
type EntityValidator struct {
	config *config.DomainConfig
}

// NewEntityValidator creates a validator with the given configuration.
func NewEntityValidator(cfg *config.DomainConfig) *EntityValidator {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return &EntityValidator{config: cfg}
}

// Validate checks all field constraints for the entity.
func (v *EntityValidator) Validate(e *entities.Entity) error {
	if err := v.ValidateTitle(e.Title); err != nil {
		return err
	}
	if err := v.ValidateContent(e.Content); err != nil {
		return err
	}
	if err := v.ValidateTags(e.Tags); err != nil {
		return err
	}
	if e.Type == valueobjects.ContentTypeBookmark {
		if err := v.ValidateURL(e.URL); err != nil {
			return err
		}
	}
	if e.Type == valueobjects.ContentTypePrompt && strings.TrimSpace(e.Name) == "" {
		return errors.NewFieldValidationError("name", "prompt templates require a name")
	}
	return nil
}

// ValidateTitle checks title length constraints.
func (v *EntityValidator) ValidateTitle(title string) error {
	trimmed := strings.TrimSpace(title)
	if len(trimmed) < v.config.MinTitleLength {
		return errors.NewFieldValidationError("title", "title cannot be empty")
	}
	if len(title) > v.config.MaxTitleLength {
		return errors.NewFieldValidationError("title",
			fmt.Sprintf("title exceeds maximum length of %d characters", v.config.MaxTitleLength))
	}
	return nil
}

// ValidateContent checks the content size limit.
func (v *EntityValidator) ValidateContent(content string) error {
	if len(content) > v.config.MaxContentLength {
		return errors.NewFieldValidationError("content",
			fmt.Sprintf("content exceeds maximum length of %d characters", v.config.MaxContentLength))
	}
	return nil
}

// ValidateTags checks tag count and per-tag length.
func (v *EntityValidator) ValidateTags(tags []string) error {
	if len(tags) > v.config.MaxTagsPerEntity {
		return errors.NewFieldValidationError("tags",
			fmt.Sprintf("too many tags: maximum is %d", v.config.MaxTagsPerEntity))
	}
	for _, tag := range tags {
		if len(tag) > v.config.MaxTagLength {
			return errors.NewFieldValidationError("tags",
				fmt.Sprintf("tag %q exceeds maximum length of %d characters", tag, v.config.MaxTagLength))
		}
	}
	return nil
}

// ValidateURL checks that bookmark URLs parse and use http or https.
func (v *EntityValidator) ValidateURL(raw string) error {
	if raw == "" {
		return errors.NewFieldValidationError("url", "bookmarks require a url")
	}
	if len(raw) > v.config.MaxURLLength {
		return errors.NewFieldValidationError("url",
			fmt.Sprintf("url exceeds maximum length of %d characters", v.config.MaxURLLength))
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return errors.NewFieldValidationError("url", "url is not a valid absolute URL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.NewFieldValidationError("url", "url must use http or https")
	}
	return nil
}
