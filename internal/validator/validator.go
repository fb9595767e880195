package validator

import (
	"chatcord-backend/internal/apperr"
	"chatcord-backend/internal/models"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func instance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		_ = validate.RegisterValidation("role", func(fl validator.FieldLevel) bool {
			return models.Role(fl.Field().String()).Valid()
		})
		_ = validate.RegisterValidation("channeltype", func(fl validator.FieldLevel) bool {
			return models.ChannelType(fl.Field().String()).Valid()
		})
	})
	return validate
}

// Struct validates a decoded request body against its `validate` tags. The
// error is Invalid and names the first failing field, e.g. "name:max".
func Struct(s any) error {
	err := instance().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
		first := fieldErrors[0]
		return apperr.Newf(apperr.Invalid, "validator.Struct", "%s:%s", strings.ToLower(first.Field()), first.Tag())
	}
	return apperr.New(apperr.Invalid, "validator.Struct", err)
}

var channelNameRegex = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

func ServerName(name string) error {
	length := utf8.RuneCountInString(strings.TrimSpace(name))
	if length == 0 {
		return fmt.Errorf("empty_name")
	} else if length > 64 {
		return fmt.Errorf("long_name")
	}
	return nil
}

// ChannelName accepts lowercase words joined by dashes. "general" is taken by
// the channel every server starts with.
func ChannelName(name string) error {
	if name == "" {
		return fmt.Errorf("empty_name")
	}
	if len(name) > 32 {
		return fmt.Errorf("long_name")
	}
	if !channelNameRegex.MatchString(name) {
		return fmt.Errorf("bad_format")
	}
	if name == models.GeneralChannelName {
		return fmt.Errorf("reserved_name")
	}
	return nil
}

// MessageContent requires text or an attachment.
func MessageContent(content string, fileURL string) error {
	if strings.TrimSpace(content) == "" && fileURL == "" {
		return fmt.Errorf("empty_message")
	}
	if utf8.RuneCountInString(content) > 2000 {
		return fmt.Errorf("long_message")
	}
	return nil
}

func DisplayName(displayName string) error {
	length := utf8.RuneCountInString(strings.TrimSpace(displayName))
	if length == 0 {
		return fmt.Errorf("empty_display_name")
	} else if length > 64 {
		return fmt.Errorf("long_display_name")
	}
	return nil
}

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.]{2,32}$`)

func Username(username string) error {
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("bad_username")
	}
	return nil
}

// Invalid wraps a rule violation from this package as an Invalid error.
func Invalid(op string, err error) error {
	if err == nil {
		return nil
	}
	return apperr.New(apperr.Invalid, op, err)
}
