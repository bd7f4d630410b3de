package handler

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	phonePattern    = regexp.MustCompile(`^1[3-9]\d{9}$`)
	letterPattern   = regexp.MustCompile(`[a-zA-Z]`)
	digitPattern    = regexp.MustCompile(`\d`)
)

// ValidationError carries the message of the first failed rule.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

// RequestValidator plugs go-playground/validator into echo.
type RequestValidator struct {
	validate *validator.Validate
}

func NewValidator() *RequestValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return letterPattern.MatchString(s) && digitPattern.MatchString(s)
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	return &RequestValidator{validate: v}
}

// Validate implements echo.Validator.
func (rv *RequestValidator) Validate(i any) error {
	err := rv.validate.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	return &ValidationError{Msg: message(verrs[0])}
}

// messages is keyed by "<json field>.<tag>".
var messages = map[string]string{
	"username.required":           "username must not be empty",
	"username.min":                "username must be 2-20 characters",
	"username.max":                "username must be 2-20 characters",
	"username.username":           "username may only contain letters, digits and underscores",
	"password.required":           "password must not be empty",
	"password.min":                "password must be 6-20 characters",
	"password.max":                "password must be 6-20 characters",
	"password.password":           "password must contain letters and digits",
	"confirmPassword.required":    "please confirm the password",
	"confirmPassword.eqfield":     "the two passwords do not match",
	"oldPassword.required":        "old password must not be empty",
	"newPassword.required":        "new password must not be empty",
	"newPassword.min":             "new password must be 6-20 characters",
	"newPassword.max":             "new password must be 6-20 characters",
	"newPassword.password":        "new password must contain letters and digits",
	"confirmNewPassword.required": "please confirm the new password",
	"confirmNewPassword.eqfield":  "the two new passwords do not match",
	"nickname.max":                "nickname must not exceed 50 characters",
	"phone.phone":                 "invalid phone number format",
}

func message(fe validator.FieldError) string {
	if m, ok := messages[fe.Field()+"."+fe.Tag()]; ok {
		return m
	}
	return fe.Field() + " is invalid"
}
