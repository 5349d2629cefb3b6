// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// Limits enforced locally before a request leaves the client.
const (
	MaxMessageLength = 4000
	MaxRoomTitle     = 30
	MaxRoomPageSize  = 100
	MaxMessagePage   = 200
)

// requestValidate is the validator instance for gateway request types.
var requestValidate *validator.Validate

func init() {
	requestValidate = validator.New(validator.WithRequiredStructEnabled())

	// Report JSON names so errors match what the backend would say.
	requestValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	_ = requestValidate.RegisterValidation("maxrunes", validateMaxRunes)
	_ = requestValidate.RegisterValidation("notblank", validateNotBlank)
	requestValidate.RegisterStructValidation(validateSendMessage, SendMessageRequest{})
}

// validateMaxRunes checks the string length in characters, not bytes.
func validateMaxRunes(fl validator.FieldLevel) bool {
	var limit int
	if _, err := fmt.Sscan(fl.Param(), &limit); err != nil {
		return false
	}
	return utf8.RuneCountInString(fl.Field().String()) <= limit
}

func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// validateSendMessage allows an empty message only for image-only sends.
func validateSendMessage(sl validator.StructLevel) {
	req := sl.Current().Interface().(SendMessageRequest)
	if strings.TrimSpace(req.Message) == "" && req.FileID == "" {
		sl.ReportError(req.Message, "message", "Message", "required_without_file", "")
	}
}

// Validate checks v against its struct tags and converts the first failure
// into a *ValidationError.
func Validate(v interface{}) error {
	err := requestValidate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Message: err.Error()}
	}
	fe := verrs[0]
	return &ValidationError{Field: fe.Field(), Message: describe(fe)}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_without_file":
		return "is required"
	case "notblank":
		return "must not be blank"
	case "maxrunes":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte", "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte", "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	}
	return fmt.Sprintf("failed %q check", fe.Tag())
}
