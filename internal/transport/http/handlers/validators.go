package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/acara/acara-auth/internal/infra/security"
)

var registerOnce sync.Once

// composition rules only; the zxcvbn floor is applied by the registration usecase
var passwordComposition = security.NewPasswordPolicy(0)

// RegisterValidators installs custom binding rules on gin's validator and makes
// field errors report JSON names. Safe to call more than once.
func RegisterValidators() error {
	engine, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin binding validator is not go-playground/validator")
	}

	var err error
	registerOnce.Do(func() {
		engine.RegisterTagNameFunc(jsonFieldName)
		err = engine.RegisterValidation("strongpassword", func(fl validator.FieldLevel) bool {
			return passwordComposition.Validate(fl.Field().String()) == nil
		})
	})
	return err
}

func jsonFieldName(field reflect.StructField) string {
	name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return field.Name
	}
	return name
}

// bindingMessage turns a ShouldBindJSON failure into a client-facing message.
func bindingMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "invalid request payload"
	}

	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email address"
	case "strongpassword":
		return "password must be at least 8 characters and contain an upper case letter, a lower case letter and a digit"
	case "eqfield":
		return "Password not match"
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}
