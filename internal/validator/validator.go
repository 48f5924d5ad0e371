// Package validator provides the custom validation rules shared by the
// products file loader and Gin's binding engine.
package validator

import (
	"net/url"
	"regexp"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var aliasRegex = regexp.MustCompile(`^[a-z0-9]+(?:[-_][a-z0-9]+)*$`)

var (
	instance *validator.Validate
	once     sync.Once
)

// New returns a shared validator with the custom rules registered.
func New() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		registerAll(v)
		instance = v
	})
	return instance
}

// Register registers all custom validators with the Gin binding engine.
func Register() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		registerAll(v)
	}
}

func registerAll(v *validator.Validate) {
	_ = v.RegisterValidation("alias", validateAlias)
	_ = v.RegisterValidation("store_url", validateStoreURL)
}

// validateAlias accepts lowercase slugs such as "diapers" or "leche-entera_1l".
func validateAlias(fl validator.FieldLevel) bool {
	return aliasRegex.MatchString(fl.Field().String())
}

// validateStoreURL accepts absolute http(s) URLs with a host.
func validateStoreURL(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
