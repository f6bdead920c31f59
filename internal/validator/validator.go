package validator

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	once     sync.Once
	trans    ut.Translator
	validate *govalidator.Validate
)

// Setup registers JSON field naming and English translations on Gin's
// binding engine and on the standalone instance used for websocket payloads
// and generated questions. Safe to call more than once.
func Setup() {
	engine()
	if v, ok := binding.Validator.Engine().(*govalidator.Validate); ok {
		configure(v)
	}
}

// Struct validates v against its `validate` tags.
func Struct(v interface{}) error {
	return engine().Struct(v)
}

// Var validates a single value against a tag expression.
func Var(field interface{}, tag string) error {
	return engine().Var(field, tag)
}

// TranslateErrors maps a validation error to field name -> English message.
// Errors that are not validation errors land under "detail".
func TranslateErrors(err error) map[string]string {
	engine()
	fields := make(map[string]string)

	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			fields[fe.Field()] = fe.Translate(trans)
		}
		return fields
	}

	fields["detail"] = err.Error()
	return fields
}

// Bind binds and validates the request body into dst.
func Bind(c *gin.Context, dst interface{}) map[string]string {
	if err := c.ShouldBindJSON(dst); err != nil {
		return TranslateErrors(err)
	}
	return nil
}

// BindQuery binds and validates query parameters into dst.
func BindQuery(c *gin.Context, dst interface{}) map[string]string {
	if err := c.ShouldBindQuery(dst); err != nil {
		return TranslateErrors(err)
	}
	return nil
}

func engine() *govalidator.Validate {
	once.Do(func() {
		enLocale := en.New()
		uni := ut.New(enLocale, enLocale)
		trans, _ = uni.GetTranslator("en")

		validate = govalidator.New(govalidator.WithRequiredStructEnabled())
		configure(validate)
	})
	return validate
}

func configure(v *govalidator.Validate) {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		}
		return name
	})
	_ = en_translations.RegisterDefaultTranslations(v, trans)
}
