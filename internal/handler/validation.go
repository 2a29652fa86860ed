package handler

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/leavehub/leave-api/internal/model"
)

// RegisterValidations adds domain validations to gin's binding engine.
// Call once at startup, before routes are served.
func RegisterValidations() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}

	_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		switch model.Role(fl.Field().String()) {
		case model.RoleAdmin, model.RoleManager, model.RoleEmployee:
			return true
		default:
			return false
		}
	})
}
