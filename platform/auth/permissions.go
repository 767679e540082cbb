package auth

import (
	"fmt"
	"forms_platform/platform/schema"
	"net/http"

	"gorm.io/gorm"
)

func AdminOnly(db *gorm.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			user, err := UserFromContext(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			if !user.IsAdmin {
				http.Error(w, fmt.Sprintf("user %v is not an admin", user.Id), http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}

// CanManageForm is the single capability check for every owner/admin gated
// operation: form and field mutation, submission review, export, and the
// admin-only answer edit path.
func CanManageForm(user schema.User, form *schema.Form) bool {
	if user.IsAdmin {
		return true
	}
	return form.CreatedById != nil && *form.CreatedById == user.Id
}
