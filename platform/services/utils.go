package services

import (
	"errors"
	"fmt"
	"forms_platform/platform/auth"
	"forms_platform/platform/schema"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrAccessDenied        = errors.New("access denied")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrDuplicateSubmission = errors.New("form has already been submitted")
)

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func CodedError(err error, code int) error {
	return &codedError{err: err, code: code}
}

func GetResponseCode(err error) int {
	var cerr *codedError
	if errors.As(err, &cerr) {
		return cerr.code
	}
	slog.Error("non coded error passed to GetResponseCode", "error", err)
	return http.StatusInternalServerError
}

// loadManagedForm fetches a form and verifies the caller may manage it. Every
// builder mutation and review operation funnels through this check.
func loadManagedForm(formId uuid.UUID, user schema.User, db *gorm.DB, loadFields bool) (schema.Form, error) {
	form, err := schema.GetForm(formId, db, loadFields)
	if err != nil {
		if errors.Is(err, schema.ErrFormNotFound) {
			return form, CodedError(err, http.StatusNotFound)
		}
		return form, CodedError(err, http.StatusInternalServerError)
	}

	if !auth.CanManageForm(user, &form) {
		return form, CodedError(fmt.Errorf("%w: user %v cannot manage form %v", ErrAccessDenied, user.Id, form.Id), http.StatusForbidden)
	}

	return form, nil
}

func getFieldError(err error) error {
	if errors.Is(err, schema.ErrFieldNotFound) {
		return CodedError(err, http.StatusNotFound)
	}
	return CodedError(err, http.StatusInternalServerError)
}
