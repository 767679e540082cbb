package schema

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrFormNotFound       = errors.New("form not found")
	ErrFieldNotFound      = errors.New("form field not found")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrAnswerNotFound     = errors.New("answer not found")
	ErrDbAccessFailed     = errors.New("db access failed")
)

func GetUser(userId uuid.UUID, db *gorm.DB) (User, error) {
	var user User

	result := db.First(&user, "id = ?", userId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return user, ErrUserNotFound
		}
		slog.Error("sql error in get user", "user_id", userId, "error", result.Error)
		return user, ErrDbAccessFailed
	}

	return user, nil
}

func GetForm(formId uuid.UUID, db *gorm.DB, loadFields bool) (Form, error) {
	var form Form

	query := db
	if loadFields {
		query = query.Preload("Fields", func(db *gorm.DB) *gorm.DB {
			return db.Order("field_order")
		})
	}

	result := query.First(&form, "id = ?", formId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return form, ErrFormNotFound
		}
		slog.Error("sql error in get form", "form_id", formId, "error", result.Error)
		return form, ErrDbAccessFailed
	}

	return form, nil
}

func GetFormBySlug(slug string, db *gorm.DB, loadFields bool) (Form, error) {
	var form Form

	query := db
	if loadFields {
		query = query.Preload("Fields", func(db *gorm.DB) *gorm.DB {
			return db.Order("field_order")
		})
	}

	result := query.First(&form, "slug = ?", slug)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return form, ErrFormNotFound
		}
		slog.Error("sql error in get form by slug", "slug", slug, "error", result.Error)
		return form, ErrDbAccessFailed
	}

	return form, nil
}

func GetFormField(fieldId uuid.UUID, db *gorm.DB) (FormField, error) {
	var field FormField

	result := db.First(&field, "id = ?", fieldId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return field, ErrFieldNotFound
		}
		slog.Error("sql error in get form field", "field_id", fieldId, "error", result.Error)
		return field, ErrDbAccessFailed
	}

	return field, nil
}

func GetSubmission(submissionId uuid.UUID, db *gorm.DB, loadAnswers bool) (FormSubmission, error) {
	var submission FormSubmission

	query := db
	if loadAnswers {
		query = query.Preload("Answers").Preload("Answers.Field").Preload("Files")
	}

	result := query.First(&submission, "id = ?", submissionId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return submission, ErrSubmissionNotFound
		}
		slog.Error("sql error in get submission", "submission_id", submissionId, "error", result.Error)
		return submission, ErrDbAccessFailed
	}

	return submission, nil
}
