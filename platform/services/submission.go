package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"forms_platform/platform/auth"
	"forms_platform/platform/schema"
	"forms_platform/platform/storage"
	"forms_platform/utils"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxSubmissionMemory = 32 << 20

type SubmissionService struct {
	db       *gorm.DB
	storage  storage.Storage
	userAuth auth.IdentityProvider
}

func (s *SubmissionService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.OptionalAuthMiddleware()...)

		r.Post("/{slug}", s.Submit)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Get("/{slug}/my-submission", s.MySubmission)
	})

	return r
}

// fieldKey is the multipart key a field's posted values arrive under.
func fieldKey(field *schema.FormField) string {
	return fmt.Sprintf("field_%v", field.Id)
}

// existingFieldKey carries over a previously stored filename on the update
// path so the client does not have to re-upload an unchanged file.
func existingFieldKey(field *schema.FormField) string {
	return fmt.Sprintf("existing_field_%v", field.Id)
}

type submitResponse struct {
	SubmissionId uuid.UUID `json:"submission_id"`
	Updated      bool      `json:"updated"`
}

func (s *SubmissionService) Submit(w http.ResponseWriter, r *http.Request) {
	formSlug, err := utils.URLParam(r, "slug")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := r.ParseMultipartForm(maxSubmissionMemory); err != nil {
		http.Error(w, fmt.Sprintf("error parsing submission form data: %v", err), http.StatusBadRequest)
		return
	}

	user, authenticated := auth.MaybeUserFromContext(r)

	var res submitResponse

	err = s.db.Transaction(func(txn *gorm.DB) error {
		form, err := schema.GetFormBySlug(formSlug, txn, true)
		if err != nil {
			if errors.Is(err, schema.ErrFormNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		// Unpublished forms do not accept submissions and are not revealed.
		if form.Status != schema.FormPublished {
			return CodedError(schema.ErrFormNotFound, http.StatusNotFound)
		}

		if form.AccessLevel == schema.AccessAuthenticated && !authenticated {
			return CodedError(fmt.Errorf("%w: form %v requires authentication", ErrAccessDenied, form.Slug), http.StatusForbidden)
		}

		submission := schema.FormSubmission{
			Id:          uuid.New(),
			FormId:      form.Id,
			SubmittedAt: time.Now().UTC(),
			IpAddress:   auth.ClientIp(r),
			UserAgent:   truncate(r.UserAgent(), 500),
			Status:      schema.SubmissionPending,
		}
		if authenticated {
			submission.SubmittedById = &user.Id
		}

		// Single submission and updates are keyed by the authenticated actor;
		// anonymous submissions are never deduplicated.
		previousFiles := make(map[string]schema.UploadedFile)
		if authenticated {
			var existing schema.FormSubmission
			result := txn.Preload("Files").
				Where("form_id = ? AND submitted_by_id = ?", form.Id, user.Id).
				Order("submitted_at desc").
				Limit(1).
				Find(&existing)
			if result.Error != nil {
				slog.Error("sql error checking for existing submission", "form_id", form.Id, "user_id", user.Id, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}

			if result.RowsAffected != 0 {
				if form.AllowUpdate {
					// Full replace: the submission row and its create-time
					// metadata (submitted_at, client ip, user agent) stay
					// untouched, only its answers and files are rebuilt from
					// the posted values.
					for _, file := range existing.Files {
						previousFiles[file.StoredFilename] = file
					}

					submission = existing
					submission.Files = nil
					res.Updated = true

					result := txn.Where("submission_id = ?", existing.Id).Delete(&schema.FormAnswer{})
					if result.Error != nil {
						slog.Error("sql error deleting previous answers", "submission_id", existing.Id, "error", result.Error)
						return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
					}
					result = txn.Where("submission_id = ?", existing.Id).Delete(&schema.UploadedFile{})
					if result.Error != nil {
						slog.Error("sql error deleting previous files", "submission_id", existing.Id, "error", result.Error)
						return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
					}
				} else if form.SingleSubmission {
					return CodedError(fmt.Errorf("%w: form %v", ErrDuplicateSubmission, form.Slug), http.StatusConflict)
				}
			}
		}

		if !res.Updated {
			result := txn.Create(&submission)
			if result.Error != nil {
				slog.Error("sql error creating submission", "form_id", form.Id, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}

		for i := range form.Fields {
			if err := s.materializeAnswer(txn, r, &submission, &form.Fields[i], previousFiles); err != nil {
				return err
			}
		}

		res.SubmissionId = submission.Id
		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error submitting form: %v", err), GetResponseCode(err))
		return
	}

	slog.Info("form submission recorded", "slug", formSlug, "submission_id", res.SubmissionId, "updated", res.Updated)

	utils.WriteJsonResponse(w, res)
}

// materializeAnswer records the answer row for one field. Every field gets a
// row, present in the posted values or not, so the review and export surfaces
// never have to special-case missing answers per field type.
func (s *SubmissionService) materializeAnswer(txn *gorm.DB, r *http.Request, submission *schema.FormSubmission, field *schema.FormField, previousFiles map[string]schema.UploadedFile) error {
	answer := schema.FormAnswer{
		Id:           uuid.New(),
		SubmissionId: submission.Id,
		FieldId:      field.Id,
	}

	values := r.MultipartForm.Value[fieldKey(field)]

	switch field.FieldType {
	case schema.FieldCheckbox:
		answer.ValueText = strings.Join(values, ",")
		if values == nil {
			// A nil slice marshals to null, the stored shape is always a list.
			values = []string{}
		}
		encoded, err := json.Marshal(map[string][]string{"values": values})
		if err != nil {
			return CodedError(fmt.Errorf("error encoding checkbox values: %w", err), http.StatusInternalServerError)
		}
		answer.ValueJson = datatypes.JSON(encoded)

	case schema.FieldFile:
		storedName, err := s.storeUploadedFile(txn, r, submission, field, previousFiles)
		if err != nil {
			return err
		}
		answer.ValueText = storedName

	default:
		if len(values) > 0 {
			answer.ValueText = values[0]
		}
	}

	result := txn.Create(&answer)
	if result.Error != nil {
		slog.Error("sql error creating answer", "submission_id", submission.Id, "field_id", field.Id, "error", result.Error)
		return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}

	return nil
}

// storeUploadedFile streams a posted file to blob storage and records its
// UploadedFile row, returning the stored filename. Without an upload it falls
// back to the carried-over stored name, reattaching the previous file row on
// the update path. No upload and no carry-over yields the empty name.
func (s *SubmissionService) storeUploadedFile(txn *gorm.DB, r *http.Request, submission *schema.FormSubmission, field *schema.FormField, previousFiles map[string]schema.UploadedFile) (string, error) {
	headers := r.MultipartForm.File[fieldKey(field)]
	if len(headers) == 0 {
		carried := r.MultipartForm.Value[existingFieldKey(field)]
		if len(carried) == 0 || carried[0] == "" {
			return "", nil
		}

		storedName := carried[0]
		if previous, ok := previousFiles[storedName]; ok {
			file := schema.UploadedFile{
				Id:               uuid.New(),
				SubmissionId:     submission.Id,
				FieldId:          field.Id,
				OriginalFilename: previous.OriginalFilename,
				StoredFilename:   previous.StoredFilename,
				ContentType:      previous.ContentType,
				SizeBytes:        previous.SizeBytes,
				UploadedAt:       previous.UploadedAt,
			}
			result := txn.Create(&file)
			if result.Error != nil {
				slog.Error("sql error carrying over uploaded file", "submission_id", submission.Id, "field_id", field.Id, "error", result.Error)
				return "", CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}
		return storedName, nil
	}

	header := headers[0]

	upload, err := header.Open()
	if err != nil {
		slog.Error("error opening uploaded file", "field_id", field.Id, "error", err)
		return "", CodedError(fmt.Errorf("error reading uploaded file: %w", err), http.StatusBadRequest)
	}
	defer upload.Close()

	storedName := fmt.Sprintf("%v_%v", strings.ReplaceAll(uuid.NewString(), "-", ""), header.Filename)

	if err := s.storage.Write(storage.UploadPath(storedName), upload); err != nil {
		return "", CodedError(fmt.Errorf("error storing uploaded file: %w", err), http.StatusInternalServerError)
	}

	file := schema.UploadedFile{
		Id:               uuid.New(),
		SubmissionId:     submission.Id,
		FieldId:          field.Id,
		OriginalFilename: header.Filename,
		StoredFilename:   storedName,
		ContentType:      header.Header.Get("Content-Type"),
		SizeBytes:        header.Size,
		UploadedAt:       time.Now().UTC(),
	}
	result := txn.Create(&file)
	if result.Error != nil {
		slog.Error("sql error recording uploaded file", "submission_id", submission.Id, "field_id", field.Id, "error", result.Error)
		return "", CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}

	return storedName, nil
}

func truncate(value string, limit int) string {
	if len(value) > limit {
		return value[:limit]
	}
	return value
}

func (s *SubmissionService) MySubmission(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	formSlug, err := utils.URLParam(r, "slug")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	form, err := schema.GetFormBySlug(formSlug, s.db, false)
	if err != nil {
		if errors.Is(err, schema.ErrFormNotFound) {
			http.Error(w, fmt.Sprintf("error getting submission: %v", err), http.StatusNotFound)
		} else {
			http.Error(w, fmt.Sprintf("error getting submission: %v", err), http.StatusInternalServerError)
		}
		return
	}

	var submission schema.FormSubmission
	result := s.db.Preload("Answers").Preload("Answers.Field").Preload("Files").
		Where("form_id = ? AND submitted_by_id = ?", form.Id, user.Id).
		Order("submitted_at desc").
		Limit(1).
		Find(&submission)
	if result.Error != nil {
		slog.Error("sql error getting user submission", "form_id", form.Id, "user_id", user.Id, "error", result.Error)
		http.Error(w, fmt.Sprintf("error getting submission: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, fmt.Sprintf("error getting submission: %v", schema.ErrSubmissionNotFound), http.StatusNotFound)
		return
	}

	utils.WriteJsonResponse(w, convertToSubmissionInfo(&submission))
}
