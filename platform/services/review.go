package services

import (
	"encoding/csv"
	"errors"
	"fmt"
	"forms_platform/platform/auth"
	"forms_platform/platform/schema"
	"forms_platform/platform/storage"
	"forms_platform/utils"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ReviewService is the owner/admin surface over recorded submissions: listing,
// inspection, status decisions, admin-only answer edits, and CSV export.
type ReviewService struct {
	db       *gorm.DB
	storage  storage.Storage
	userAuth auth.IdentityProvider
}

func (s *ReviewService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Get("/forms/{form_id}/submissions", s.ListSubmissions)
	r.Get("/forms/{form_id}/export", s.ExportSubmissions)

	r.Get("/submissions/{submission_id}", s.GetSubmission)
	r.Post("/submissions/{submission_id}/status", s.UpdateStatus)
	r.Post("/submissions/{submission_id}/answers/{field_id}", s.UpdateAnswer)
	r.Get("/submissions/{submission_id}/files/{file_id}", s.DownloadFile)

	return r
}

type AnswerInfo struct {
	Id        uuid.UUID      `json:"id"`
	FieldId   uuid.UUID      `json:"field_id"`
	FieldName string         `json:"field_name,omitempty"`
	ValueText string         `json:"value_text"`
	ValueJson datatypes.JSON `json:"value_json,omitempty"`
}

type FileInfo struct {
	Id               uuid.UUID `json:"id"`
	FieldId          uuid.UUID `json:"field_id"`
	OriginalFilename string    `json:"original_filename"`
	StoredFilename   string    `json:"stored_filename"`
	ContentType      string    `json:"content_type"`
	SizeBytes        int64     `json:"size_bytes"`
	UploadedAt       time.Time `json:"uploaded_at"`
}

type SubmissionInfo struct {
	Id     uuid.UUID `json:"id"`
	FormId uuid.UUID `json:"form_id"`

	SubmittedById *uuid.UUID `json:"submitted_by_id"`
	SubmittedAt   time.Time  `json:"submitted_at"`

	IpAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
	Status    string `json:"status"`

	Answers []AnswerInfo `json:"answers"`
	Files   []FileInfo   `json:"files"`
}

func convertToSubmissionInfo(submission *schema.FormSubmission) SubmissionInfo {
	info := SubmissionInfo{
		Id:            submission.Id,
		FormId:        submission.FormId,
		SubmittedById: submission.SubmittedById,
		SubmittedAt:   submission.SubmittedAt,
		IpAddress:     submission.IpAddress,
		UserAgent:     submission.UserAgent,
		Status:        submission.Status,
		Answers:       make([]AnswerInfo, 0, len(submission.Answers)),
		Files:         make([]FileInfo, 0, len(submission.Files)),
	}

	for _, answer := range submission.Answers {
		answerInfo := AnswerInfo{
			Id:        answer.Id,
			FieldId:   answer.FieldId,
			ValueText: answer.ValueText,
			ValueJson: answer.ValueJson,
		}
		if answer.Field != nil {
			answerInfo.FieldName = answer.Field.Name
		}
		info.Answers = append(info.Answers, answerInfo)
	}

	for _, file := range submission.Files {
		info.Files = append(info.Files, FileInfo{
			Id:               file.Id,
			FieldId:          file.FieldId,
			OriginalFilename: file.OriginalFilename,
			StoredFilename:   file.StoredFilename,
			ContentType:      file.ContentType,
			SizeBytes:        file.SizeBytes,
			UploadedAt:       file.UploadedAt,
		})
	}

	return info
}

func (s *ReviewService) listFormSubmissions(formId uuid.UUID, db *gorm.DB) ([]schema.FormSubmission, error) {
	var submissions []schema.FormSubmission
	result := db.Preload("Answers").Preload("Answers.Field").Preload("Files").
		Where("form_id = ?", formId).
		Order("submitted_at desc").
		Find(&submissions)
	if result.Error != nil {
		slog.Error("sql error listing submissions", "form_id", formId, "error", result.Error)
		return nil, CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}
	return submissions, nil
}

func (s *ReviewService) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	formId, err := utils.URLParamUUID(r, "form_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := loadManagedForm(formId, user, s.db, false); err != nil {
		http.Error(w, fmt.Sprintf("error listing submissions: %v", err), GetResponseCode(err))
		return
	}

	submissions, err := s.listFormSubmissions(formId, s.db)
	if err != nil {
		http.Error(w, fmt.Sprintf("error listing submissions: %v", err), GetResponseCode(err))
		return
	}

	infos := make([]SubmissionInfo, 0, len(submissions))
	for i := range submissions {
		infos = append(infos, convertToSubmissionInfo(&submissions[i]))
	}
	utils.WriteJsonResponse(w, infos)
}

func (s *ReviewService) GetSubmission(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	submissionId, err := utils.URLParamUUID(r, "submission_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	submission, err := schema.GetSubmission(submissionId, s.db, true)
	if err != nil {
		if errors.Is(err, schema.ErrSubmissionNotFound) {
			http.Error(w, fmt.Sprintf("error getting submission: %v", err), http.StatusNotFound)
		} else {
			http.Error(w, fmt.Sprintf("error getting submission: %v", err), http.StatusInternalServerError)
		}
		return
	}

	if _, err := loadManagedForm(submission.FormId, user, s.db, false); err != nil {
		http.Error(w, fmt.Sprintf("error getting submission: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, convertToSubmissionInfo(&submission))
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (s *ReviewService) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	submissionId, err := utils.URLParamUUID(r, "submission_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params updateStatusRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if err := schema.CheckValidSubmissionStatus(params.Status); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		submission, err := schema.GetSubmission(submissionId, txn, false)
		if err != nil {
			if errors.Is(err, schema.ErrSubmissionNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if _, err := loadManagedForm(submission.FormId, user, txn, false); err != nil {
			return err
		}

		result := txn.Model(&submission).Update("status", params.Status)
		if result.Error != nil {
			slog.Error("sql error updating submission status", "submission_id", submissionId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error updating submission status: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

type updateAnswerRequest struct {
	Value string `json:"value"`
}

// checkboxTruthiness maps an arbitrary posted value onto the stored '1'/'0'
// checkbox encoding.
func checkboxTruthiness(value string) string {
	switch strings.ToLower(value) {
	case "", "0", "false", "off":
		return "0"
	}
	return "1"
}

// UpdateAnswer edits a single recorded answer. Only fields flagged admin_only
// are editable after submission; a privileged caller editing any other field
// is still refused.
func (s *ReviewService) UpdateAnswer(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	submissionId, err := utils.URLParamUUID(r, "submission_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	fieldId, err := utils.URLParamUUID(r, "field_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params updateAnswerRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		submission, err := schema.GetSubmission(submissionId, txn, false)
		if err != nil {
			if errors.Is(err, schema.ErrSubmissionNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if _, err := loadManagedForm(submission.FormId, user, txn, false); err != nil {
			return err
		}

		field, err := schema.GetFormField(fieldId, txn)
		if err != nil {
			return getFieldError(err)
		}
		if field.FormId != submission.FormId {
			return CodedError(schema.ErrFieldNotFound, http.StatusNotFound)
		}

		if !field.AdminOnly {
			return CodedError(fmt.Errorf("%w: field %v is not editable after submission", ErrPermissionDenied, field.Name), http.StatusForbidden)
		}

		var answer schema.FormAnswer
		result := txn.Where("submission_id = ? AND field_id = ?", submissionId, fieldId).First(&answer)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return CodedError(schema.ErrAnswerNotFound, http.StatusNotFound)
			}
			slog.Error("sql error getting answer", "submission_id", submissionId, "field_id", fieldId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		value := params.Value
		if field.FieldType == schema.FieldCheckbox {
			value = checkboxTruthiness(value)
		}

		result = txn.Model(&answer).Update("value_text", value)
		if result.Error != nil {
			slog.Error("sql error updating answer", "answer_id", answer.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error updating answer: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

// DownloadFile streams a submission's uploaded file back to a reviewer.
func (s *ReviewService) DownloadFile(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	submissionId, err := utils.URLParamUUID(r, "submission_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	fileId, err := utils.URLParamUUID(r, "file_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	submission, err := schema.GetSubmission(submissionId, s.db, false)
	if err != nil {
		if errors.Is(err, schema.ErrSubmissionNotFound) {
			http.Error(w, fmt.Sprintf("error downloading file: %v", err), http.StatusNotFound)
		} else {
			http.Error(w, fmt.Sprintf("error downloading file: %v", err), http.StatusInternalServerError)
		}
		return
	}

	if _, err := loadManagedForm(submission.FormId, user, s.db, false); err != nil {
		http.Error(w, fmt.Sprintf("error downloading file: %v", err), GetResponseCode(err))
		return
	}

	var file schema.UploadedFile
	result := s.db.Where("id = ? AND submission_id = ?", fileId, submissionId).First(&file)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			http.Error(w, "uploaded file not found", http.StatusNotFound)
			return
		}
		slog.Error("sql error getting uploaded file", "file_id", fileId, "error", result.Error)
		http.Error(w, fmt.Sprintf("error downloading file: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	data, err := s.storage.Read(storage.UploadPath(file.StoredFilename))
	if err != nil {
		http.Error(w, fmt.Sprintf("error downloading file: %v", err), http.StatusInternalServerError)
		return
	}
	defer data.Close()

	if file.ContentType != "" {
		w.Header().Set("Content-Type", file.ContentType)
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%v"`, file.OriginalFilename))

	if _, err := io.Copy(w, data); err != nil {
		slog.Error("error streaming uploaded file", "file_id", fileId, "error", err)
	}
}

// ExportSubmissions writes every submission of a form as CSV: the fixed
// submission columns followed by one column per field in field order, one row
// per submission newest first. Cells are the recorded text values verbatim.
func (s *ReviewService) ExportSubmissions(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	formId, err := utils.URLParamUUID(r, "form_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	form, err := loadManagedForm(formId, user, s.db, true)
	if err != nil {
		http.Error(w, fmt.Sprintf("error exporting submissions: %v", err), GetResponseCode(err))
		return
	}

	submissions, err := s.listFormSubmissions(formId, s.db)
	if err != nil {
		http.Error(w, fmt.Sprintf("error exporting submissions: %v", err), GetResponseCode(err))
		return
	}

	header := []string{"Submission ID", "Submitted At", "Status"}
	for _, field := range form.Fields {
		header = append(header, field.Label)
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%v_submissions.csv"`, form.Slug))

	writer := csv.NewWriter(w)

	if err := writer.Write(header); err != nil {
		slog.Error("error writing csv header", "form_id", formId, "error", err)
		return
	}

	for _, submission := range submissions {
		answers := make(map[uuid.UUID]string, len(submission.Answers))
		for _, answer := range submission.Answers {
			answers[answer.FieldId] = answer.ValueText
		}

		row := []string{
			submission.Id.String(),
			submission.SubmittedAt.Format(time.RFC3339),
			submission.Status,
		}
		for _, field := range form.Fields {
			row = append(row, answers[field.Id])
		}

		if err := writer.Write(row); err != nil {
			slog.Error("error writing csv row", "submission_id", submission.Id, "error", err)
			return
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		slog.Error("error flushing csv export", "form_id", formId, "error", err)
	}
}
