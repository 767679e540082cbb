package services

import (
	"errors"
	"fmt"
	"forms_platform/platform/auth"
	"forms_platform/platform/fields"
	"forms_platform/platform/schema"
	"forms_platform/platform/storage"
	"forms_platform/utils"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxImageMemory = 8 << 20

type FormService struct {
	db       *gorm.DB
	storage  storage.Storage
	userAuth auth.IdentityProvider
}

func (s *FormService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Get("/public", s.ListPublic)
		r.Get("/fields/{field_id}/options", s.FieldOptions)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.OptionalAuthMiddleware()...)

		r.Get("/{form_id}/layout", s.Layout)
		r.Get("/{form_id}/image", s.GetImage)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Post("/create", s.Create)
		r.Get("/list", s.List)

		r.Get("/{form_id}", s.GetForm)
		r.Post("/{form_id}", s.UpdateForm)
		r.Delete("/{form_id}", s.DeleteForm)

		r.Post("/{form_id}/image", s.UploadImage)

		r.Post("/{form_id}/fields", s.AddField)
		r.Post("/{form_id}/fields/reorder", s.ReorderFields)

		r.Get("/fields/{field_id}", s.GetField)
		r.Post("/fields/{field_id}", s.UpdateField)
		r.Delete("/fields/{field_id}", s.DeleteField)
	})

	return r
}

type createFormRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Type        string `json:"type"`
}

type createFormResponse struct {
	FormId uuid.UUID `json:"form_id"`
	Slug   string    `json:"slug"`
}

func (s *FormService) Create(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params createFormRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Title == "" {
		http.Error(w, "form title must be specified", http.StatusUnprocessableEntity)
		return
	}

	if params.Type == "" {
		params.Type = schema.FormTypeRegistration
	}
	if err := schema.CheckValidFormType(params.Type); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	form := schema.Form{
		Id:          uuid.New(),
		Title:       params.Title,
		Description: params.Description,
		Type:        params.Type,
		Status:      schema.FormDraft,
		Slug:        schema.NewSlug(params.Title),
		AccessLevel: schema.AccessPublic,
		CreatedById: &user.Id,
	}

	result := s.db.Create(&form)
	if result.Error != nil {
		slog.Error("sql error creating form", "error", result.Error)
		http.Error(w, fmt.Sprintf("error creating form: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	slog.Info("created new form", "form_id", form.Id, "slug", form.Slug, "user_id", user.Id)

	utils.WriteJsonResponse(w, createFormResponse{FormId: form.Id, Slug: form.Slug})
}

type updateFormRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Type        *string `json:"type"`
	Status      *string `json:"status"`
	AccessLevel *string `json:"access_level"`

	AllowUpdate      *bool `json:"allow_update"`
	SingleSubmission *bool `json:"single_submission"`
}

func (s *FormService) UpdateForm(w http.ResponseWriter, r *http.Request) {
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

	var params updateFormRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		form, err := loadManagedForm(formId, user, txn, false)
		if err != nil {
			return err
		}

		if params.Title != nil {
			if *params.Title == "" {
				return CodedError(errors.New("form title cannot be empty"), http.StatusUnprocessableEntity)
			}
			form.Title = *params.Title
		}
		if params.Description != nil {
			form.Description = *params.Description
		}
		if params.Type != nil {
			if err := schema.CheckValidFormType(*params.Type); err != nil {
				return CodedError(err, http.StatusUnprocessableEntity)
			}
			form.Type = *params.Type
		}
		if params.Status != nil {
			if err := schema.CheckValidFormStatus(*params.Status); err != nil {
				return CodedError(err, http.StatusUnprocessableEntity)
			}
			form.Status = *params.Status
		}
		if params.AccessLevel != nil {
			if err := schema.CheckValidAccessLevel(*params.AccessLevel); err != nil {
				return CodedError(err, http.StatusUnprocessableEntity)
			}
			form.AccessLevel = *params.AccessLevel
		}
		if params.AllowUpdate != nil {
			form.AllowUpdate = *params.AllowUpdate
		}
		if params.SingleSubmission != nil {
			form.SingleSubmission = *params.SingleSubmission
		}

		result := txn.Save(&form)
		if result.Error != nil {
			slog.Error("sql error updating form", "form_id", formId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error updating form: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *FormService) DeleteForm(w http.ResponseWriter, r *http.Request) {
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

	err = s.db.Transaction(func(txn *gorm.DB) error {
		form, err := loadManagedForm(formId, user, txn, false)
		if err != nil {
			return err
		}

		result := txn.Select("Fields", "Submissions").Delete(&form)
		if result.Error != nil {
			slog.Error("sql error deleting form", "form_id", formId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting form: %v", err), GetResponseCode(err))
		return
	}

	slog.Info("deleted form", "form_id", formId, "user_id", user.Id)

	utils.WriteSuccess(w)
}

type FormInfo struct {
	Id          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	Slug        string    `json:"slug"`
	AccessLevel string    `json:"access_level"`

	AllowUpdate      bool `json:"allow_update"`
	SingleSubmission bool `json:"single_submission"`

	Image string `json:"image,omitempty"`

	CreatedById *uuid.UUID `json:"created_by_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	SubmissionCount int64 `json:"submission_count"`
}

func convertToFormInfo(form *schema.Form, submissionCount int64) FormInfo {
	return FormInfo{
		Id:               form.Id,
		Title:            form.Title,
		Description:      form.Description,
		Type:             form.Type,
		Status:           form.Status,
		Slug:             form.Slug,
		AccessLevel:      form.AccessLevel,
		AllowUpdate:      form.AllowUpdate,
		SingleSubmission: form.SingleSubmission,
		Image:            form.Image,
		CreatedById:      form.CreatedById,
		CreatedAt:        form.CreatedAt,
		UpdatedAt:        form.UpdatedAt,
		SubmissionCount:  submissionCount,
	}
}

func (s *FormService) List(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	query := s.db.Order("created_at desc")
	if !user.IsAdmin {
		query = query.Where("created_by_id = ?", user.Id)
	}

	var forms []schema.Form
	result := query.Find(&forms)
	if result.Error != nil {
		slog.Error("sql error listing forms", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing forms: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]FormInfo, 0, len(forms))
	for i := range forms {
		var count int64
		result := s.db.Model(&schema.FormSubmission{}).Where("form_id = ?", forms[i].Id).Count(&count)
		if result.Error != nil {
			slog.Error("sql error counting submissions", "form_id", forms[i].Id, "error", result.Error)
			http.Error(w, fmt.Sprintf("error listing forms: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
			return
		}
		infos = append(infos, convertToFormInfo(&forms[i], count))
	}

	utils.WriteJsonResponse(w, infos)
}

type publicFormInfo struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Slug        string `json:"slug"`
	AccessLevel string `json:"access_level"`
}

func (s *FormService) ListPublic(w http.ResponseWriter, r *http.Request) {
	var forms []schema.Form
	result := s.db.Where("status = ?", schema.FormPublished).Order("created_at desc").Find(&forms)
	if result.Error != nil {
		slog.Error("sql error listing published forms", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing forms: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]publicFormInfo, 0, len(forms))
	for _, form := range forms {
		infos = append(infos, publicFormInfo{
			Title:       form.Title,
			Description: form.Description,
			Type:        form.Type,
			Slug:        form.Slug,
			AccessLevel: form.AccessLevel,
		})
	}
	utils.WriteJsonResponse(w, infos)
}

type FieldInfo struct {
	Id        uuid.UUID `json:"id"`
	FormId    uuid.UUID `json:"form_id"`
	Name      string    `json:"name"`
	Label     string    `json:"label"`
	FieldType string    `json:"field_type"`
	Required  bool      `json:"required"`
	Order     int       `json:"order"`

	Placeholder  string `json:"placeholder,omitempty"`
	DefaultValue string `json:"default_value,omitempty"`

	Options    datatypes.JSON `json:"options,omitempty"`
	Validation datatypes.JSON `json:"validation,omitempty"`

	ParentFieldId *uuid.UUID `json:"parent_field_id"`
	ParentKind    string     `json:"parent_kind"`

	VisibleCondition datatypes.JSON `json:"visible_condition,omitempty"`
	EnabledCondition datatypes.JSON `json:"enabled_condition,omitempty"`

	AdminOnly bool   `json:"admin_only"`
	Icon      string `json:"icon,omitempty"`
	Color     string `json:"color,omitempty"`
}

func convertToFieldInfo(field *schema.FormField, link fields.ParentLink) FieldInfo {
	return FieldInfo{
		Id:               field.Id,
		FormId:           field.FormId,
		Name:             field.Name,
		Label:            field.Label,
		FieldType:        field.FieldType,
		Required:         field.Required,
		Order:            field.Order,
		Placeholder:      field.Placeholder,
		DefaultValue:     field.DefaultValue,
		Options:          field.Options,
		Validation:       field.Validation,
		ParentFieldId:    field.ParentFieldId,
		ParentKind:       link.Kind.String(),
		VisibleCondition: field.VisibleCondition,
		EnabledCondition: field.EnabledCondition,
		AdminOnly:        field.AdminOnly,
		Icon:             field.Icon,
		Color:            field.Color,
	}
}

type formResponse struct {
	Form   FormInfo    `json:"form"`
	Fields []FieldInfo `json:"fields"`
}

func (s *FormService) GetForm(w http.ResponseWriter, r *http.Request) {
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
		http.Error(w, fmt.Sprintf("error getting form: %v", err), GetResponseCode(err))
		return
	}

	var count int64
	result := s.db.Model(&schema.FormSubmission{}).Where("form_id = ?", form.Id).Count(&count)
	if result.Error != nil {
		slog.Error("sql error counting submissions", "form_id", form.Id, "error", result.Error)
		http.Error(w, fmt.Sprintf("error getting form: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	layout := fields.Classify(form.Fields)

	res := formResponse{Form: convertToFormInfo(&form, count), Fields: make([]FieldInfo, 0, len(form.Fields))}
	for i := range form.Fields {
		res.Fields = append(res.Fields, convertToFieldInfo(&form.Fields[i], layout.Links[form.Fields[i].Id]))
	}

	utils.WriteJsonResponse(w, res)
}

type addFieldRequest struct {
	Name      string `json:"name"`
	Label     string `json:"label"`
	FieldType string `json:"field_type"`
	Required  bool   `json:"required"`

	Placeholder  string `json:"placeholder"`
	DefaultValue string `json:"default_value"`

	Options    datatypes.JSON `json:"options"`
	Validation datatypes.JSON `json:"validation"`

	ParentFieldId *uuid.UUID `json:"parent_field_id"`

	VisibleCondition datatypes.JSON `json:"visible_condition"`
	EnabledCondition datatypes.JSON `json:"enabled_condition"`

	AdminOnly bool   `json:"admin_only"`
	Icon      string `json:"icon"`
	Color     string `json:"color"`
}

type addFieldResponse struct {
	FieldId uuid.UUID `json:"field_id"`
}

func (s *FormService) AddField(w http.ResponseWriter, r *http.Request) {
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

	var params addFieldRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Name == "" {
		http.Error(w, "field name must be specified", http.StatusUnprocessableEntity)
		return
	}
	if params.FieldType == "" {
		params.FieldType = schema.FieldText
	}
	if err := schema.CheckValidFieldType(params.FieldType); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	field := schema.FormField{
		Id:               uuid.New(),
		FormId:           formId,
		Name:             schema.NormalizeFieldName(params.Name),
		Label:            params.Label,
		FieldType:        params.FieldType,
		Required:         params.Required,
		Placeholder:      params.Placeholder,
		DefaultValue:     params.DefaultValue,
		Options:          params.Options,
		Validation:       params.Validation,
		ParentFieldId:    params.ParentFieldId,
		VisibleCondition: params.VisibleCondition,
		EnabledCondition: params.EnabledCondition,
		AdminOnly:        params.AdminOnly,
		Icon:             params.Icon,
		Color:            params.Color,
	}
	if field.Label == "" {
		field.Label = params.Name
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if _, err := loadManagedForm(formId, user, txn, false); err != nil {
			return err
		}

		if field.ParentFieldId != nil {
			parent, err := schema.GetFormField(*field.ParentFieldId, txn)
			if err != nil {
				return getFieldError(err)
			}
			if parent.FormId != formId {
				return CodedError(errors.New("parent field belongs to a different form"), http.StatusUnprocessableEntity)
			}
		}

		// New fields append after the current highest order.
		var maxOrder int
		result := txn.Model(&schema.FormField{}).
			Where("form_id = ?", formId).
			Select("coalesce(max(field_order), -1)").
			Scan(&maxOrder)
		if result.Error != nil {
			slog.Error("sql error finding max field order", "form_id", formId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		field.Order = maxOrder + 1

		result = txn.Create(&field)
		if result.Error != nil {
			slog.Error("sql error creating form field", "form_id", formId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error adding field: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, addFieldResponse{FieldId: field.Id})
}

type updateFieldRequest struct {
	Name      *string `json:"name"`
	Label     *string `json:"label"`
	FieldType *string `json:"field_type"`
	Required  *bool   `json:"required"`

	Placeholder  *string `json:"placeholder"`
	DefaultValue *string `json:"default_value"`

	Options    datatypes.JSON `json:"options"`
	Validation datatypes.JSON `json:"validation"`

	// ParentFieldId is cleared when ClearParent is set, otherwise updated only
	// when present.
	ParentFieldId *uuid.UUID `json:"parent_field_id"`
	ClearParent   bool       `json:"clear_parent"`

	VisibleCondition datatypes.JSON `json:"visible_condition"`
	EnabledCondition datatypes.JSON `json:"enabled_condition"`

	AdminOnly *bool   `json:"admin_only"`
	Icon      *string `json:"icon"`
	Color     *string `json:"color"`
}

func (s *FormService) UpdateField(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	fieldId, err := utils.URLParamUUID(r, "field_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params updateFieldRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		field, err := schema.GetFormField(fieldId, txn)
		if err != nil {
			return getFieldError(err)
		}

		if _, err := loadManagedForm(field.FormId, user, txn, false); err != nil {
			return err
		}

		if params.Name != nil {
			if *params.Name == "" {
				return CodedError(errors.New("field name cannot be empty"), http.StatusUnprocessableEntity)
			}
			field.Name = schema.NormalizeFieldName(*params.Name)
		}
		if params.Label != nil {
			field.Label = *params.Label
		}
		if params.FieldType != nil {
			if err := schema.CheckValidFieldType(*params.FieldType); err != nil {
				return CodedError(err, http.StatusUnprocessableEntity)
			}
			field.FieldType = *params.FieldType
		}
		if params.Required != nil {
			field.Required = *params.Required
		}
		if params.Placeholder != nil {
			field.Placeholder = *params.Placeholder
		}
		if params.DefaultValue != nil {
			field.DefaultValue = *params.DefaultValue
		}
		if params.Options != nil {
			field.Options = params.Options
		}
		if params.Validation != nil {
			field.Validation = params.Validation
		}
		if params.ClearParent {
			field.ParentFieldId = nil
		} else if params.ParentFieldId != nil {
			parent, err := schema.GetFormField(*params.ParentFieldId, txn)
			if err != nil {
				return getFieldError(err)
			}
			if parent.FormId != field.FormId {
				return CodedError(errors.New("parent field belongs to a different form"), http.StatusUnprocessableEntity)
			}
			if parent.Id == field.Id {
				return CodedError(errors.New("field cannot be its own parent"), http.StatusUnprocessableEntity)
			}
			field.ParentFieldId = params.ParentFieldId
		}
		if params.VisibleCondition != nil {
			field.VisibleCondition = params.VisibleCondition
		}
		if params.EnabledCondition != nil {
			field.EnabledCondition = params.EnabledCondition
		}
		if params.AdminOnly != nil {
			field.AdminOnly = *params.AdminOnly
		}
		if params.Icon != nil {
			field.Icon = *params.Icon
		}
		if params.Color != nil {
			field.Color = *params.Color
		}

		result := txn.Save(&field)
		if result.Error != nil {
			slog.Error("sql error updating form field", "field_id", fieldId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error updating field: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *FormService) DeleteField(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	fieldId, err := utils.URLParamUUID(r, "field_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		field, err := schema.GetFormField(fieldId, txn)
		if err != nil {
			return getFieldError(err)
		}

		if _, err := loadManagedForm(field.FormId, user, txn, false); err != nil {
			return err
		}

		result := txn.Select("Answers").Delete(&field)
		if result.Error != nil {
			slog.Error("sql error deleting form field", "field_id", fieldId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting field: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

type reorderFieldsRequest struct {
	FieldIds []uuid.UUID `json:"field_ids"`
}

func (s *FormService) ReorderFields(w http.ResponseWriter, r *http.Request) {
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

	var params reorderFieldsRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if _, err := loadManagedForm(formId, user, txn, false); err != nil {
			return err
		}

		// Ids outside the form are skipped so a stale builder view cannot
		// renumber another form's fields, and do not consume an order slot.
		nextOrder := 0
		for _, fieldId := range params.FieldIds {
			result := txn.Model(&schema.FormField{}).
				Where("id = ? AND form_id = ?", fieldId, formId).
				Update("field_order", nextOrder)
			if result.Error != nil {
				slog.Error("sql error reordering form fields", "form_id", formId, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
			if result.RowsAffected != 0 {
				nextOrder++
			}
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error reordering fields: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *FormService) GetField(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	fieldId, err := utils.URLParamUUID(r, "field_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	field, err := schema.GetFormField(fieldId, s.db)
	if err != nil {
		http.Error(w, fmt.Sprintf("error getting field: %v", err), GetResponseCode(getFieldError(err)))
		return
	}

	form, err := loadManagedForm(field.FormId, user, s.db, true)
	if err != nil {
		http.Error(w, fmt.Sprintf("error getting field: %v", err), GetResponseCode(err))
		return
	}

	layout := fields.Classify(form.Fields)

	utils.WriteJsonResponse(w, convertToFieldInfo(&field, layout.Links[field.Id]))
}

type fieldOptionsResponse struct {
	Options []fields.Option `json:"options"`
}

// FieldOptions returns the option subset valid under the parent_value query
// parameter. It is unauthenticated since the rendering surface calls it while
// end users fill in published forms.
func (s *FormService) FieldOptions(w http.ResponseWriter, r *http.Request) {
	fieldId, err := utils.URLParamUUID(r, "field_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	field, err := schema.GetFormField(fieldId, s.db)
	if err != nil {
		http.Error(w, fmt.Sprintf("error getting field options: %v", err), GetResponseCode(getFieldError(err)))
		return
	}

	parentValue := r.URL.Query().Get("parent_value")

	if fields.IsAcademicSelect(field.FieldType) {
		options, err := s.academicOptions(field.FieldType, parentValue)
		if err != nil {
			http.Error(w, fmt.Sprintf("error getting field options: %v", err), GetResponseCode(err))
			return
		}
		utils.WriteJsonResponse(w, fieldOptionsResponse{Options: options})
		return
	}

	options, err := fields.DecodeOptions(field.Options)
	if err != nil {
		http.Error(w, fmt.Sprintf("error getting field options: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, fieldOptionsResponse{Options: fields.FilterOptions(options, parentValue)})
}

// academicOptions sources a select's options from the academic hierarchy
// instead of the stored option list. The parent value is the uuid of the row
// one level up; institutions have no parent and ignore it.
func (s *FormService) academicOptions(fieldType string, parentValue string) ([]fields.Option, error) {
	query := s.db.Order("name")

	var rows []struct {
		Id   uuid.UUID
		Name string
	}

	switch fieldType {
	case schema.FieldSelectEtablissement:
		query = query.Model(&schema.Institution{})
	case schema.FieldSelectFaculte, schema.FieldSelectDomaine, schema.FieldSelectSpecialite:
		parentId, err := uuid.Parse(parentValue)
		if err != nil {
			// No valid parent selected yet, so no options.
			return []fields.Option{}, nil
		}
		switch fieldType {
		case schema.FieldSelectFaculte:
			query = query.Model(&schema.Faculty{}).Where("institution_id = ?", parentId)
		case schema.FieldSelectDomaine:
			query = query.Model(&schema.Domain{}).Where("faculty_id = ?", parentId)
		default:
			query = query.Model(&schema.Specialty{}).Where("domain_id = ?", parentId)
		}
	}

	result := query.Find(&rows)
	if result.Error != nil {
		slog.Error("sql error listing academic options", "field_type", fieldType, "error", result.Error)
		return nil, CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}

	options := make([]fields.Option, 0, len(rows))
	for _, row := range rows {
		options = append(options, fields.Option{Label: row.Name, Value: row.Id.String()})
	}
	return options, nil
}

type layoutItemInfo struct {
	Field    FieldInfo   `json:"field"`
	Children []FieldInfo `json:"children,omitempty"`
}

type layoutResponse struct {
	Form  publicFormInfo   `json:"form"`
	Items []layoutItemInfo `json:"items"`
}

// Layout returns the classified render structure. Published forms are visible
// to anyone; drafts and archived forms only to users who can manage them.
func (s *FormService) Layout(w http.ResponseWriter, r *http.Request) {
	formId, err := utils.URLParamUUID(r, "form_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	form, err := schema.GetForm(formId, s.db, true)
	if err != nil {
		if errors.Is(err, schema.ErrFormNotFound) {
			http.Error(w, fmt.Sprintf("error getting layout: %v", err), http.StatusNotFound)
		} else {
			http.Error(w, fmt.Sprintf("error getting layout: %v", err), http.StatusInternalServerError)
		}
		return
	}

	if form.Status != schema.FormPublished {
		user, ok := auth.MaybeUserFromContext(r)
		if !ok || !auth.CanManageForm(user, &form) {
			// Hide the existence of unpublished forms.
			http.Error(w, fmt.Sprintf("error getting layout: %v", schema.ErrFormNotFound), http.StatusNotFound)
			return
		}
	}

	layout := fields.Classify(form.Fields)

	res := layoutResponse{
		Form: publicFormInfo{
			Title:       form.Title,
			Description: form.Description,
			Type:        form.Type,
			Slug:        form.Slug,
			AccessLevel: form.AccessLevel,
		},
		Items: make([]layoutItemInfo, 0, len(layout.Items)),
	}

	for _, item := range layout.Items {
		info := layoutItemInfo{Field: convertToFieldInfo(&item.Field, layout.Links[item.Field.Id])}
		for i := range item.Children {
			info.Children = append(info.Children, convertToFieldInfo(&item.Children[i], layout.Links[item.Children[i].Id]))
		}
		res.Items = append(res.Items, info)
	}

	utils.WriteJsonResponse(w, res)
}

// UploadImage stores the form's display image in blob storage, replacing any
// previous one. The stored name is keyed by the form id so re-uploads
// overwrite in place.
func (s *FormService) UploadImage(w http.ResponseWriter, r *http.Request) {
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

	if err := r.ParseMultipartForm(maxImageMemory); err != nil {
		http.Error(w, fmt.Sprintf("error parsing image form data: %v", err), http.StatusBadRequest)
		return
	}

	headers := r.MultipartForm.File["image"]
	if len(headers) == 0 {
		http.Error(w, "no image provided", http.StatusUnprocessableEntity)
		return
	}
	header := headers[0]

	form, err := loadManagedForm(formId, user, s.db, false)
	if err != nil {
		http.Error(w, fmt.Sprintf("error uploading form image: %v", err), GetResponseCode(err))
		return
	}

	upload, err := header.Open()
	if err != nil {
		http.Error(w, fmt.Sprintf("error reading uploaded image: %v", err), http.StatusBadRequest)
		return
	}
	defer upload.Close()

	imageName := fmt.Sprintf("%v%v", form.Id, filepath.Ext(header.Filename))
	if err := s.storage.Write(storage.FormImagePath(imageName), upload); err != nil {
		http.Error(w, fmt.Sprintf("error storing form image: %v", err), http.StatusInternalServerError)
		return
	}

	result := s.db.Model(&form).Update("image", imageName)
	if result.Error != nil {
		slog.Error("sql error updating form image", "form_id", formId, "error", result.Error)
		http.Error(w, fmt.Sprintf("error uploading form image: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	utils.WriteSuccess(w)
}

// GetImage serves the form's display image with the same visibility rule as
// the layout: published forms are public, unpublished forms stay hidden.
func (s *FormService) GetImage(w http.ResponseWriter, r *http.Request) {
	formId, err := utils.URLParamUUID(r, "form_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	form, err := schema.GetForm(formId, s.db, false)
	if err != nil {
		if errors.Is(err, schema.ErrFormNotFound) {
			http.Error(w, fmt.Sprintf("error getting form image: %v", err), http.StatusNotFound)
		} else {
			http.Error(w, fmt.Sprintf("error getting form image: %v", err), http.StatusInternalServerError)
		}
		return
	}

	if form.Status != schema.FormPublished {
		user, ok := auth.MaybeUserFromContext(r)
		if !ok || !auth.CanManageForm(user, &form) {
			http.Error(w, fmt.Sprintf("error getting form image: %v", schema.ErrFormNotFound), http.StatusNotFound)
			return
		}
	}

	if form.Image == "" {
		http.Error(w, "form has no image", http.StatusNotFound)
		return
	}

	data, err := s.storage.Read(storage.FormImagePath(form.Image))
	if err != nil {
		http.Error(w, fmt.Sprintf("error getting form image: %v", err), http.StatusInternalServerError)
		return
	}
	defer data.Close()

	if contentType := mime.TypeByExtension(filepath.Ext(form.Image)); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}

	if _, err := io.Copy(w, data); err != nil {
		slog.Error("error streaming form image", "form_id", formId, "error", err)
	}
}
