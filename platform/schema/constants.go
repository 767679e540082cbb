package schema

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

const (
	FormTypeRegistration   = "registration"
	FormTypeSurvey         = "survey"
	FormTypeDataCollection = "data_collection"
)

const (
	FormDraft     = "draft"
	FormPublished = "published"
	FormArchived  = "archived"
)

const (
	AccessPublic        = "public"
	AccessAuthenticated = "authenticated"
)

const (
	FieldText     = "text"
	FieldEmail    = "email"
	FieldNumber   = "number"
	FieldTextarea = "textarea"
	FieldSelect   = "select"
	FieldRadio    = "radio"
	FieldCheckbox = "checkbox"
	FieldDate     = "date"
	FieldTime     = "time"
	FieldPhone    = "phone"
	FieldUrl      = "url"
	FieldPassword = "password"
	FieldHidden   = "hidden"
	FieldFile     = "file"

	FieldSelectFaculte       = "select_faculte"
	FieldSelectDomaine       = "select_domaine"
	FieldSelectSpecialite    = "select_specialite"
	FieldSelectEtablissement = "select_etablissement"

	FieldPanel = "panel"
)

const (
	SubmissionPending  = "pending"
	SubmissionApproved = "approved"
	SubmissionRejected = "rejected"
)

var fieldTypes = map[string]struct{}{
	FieldText: {}, FieldEmail: {}, FieldNumber: {}, FieldTextarea: {},
	FieldSelect: {}, FieldRadio: {}, FieldCheckbox: {}, FieldDate: {},
	FieldTime: {}, FieldPhone: {}, FieldUrl: {}, FieldPassword: {},
	FieldHidden: {}, FieldFile: {}, FieldSelectFaculte: {},
	FieldSelectDomaine: {}, FieldSelectSpecialite: {},
	FieldSelectEtablissement: {}, FieldPanel: {},
}

func CheckValidFieldType(fieldType string) error {
	if _, ok := fieldTypes[fieldType]; !ok {
		return fmt.Errorf("invalid field type '%v'", fieldType)
	}
	return nil
}

func CheckValidFormType(formType string) error {
	switch formType {
	case FormTypeRegistration, FormTypeSurvey, FormTypeDataCollection:
		return nil
	}
	return fmt.Errorf("invalid form type '%v'", formType)
}

func CheckValidFormStatus(status string) error {
	switch status {
	case FormDraft, FormPublished, FormArchived:
		return nil
	}
	return fmt.Errorf("invalid form status '%v'", status)
}

func CheckValidAccessLevel(access string) error {
	switch access {
	case AccessPublic, AccessAuthenticated:
		return nil
	}
	return fmt.Errorf("invalid access level '%v'", access)
}

func CheckValidSubmissionStatus(status string) error {
	switch status {
	case SubmissionPending, SubmissionApproved, SubmissionRejected:
		return nil
	}
	return fmt.Errorf("invalid submission status '%v'", status)
}

// NewSlug derives a unique slug from the form title: the slugified title plus
// the first 8 hex chars of a random uuid.
func NewSlug(title string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%v-%v", slug.Make(title), suffix)
}

// NormalizeFieldName turns a display name into the machine key used to
// address the field in conditions: lower-cased, spaces to underscores.
func NormalizeFieldName(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, " ", "_"))
}
