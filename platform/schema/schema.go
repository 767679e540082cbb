package schema

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Institution struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Name    string `gorm:"size:255;not null"`
	Address string

	Faculties []Faculty `gorm:"constraint:OnDelete:CASCADE"`
}

type Faculty struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Name string `gorm:"size:255;not null"`

	InstitutionId *uuid.UUID   `gorm:"type:uuid"`
	Institution   *Institution `gorm:"constraint:OnDelete:CASCADE"`

	Domains []Domain `gorm:"constraint:OnDelete:CASCADE"`
}

type Domain struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Name string `gorm:"size:255;not null"`

	FacultyId uuid.UUID `gorm:"type:uuid;not null;index"`
	Faculty   *Faculty  `gorm:"constraint:OnDelete:CASCADE"`

	Specialties []Specialty `gorm:"constraint:OnDelete:CASCADE"`
}

type Specialty struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Name string `gorm:"size:255;not null"`

	DomainId uuid.UUID `gorm:"type:uuid;not null;index"`
	Domain   *Domain   `gorm:"constraint:OnDelete:CASCADE"`
}

type Form struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Title       string `gorm:"size:255;not null"`
	Description string

	Type   string `gorm:"size:20;not null;default:'registration'"`
	Status string `gorm:"size:20;not null;default:'draft'"`

	// Slug is assigned once at creation and never updated afterwards.
	Slug string `gorm:"size:255;unique;not null"`

	AccessLevel      string `gorm:"size:20;not null;default:'public'"`
	AllowUpdate      bool   `gorm:"not null;default:false"`
	SingleSubmission bool   `gorm:"not null;default:false"`

	CreatedById *uuid.UUID `gorm:"type:uuid"`
	CreatedBy   *User      `gorm:"foreignKey:CreatedById;constraint:OnDelete:SET NULL"`

	Image string `gorm:"size:255"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Fields      []FormField      `gorm:"constraint:OnDelete:CASCADE"`
	Submissions []FormSubmission `gorm:"constraint:OnDelete:CASCADE"`
}

type FormField struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	FormId uuid.UUID `gorm:"type:uuid;not null;index"`

	Name      string `gorm:"size:100;not null"`
	Label     string `gorm:"size:255;not null"`
	FieldType string `gorm:"size:20;not null;default:'text'"`
	Required  bool   `gorm:"not null;default:false"`

	// "order" is reserved in most sql dialects, hence the column name.
	Order int `gorm:"column:field_order;not null;default:0"`

	Placeholder  string `gorm:"size:255"`
	DefaultValue string

	Options    datatypes.JSON
	Validation datatypes.JSON

	// A parent of type PANEL makes this field a panel child, any other parent
	// type makes it a cascading select child. See the fields package.
	ParentFieldId *uuid.UUID `gorm:"type:uuid"`
	ParentField   *FormField `gorm:"foreignKey:ParentFieldId;constraint:OnDelete:SET NULL"`

	VisibleCondition datatypes.JSON
	EnabledCondition datatypes.JSON

	AdminOnly bool `gorm:"not null;default:false"`

	Icon  string `gorm:"size:50"`
	Color string `gorm:"size:20"`

	Answers []FormAnswer `gorm:"foreignKey:FieldId;constraint:OnDelete:CASCADE"`
}

type FormSubmission struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	FormId uuid.UUID `gorm:"type:uuid;not null;index"`
	Form   *Form

	SubmittedById *uuid.UUID `gorm:"type:uuid"`
	SubmittedBy   *User      `gorm:"foreignKey:SubmittedById;constraint:OnDelete:SET NULL"`

	SubmittedAt time.Time

	IpAddress string `gorm:"size:45"`
	UserAgent string `gorm:"size:500"`

	Status string `gorm:"size:20;not null;default:'pending'"`

	Answers []FormAnswer   `gorm:"foreignKey:SubmissionId;constraint:OnDelete:CASCADE"`
	Files   []UploadedFile `gorm:"foreignKey:SubmissionId;constraint:OnDelete:CASCADE"`
}

type FormAnswer struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	SubmissionId uuid.UUID `gorm:"type:uuid;not null;index"`

	FieldId uuid.UUID  `gorm:"type:uuid;not null;index"`
	Field   *FormField `gorm:"foreignKey:FieldId"`

	ValueText string
	ValueJson datatypes.JSON
}

type UploadedFile struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	SubmissionId uuid.UUID `gorm:"type:uuid;not null;index"`

	FieldId uuid.UUID  `gorm:"type:uuid;not null"`
	Field   *FormField `gorm:"foreignKey:FieldId;constraint:OnDelete:CASCADE"`

	OriginalFilename string `gorm:"size:255;not null"`
	StoredFilename   string `gorm:"size:255;not null"`
	ContentType      string `gorm:"size:100"`
	SizeBytes        int64  `gorm:"not null"`

	UploadedAt time.Time
}

type User struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Username string `gorm:"unique;size:50;not null"`
	Email    string `gorm:"unique;size:254;not null"`
	Password []byte

	IsAdmin bool `gorm:"not null;default:false"`

	Forms []Form `gorm:"foreignKey:CreatedById"`
}

// AllEntities is the canonical migration list, shared by the server startup,
// the migration tool, and the test setup.
func AllEntities() []interface{} {
	return []interface{}{
		&Institution{}, &Faculty{}, &Domain{}, &Specialty{},
		&User{}, &Form{}, &FormField{},
		&FormSubmission{}, &FormAnswer{}, &UploadedFile{},
	}
}
