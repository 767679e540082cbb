package tests

import (
	"bytes"
	"forms_platform/platform/auth"
	"forms_platform/platform/schema"
	"forms_platform/platform/services"
	"forms_platform/platform/storage"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testEnv struct {
	platform services.Platform
	api      chi.Router
	storage  storage.Storage
	db       *gorm.DB
}

const (
	adminUsername = "admin123"
	adminEmail    = "admin123@mail.com"
	adminPassword = "admin_password123"
)

func setupTestEnv(t *testing.T) *testEnv {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}

	err = db.AutoMigrate(schema.AllEntities()...)
	if err != nil {
		t.Fatal(err)
	}

	storagePath := filepath.Join(t.TempDir(), "/storage")
	err = os.MkdirAll(storagePath, 0777)
	if err != nil {
		t.Fatalf("error creating storage directory: %v", err)
	}

	store := storage.NewSharedDisk(storagePath)

	userAuth, err := auth.NewBasicIdentityProvider(
		db,
		auth.NewAuditLogger(new(bytes.Buffer)),
		auth.BasicProviderArgs{
			Secret:        []byte("290zcv02ai249"),
			AdminUsername: adminUsername,
			AdminEmail:    adminEmail,
			AdminPassword: adminPassword,
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	platform := services.NewPlatform(db, store, userAuth)

	return &testEnv{platform: platform, api: platform.Routes(), storage: store, db: db}
}

func (t *testEnv) newClient() client {
	return client{api: t.api}
}

func (t *testEnv) newUser(username string) (client, error) {
	c := t.newClient()
	login, err := c.signup(username, username+"@mail.com", username+"_password")
	if err != nil {
		return client{}, err
	}

	err = c.login(login)
	if err != nil {
		return client{}, err
	}

	return c, nil
}

func (t *testEnv) adminClient() (client, error) {
	c := t.newClient()
	err := c.login(loginInfo{Email: adminEmail, Password: adminPassword})
	return c, err
}

// seedHierarchy inserts a small institution/faculty/domain/specialty tree
// directly, returning the created rows for filter assertions.
func (t *testEnv) seedHierarchy(test *testing.T) (schema.Institution, schema.Faculty, schema.Domain, schema.Specialty) {
	institution := schema.Institution{Id: newUuid(), Name: "Université de Tunis", Address: "Tunis"}
	if err := t.db.Create(&institution).Error; err != nil {
		test.Fatal(err)
	}

	faculty := schema.Faculty{Id: newUuid(), Name: "Faculté des Sciences", InstitutionId: &institution.Id}
	if err := t.db.Create(&faculty).Error; err != nil {
		test.Fatal(err)
	}

	domain := schema.Domain{Id: newUuid(), Name: "Informatique", FacultyId: faculty.Id}
	if err := t.db.Create(&domain).Error; err != nil {
		test.Fatal(err)
	}

	specialty := schema.Specialty{Id: newUuid(), Name: "Génie Logiciel", DomainId: domain.Id}
	if err := t.db.Create(&specialty).Error; err != nil {
		test.Fatal(err)
	}

	return institution, faculty, domain, specialty
}
