package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"forms_platform/platform/schema"
	"log"
	"net/url"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type specialtySeed struct {
	Name string `yaml:"name"`
}

type domainSeed struct {
	Name        string          `yaml:"name"`
	Specialties []specialtySeed `yaml:"specialties"`
}

type facultySeed struct {
	Name    string       `yaml:"name"`
	Domains []domainSeed `yaml:"domains"`
}

type institutionSeed struct {
	Name      string        `yaml:"name"`
	Address   string        `yaml:"address"`
	Faculties []facultySeed `yaml:"faculties"`
}

type seedData struct {
	Institutions []institutionSeed `yaml:"institutions"`
}

func postgresDsn(uri string) string {
	if uri == "" {
		log.Fatalf("Missing --db_uri arg")
	}
	parts, err := url.Parse(uri)
	if err != nil {
		log.Fatalf("error parsing db uri: %v", err)
	}
	pwd, _ := parts.User.Password()
	dbname := strings.TrimPrefix(parts.Path, "/")
	return fmt.Sprintf("host=%v user=%v password=%v dbname=%v port=%v", parts.Hostname(), parts.User.Username(), pwd, dbname, parts.Port())
}

func loadSeedData(path string) seedData {
	content, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("error reading seed data file '%v': %v", path, err)
	}

	var data seedData
	if err := yaml.Unmarshal(content, &data); err != nil {
		log.Fatalf("error parsing seed data file '%v': %v", path, err)
	}

	return data
}

// seedAcademicHierarchy inserts the hierarchy rows, matching existing entries
// by name so rerunning the seed is a no-op.
func seedAcademicHierarchy(db *gorm.DB, data seedData) error {
	return db.Transaction(func(txn *gorm.DB) error {
		for _, instSeed := range data.Institutions {
			institution := schema.Institution{Id: uuid.New(), Name: instSeed.Name, Address: instSeed.Address}

			var existing schema.Institution
			result := txn.Limit(1).Find(&existing, "name = ?", instSeed.Name)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected != 0 {
				institution = existing
			} else {
				if result := txn.Create(&institution); result.Error != nil {
					return result.Error
				}
			}

			for _, facSeed := range instSeed.Faculties {
				faculty := schema.Faculty{Id: uuid.New(), Name: facSeed.Name, InstitutionId: &institution.Id}

				var existing schema.Faculty
				result := txn.Limit(1).Find(&existing, "name = ? AND institution_id = ?", facSeed.Name, institution.Id)
				if result.Error != nil {
					return result.Error
				}
				if result.RowsAffected != 0 {
					faculty = existing
				} else {
					if result := txn.Create(&faculty); result.Error != nil {
						return result.Error
					}
				}

				for _, domSeed := range facSeed.Domains {
					domain := schema.Domain{Id: uuid.New(), Name: domSeed.Name, FacultyId: faculty.Id}

					var existing schema.Domain
					result := txn.Limit(1).Find(&existing, "name = ? AND faculty_id = ?", domSeed.Name, faculty.Id)
					if result.Error != nil {
						return result.Error
					}
					if result.RowsAffected != 0 {
						domain = existing
					} else {
						if result := txn.Create(&domain); result.Error != nil {
							return result.Error
						}
					}

					for _, specSeed := range domSeed.Specialties {
						var existing schema.Specialty
						result := txn.Limit(1).Find(&existing, "name = ? AND domain_id = ?", specSeed.Name, domain.Id)
						if result.Error != nil {
							return result.Error
						}
						if result.RowsAffected != 0 {
							continue
						}

						specialty := schema.Specialty{Id: uuid.New(), Name: specSeed.Name, DomainId: domain.Id}
						if result := txn.Create(&specialty); result.Error != nil {
							return result.Error
						}
					}
				}
			}
		}

		return nil
	})
}

func mustJson(value interface{}) datatypes.JSON {
	encoded, err := json.Marshal(value)
	if err != nil {
		log.Fatalf("error encoding seed json: %v", err)
	}
	return datatypes.JSON(encoded)
}

const demoFormSlug = "inscription-master"

// seedDemoForm creates the master inscription registration form: a personal
// info panel, the full cascading academic select chain, a conditional
// scholarship field, a transcript upload, and an admin-only review note.
func seedDemoForm(db *gorm.DB) error {
	return db.Transaction(func(txn *gorm.DB) error {
		var existing schema.Form
		result := txn.Limit(1).Find(&existing, "slug = ?", demoFormSlug)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 0 {
			log.Printf("form '%v' already exists, skipping", demoFormSlug)
			return nil
		}

		form := schema.Form{
			Id:               uuid.New(),
			Title:            "Inscription Master",
			Description:      "Formulaire d'inscription au master",
			Type:             schema.FormTypeRegistration,
			Status:           schema.FormPublished,
			Slug:             demoFormSlug,
			AccessLevel:      schema.AccessAuthenticated,
			AllowUpdate:      true,
			SingleSubmission: true,
		}
		if result := txn.Create(&form); result.Error != nil {
			return result.Error
		}

		panel := schema.FormField{
			Id: uuid.New(), FormId: form.Id,
			Name: "informations_personnelles", Label: "Informations personnelles",
			FieldType: schema.FieldPanel, Order: 0,
			Icon: "user", Color: "#1d4ed8",
		}

		etablissement := schema.FormField{
			Id: uuid.New(), FormId: form.Id,
			Name: "etablissement", Label: "Établissement",
			FieldType: schema.FieldSelectEtablissement, Required: true, Order: 4,
		}
		faculte := schema.FormField{
			Id: uuid.New(), FormId: form.Id,
			Name: "faculte", Label: "Faculté",
			FieldType: schema.FieldSelectFaculte, Required: true, Order: 5,
			ParentFieldId: &etablissement.Id,
		}
		domaine := schema.FormField{
			Id: uuid.New(), FormId: form.Id,
			Name: "domaine", Label: "Domaine",
			FieldType: schema.FieldSelectDomaine, Required: true, Order: 6,
			ParentFieldId: &faculte.Id,
		}
		specialite := schema.FormField{
			Id: uuid.New(), FormId: form.Id,
			Name: "specialite", Label: "Spécialité",
			FieldType: schema.FieldSelectSpecialite, Required: true, Order: 7,
			ParentFieldId: &domaine.Id,
		}

		fields := []schema.FormField{
			panel,
			{
				Id: uuid.New(), FormId: form.Id,
				Name: "nom_complet", Label: "Nom complet",
				FieldType: schema.FieldText, Required: true, Order: 1,
				ParentFieldId: &panel.Id,
			},
			{
				Id: uuid.New(), FormId: form.Id,
				Name: "email", Label: "Adresse e-mail",
				FieldType: schema.FieldEmail, Required: true, Order: 2,
				ParentFieldId: &panel.Id,
			},
			{
				Id: uuid.New(), FormId: form.Id,
				Name: "telephone", Label: "Téléphone",
				FieldType: schema.FieldPhone, Order: 3,
				ParentFieldId: &panel.Id,
			},
			etablissement, faculte, domaine, specialite,
			{
				Id: uuid.New(), FormId: form.Id,
				Name: "boursier", Label: "Boursier",
				FieldType: schema.FieldRadio, Order: 8,
				Options: mustJson([]string{"oui", "non"}),
			},
			{
				Id: uuid.New(), FormId: form.Id,
				Name: "numero_bourse", Label: "Numéro de bourse",
				FieldType: schema.FieldText, Order: 9,
				VisibleCondition: mustJson(map[string]string{"boursier": "oui"}),
			},
			{
				Id: uuid.New(), FormId: form.Id,
				Name: "releve_notes", Label: "Relevé de notes",
				FieldType: schema.FieldFile, Required: true, Order: 10,
			},
			{
				Id: uuid.New(), FormId: form.Id,
				Name: "note_administration", Label: "Note de l'administration",
				FieldType: schema.FieldTextarea, Order: 11,
				AdminOnly: true,
			},
		}

		for i := range fields {
			if result := txn.Create(&fields[i]); result.Error != nil {
				return result.Error
			}
		}

		log.Printf("created demo form '%v' with %v fields", demoFormSlug, len(fields))

		return nil
	})
}

func main() {
	dbUri := flag.String("db_uri", "", "Database URI")
	dataFile := flag.String("data", "seeds/academic.yaml", "Academic hierarchy seed data file")
	skipDemoForm := flag.Bool("skip_demo_form", false, "If specified the demo registration form is not created.")
	flag.Parse()

	db, err := gorm.Open(postgres.Open(postgresDsn(*dbUri)), &gorm.Config{})
	if err != nil {
		log.Fatalf("error opening database connection: %v", err)
	}

	if err := db.AutoMigrate(schema.AllEntities()...); err != nil {
		log.Fatalf("error migrating db schema: %v", err)
	}

	data := loadSeedData(*dataFile)

	if err := seedAcademicHierarchy(db, data); err != nil {
		log.Fatalf("error seeding academic hierarchy: %v", err)
	}
	log.Println("academic hierarchy seeded")

	if !*skipDemoForm {
		if err := seedDemoForm(db); err != nil {
			log.Fatalf("error seeding demo form: %v", err)
		}
	}

	log.Println("seed completed successfully")
}
