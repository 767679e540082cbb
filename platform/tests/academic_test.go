package tests

import (
	"fmt"
	"forms_platform/platform/schema"
	"testing"
)

func TestAcademicHierarchy(t *testing.T) {
	env := setupTestEnv(t)

	institution, faculty, domain, specialty := env.seedHierarchy(t)

	// A second institution with its own branch, to verify filters.
	other := schema.Institution{Id: newUuid(), Name: "Université de Carthage"}
	if err := env.db.Create(&other).Error; err != nil {
		t.Fatal(err)
	}
	otherFaculty := schema.Faculty{Id: newUuid(), Name: "INSAT", InstitutionId: &other.Id}
	if err := env.db.Create(&otherFaculty).Error; err != nil {
		t.Fatal(err)
	}

	// The hierarchy is public, no login required.
	c := env.newClient()

	var institutions []map[string]interface{}
	if err := c.Get("/academic/institutions").Do(&institutions); err != nil {
		t.Fatal(err)
	}
	if len(institutions) != 2 {
		t.Fatalf("expected 2 institutions, got %d", len(institutions))
	}
	// Alphabetical ordering.
	if institutions[0]["name"] != "Université de Carthage" || institutions[1]["name"] != "Université de Tunis" {
		t.Fatalf("unexpected ordering %v", institutions)
	}

	var faculties []map[string]interface{}
	if err := c.Get("/academic/faculties").Do(&faculties); err != nil {
		t.Fatal(err)
	}
	if len(faculties) != 2 {
		t.Fatalf("expected 2 faculties, got %d", len(faculties))
	}

	if err := c.Get(fmt.Sprintf("/academic/faculties?institution_id=%v", institution.Id)).Do(&faculties); err != nil {
		t.Fatal(err)
	}
	if len(faculties) != 1 || faculties[0]["name"] != faculty.Name {
		t.Fatalf("unexpected filtered faculties %v", faculties)
	}

	var domains []map[string]interface{}
	if err := c.Get(fmt.Sprintf("/academic/domains?faculte_id=%v", faculty.Id)).Do(&domains); err != nil {
		t.Fatal(err)
	}
	if len(domains) != 1 || domains[0]["name"] != domain.Name {
		t.Fatalf("unexpected domains %v", domains)
	}

	if err := c.Get(fmt.Sprintf("/academic/domains?faculte_id=%v", otherFaculty.Id)).Do(&domains); err != nil {
		t.Fatal(err)
	}
	if len(domains) != 0 {
		t.Fatalf("expected no domains, got %v", domains)
	}

	var specialties []map[string]interface{}
	if err := c.Get(fmt.Sprintf("/academic/specialties?domaine_id=%v", domain.Id)).Do(&specialties); err != nil {
		t.Fatal(err)
	}
	if len(specialties) != 1 || specialties[0]["name"] != specialty.Name {
		t.Fatalf("unexpected specialties %v", specialties)
	}

	if err := c.Get("/academic/domains?faculte_id=not-a-uuid").Do(nil); err == nil {
		t.Fatal("invalid uuid filter should be rejected")
	}
}
