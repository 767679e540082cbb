package tests

import (
	"encoding/csv"
	"strings"
	"testing"
)

func TestCsvExport(t *testing.T) {
	env := setupTestEnv(t)

	builder, err := env.newUser("builder")
	if err != nil {
		t.Fatal(err)
	}

	formId, slug, err := builder.createForm("Export Form")
	if err != nil {
		t.Fatal(err)
	}

	nameField, err := builder.addField(formId, map[string]interface{}{"name": "nom", "label": "Nom"})
	if err != nil {
		t.Fatal(err)
	}
	emailField, err := builder.addField(formId, map[string]interface{}{"name": "email", "label": "E-mail", "field_type": "email"})
	if err != nil {
		t.Fatal(err)
	}

	if err := builder.updateForm(formId, map[string]interface{}{"status": "published"}); err != nil {
		t.Fatal(err)
	}

	anonymous := env.newClient()
	if _, err := anonymous.submit(slug, map[string][]string{
		fieldKey(nameField):  {"ali"},
		fieldKey(emailField): {"ali@mail.com"},
	}, nil); err != nil {
		t.Fatal(err)
	}
	// Second submission leaves the email blank.
	if _, err := anonymous.submit(slug, map[string][]string{fieldKey(nameField): {"leila"}}, nil); err != nil {
		t.Fatal(err)
	}

	body, disposition, err := builder.exportCsv(formId)
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(disposition, "attachment") || !strings.Contains(disposition, slug+"_submissions.csv") {
		t.Fatalf("unexpected content disposition %v", disposition)
	}

	records, err := csv.NewReader(strings.NewReader(body)).ReadAll()
	if err != nil {
		t.Fatal(err)
	}

	// Header plus one row per submission.
	if len(records) != 3 {
		t.Fatalf("expected 3 csv records, got %d", len(records))
	}

	header := records[0]
	expectedHeader := []string{"Submission ID", "Submitted At", "Status", "Nom", "E-mail"}
	if len(header) != len(expectedHeader) {
		t.Fatalf("expected %d columns, got %d", len(expectedHeader), len(header))
	}
	for i := range header {
		if header[i] != expectedHeader[i] {
			t.Fatalf("column %d: expected %v got %v", i, expectedHeader[i], header[i])
		}
	}

	// Newest first: the blank-email submission comes before the first one.
	if records[1][3] != "leila" || records[1][4] != "" {
		t.Fatalf("unexpected first row %v", records[1])
	}
	if records[2][3] != "ali" || records[2][4] != "ali@mail.com" {
		t.Fatalf("unexpected second row %v", records[2])
	}

	for _, row := range records[1:] {
		if row[0] == "" || row[1] == "" || row[2] != "pending" {
			t.Fatalf("missing submission columns %v", row)
		}
	}

	other, err := env.newUser("other")
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := other.exportCsv(formId); err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("non owner should not export: %v", err)
	}
}
