package tests

import (
	"errors"
	"strings"
	"testing"
)

func TestCreateForm(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("builder")
	if err != nil {
		t.Fatal(err)
	}

	formId, slug, err := user.createForm("Inscription Master")
	if err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(slug, "inscription-master-") {
		t.Fatalf("unexpected slug %v", slug)
	}

	form, err := user.getForm(formId)
	if err != nil {
		t.Fatal(err)
	}
	if form.Form.Status != "draft" || form.Form.Type != "registration" || form.Form.Title != "Inscription Master" {
		t.Fatalf("unexpected form defaults %+v", form.Form)
	}

	anonymous := env.newClient()
	if _, _, err := anonymous.createForm("nope"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("anonymous create should be rejected: %v", err)
	}
}

func TestUpdateFormSlugImmutable(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("builder")
	if err != nil {
		t.Fatal(err)
	}

	formId, slug, err := user.createForm("First Title")
	if err != nil {
		t.Fatal(err)
	}

	err = user.updateForm(formId, map[string]interface{}{
		"title":             "Second Title",
		"status":            "published",
		"access_level":      "authenticated",
		"allow_update":      true,
		"single_submission": true,
	})
	if err != nil {
		t.Fatal(err)
	}

	form, err := user.getForm(formId)
	if err != nil {
		t.Fatal(err)
	}

	if form.Form.Title != "Second Title" || form.Form.Status != "published" {
		t.Fatalf("update not applied %+v", form.Form)
	}
	if !form.Form.AllowUpdate || !form.Form.SingleSubmission || form.Form.AccessLevel != "authenticated" {
		t.Fatalf("flags not applied %+v", form.Form)
	}
	if form.Form.Slug != slug {
		t.Fatalf("slug changed from %v to %v", slug, form.Form.Slug)
	}

	if err := user.updateForm(formId, map[string]interface{}{"status": "bogus"}); err == nil {
		t.Fatal("invalid status should be rejected")
	}
}

func TestFormOwnership(t *testing.T) {
	env := setupTestEnv(t)

	owner, err := env.newUser("owner")
	if err != nil {
		t.Fatal(err)
	}
	other, err := env.newUser("other")
	if err != nil {
		t.Fatal(err)
	}
	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	formId, _, err := owner.createForm("Owned Form")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := other.getForm(formId); err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("non owner should get 403: %v", err)
	}
	if err := other.updateForm(formId, map[string]interface{}{"title": "stolen"}); err == nil {
		t.Fatal("non owner should not update")
	}
	if err := other.deleteForm(formId); err == nil {
		t.Fatal("non owner should not delete")
	}

	if _, err := admin.getForm(formId); err != nil {
		t.Fatalf("admin should access any form: %v", err)
	}

	ownerForms, err := owner.listForms()
	if err != nil {
		t.Fatal(err)
	}
	if len(ownerForms) != 1 {
		t.Fatalf("expected 1 form, got %d", len(ownerForms))
	}

	otherForms, err := other.listForms()
	if err != nil {
		t.Fatal(err)
	}
	if len(otherForms) != 0 {
		t.Fatalf("expected no forms for non owner, got %d", len(otherForms))
	}

	if err := owner.deleteForm(formId); err != nil {
		t.Fatal(err)
	}
	if _, err := owner.getForm(formId); err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("deleted form should be gone: %v", err)
	}
}

func TestAddAndUpdateFields(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("builder")
	if err != nil {
		t.Fatal(err)
	}

	formId, _, err := user.createForm("Fields Form")
	if err != nil {
		t.Fatal(err)
	}

	first, err := user.addField(formId, map[string]interface{}{"name": "Nom Complet"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := user.addField(formId, map[string]interface{}{"name": "email", "field_type": "email", "required": true})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := user.addField(formId, map[string]interface{}{"name": "bad", "field_type": "hologram"}); err == nil {
		t.Fatal("invalid field type should be rejected")
	}

	form, err := user.getForm(formId)
	if err != nil {
		t.Fatal(err)
	}
	if len(form.Fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(form.Fields))
	}

	if form.Fields[0].Name != "nom_complet" {
		t.Fatalf("field name should be normalized, got %v", form.Fields[0].Name)
	}
	if form.Fields[0].Order != 0 || form.Fields[1].Order != 1 {
		t.Fatalf("unexpected orders %d, %d", form.Fields[0].Order, form.Fields[1].Order)
	}
	if form.Fields[0].Label != "Nom Complet" {
		t.Fatalf("label should default to the given name, got %v", form.Fields[0].Label)
	}

	err = user.updateField(first, map[string]interface{}{"name": "Full Name", "required": true, "admin_only": true})
	if err != nil {
		t.Fatal(err)
	}

	updated, err := user.getField(first)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Name != "full_name" || !updated.Required || !updated.AdminOnly {
		t.Fatalf("update not applied %+v", updated)
	}

	if err := user.deleteField(second); err != nil {
		t.Fatal(err)
	}
	form, err = user.getForm(formId)
	if err != nil {
		t.Fatal(err)
	}
	if len(form.Fields) != 1 {
		t.Fatalf("expected 1 field after delete, got %d", len(form.Fields))
	}
}

func TestReorderFields(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("builder")
	if err != nil {
		t.Fatal(err)
	}

	formId, _, err := user.createForm("Reorder Form")
	if err != nil {
		t.Fatal(err)
	}
	otherFormId, _, err := user.createForm("Other Form")
	if err != nil {
		t.Fatal(err)
	}

	f1, err := user.addField(formId, map[string]interface{}{"name": "a"})
	if err != nil {
		t.Fatal(err)
	}
	f2, err := user.addField(formId, map[string]interface{}{"name": "b"})
	if err != nil {
		t.Fatal(err)
	}
	f3, err := user.addField(formId, map[string]interface{}{"name": "c"})
	if err != nil {
		t.Fatal(err)
	}

	foreign, err := user.addField(otherFormId, map[string]interface{}{"name": "x"})
	if err != nil {
		t.Fatal(err)
	}

	// The foreign id must be skipped without affecting the other form.
	if err := user.reorderFields(formId, []string{f3, foreign, f1, f2}); err != nil {
		t.Fatal(err)
	}

	form, err := user.getForm(formId)
	if err != nil {
		t.Fatal(err)
	}

	expected := []string{f3, f1, f2}
	for i, field := range form.Fields {
		if field.Id.String() != expected[i] {
			t.Fatalf("position %d: expected %v got %v", i, expected[i], field.Id)
		}
	}

	foreignField, err := user.getField(foreign)
	if err != nil {
		t.Fatal(err)
	}
	if foreignField.Order != 0 {
		t.Fatalf("foreign field order should be untouched, got %d", foreignField.Order)
	}
}

func TestFieldParentsAndLayout(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("builder")
	if err != nil {
		t.Fatal(err)
	}

	formId, _, err := user.createForm("Layout Form")
	if err != nil {
		t.Fatal(err)
	}

	panel, err := user.addField(formId, map[string]interface{}{"name": "infos", "field_type": "panel"})
	if err != nil {
		t.Fatal(err)
	}
	child, err := user.addField(formId, map[string]interface{}{"name": "nom", "parent_field_id": panel})
	if err != nil {
		t.Fatal(err)
	}
	faculte, err := user.addField(formId, map[string]interface{}{"name": "faculte", "field_type": "select_faculte"})
	if err != nil {
		t.Fatal(err)
	}
	domaine, err := user.addField(formId, map[string]interface{}{"name": "domaine", "field_type": "select_domaine", "parent_field_id": faculte})
	if err != nil {
		t.Fatal(err)
	}

	childField, err := user.getField(child)
	if err != nil {
		t.Fatal(err)
	}
	if childField.ParentKind != "panel" {
		t.Fatalf("expected panel parent kind, got %v", childField.ParentKind)
	}

	domaineField, err := user.getField(domaine)
	if err != nil {
		t.Fatal(err)
	}
	if domaineField.ParentKind != "cascading" {
		t.Fatalf("expected cascading parent kind, got %v", domaineField.ParentKind)
	}

	if err := user.updateField(domaine, map[string]interface{}{"clear_parent": true}); err != nil {
		t.Fatal(err)
	}
	domaineField, err = user.getField(domaine)
	if err != nil {
		t.Fatal(err)
	}
	if domaineField.ParentKind != "none" {
		t.Fatalf("parent should be cleared, got %v", domaineField.ParentKind)
	}

	if err := user.updateField(panel, map[string]interface{}{"parent_field_id": panel}); err == nil {
		t.Fatal("field cannot be its own parent")
	}

	// Drafts are hidden from anonymous clients, the owner can still preview.
	anonymous := env.newClient()
	if _, err := anonymous.getLayout(formId); err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("draft layout should be hidden: %v", err)
	}

	layout, err := user.getLayout(formId)
	if err != nil {
		t.Fatal(err)
	}
	if len(layout.Items) != 3 {
		t.Fatalf("expected 3 root items, got %d", len(layout.Items))
	}
	if layout.Items[0].Field.Id.String() != panel || len(layout.Items[0].Children) != 1 {
		t.Fatalf("panel grouping wrong %+v", layout.Items[0])
	}

	if err := user.updateForm(formId, map[string]interface{}{"status": "published"}); err != nil {
		t.Fatal(err)
	}
	if _, err := anonymous.getLayout(formId); err != nil {
		t.Fatalf("published layout should be public: %v", err)
	}
}

func TestCascadingFieldOptions(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("builder")
	if err != nil {
		t.Fatal(err)
	}

	formId, _, err := user.createForm("Options Form")
	if err != nil {
		t.Fatal(err)
	}

	options := []interface{}{
		map[string]string{"label": "Génie Logiciel", "value": "gl", "parentValue": "info"},
		map[string]string{"label": "Statistique", "value": "stat", "parentValue": "math"},
		"untagged",
	}
	fieldId, err := user.addField(formId, map[string]interface{}{
		"name": "specialite", "field_type": "select", "options": options,
	})
	if err != nil {
		t.Fatal(err)
	}

	// Options are served unauthenticated for the rendering surface.
	anonymous := env.newClient()

	matched, err := anonymous.fieldOptions(fieldId, "info")
	if err != nil {
		t.Fatal(err)
	}
	if len(matched) != 1 || matched[0]["value"] != "gl" {
		t.Fatalf("unexpected options %+v", matched)
	}

	matched, err = anonymous.fieldOptions(fieldId, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(matched) != 1 || matched[0]["value"] != "untagged" {
		t.Fatalf("untagged option should only match the empty parent value, got %+v", matched)
	}

	matched, err = anonymous.fieldOptions(fieldId, "physics")
	if err != nil {
		t.Fatal(err)
	}
	if len(matched) != 0 {
		t.Fatalf("expected no options, got %+v", matched)
	}
}

func TestFormImage(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("builder")
	if err != nil {
		t.Fatal(err)
	}
	other, err := env.newUser("other")
	if err != nil {
		t.Fatal(err)
	}

	formId, _, err := user.createForm("Image Form")
	if err != nil {
		t.Fatal(err)
	}

	if err := other.uploadImage(formId, "banner.png", "png bytes"); err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("non owner should not set the image: %v", err)
	}

	if err := user.uploadImage(formId, "banner.png", "png bytes"); err != nil {
		t.Fatal(err)
	}

	form, err := user.getForm(formId)
	if err != nil {
		t.Fatal(err)
	}
	if form.Form.Image != formId+".png" {
		t.Fatalf("unexpected image name %v", form.Form.Image)
	}

	// Hidden on drafts like the layout, the owner can still preview.
	anonymous := env.newClient()
	if _, err := anonymous.getImage(formId); err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("draft image should be hidden: %v", err)
	}

	content, err := user.getImage(formId)
	if err != nil {
		t.Fatal(err)
	}
	if content != "png bytes" {
		t.Fatalf("unexpected image content %q", content)
	}

	if err := user.updateForm(formId, map[string]interface{}{"status": "published"}); err != nil {
		t.Fatal(err)
	}
	content, err = anonymous.getImage(formId)
	if err != nil {
		t.Fatal(err)
	}
	if content != "png bytes" {
		t.Fatalf("unexpected image content %q", content)
	}
}

func TestAcademicFieldOptions(t *testing.T) {
	env := setupTestEnv(t)
	institution, faculty, _, _ := env.seedHierarchy(t)

	user, err := env.newUser("builder")
	if err != nil {
		t.Fatal(err)
	}

	formId, _, err := user.createForm("Academic Form")
	if err != nil {
		t.Fatal(err)
	}

	etablissement, err := user.addField(formId, map[string]interface{}{
		"name": "etablissement", "field_type": "select_etablissement",
	})
	if err != nil {
		t.Fatal(err)
	}
	faculte, err := user.addField(formId, map[string]interface{}{
		"name": "faculte", "field_type": "select_faculte", "parent_field_id": etablissement,
	})
	if err != nil {
		t.Fatal(err)
	}

	anonymous := env.newClient()

	options, err := anonymous.fieldOptions(etablissement, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(options) != 1 || options[0]["label"] != institution.Name || options[0]["value"] != institution.Id.String() {
		t.Fatalf("unexpected institution options %+v", options)
	}

	options, err = anonymous.fieldOptions(faculte, institution.Id.String())
	if err != nil {
		t.Fatal(err)
	}
	if len(options) != 1 || options[0]["label"] != faculty.Name || options[0]["value"] != faculty.Id.String() {
		t.Fatalf("unexpected faculty options %+v", options)
	}

	// Without a selected parent the child list is empty.
	options, err = anonymous.fieldOptions(faculte, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(options) != 0 {
		t.Fatalf("expected no options before a parent is chosen, got %+v", options)
	}
}
