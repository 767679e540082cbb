package tests

import (
	"strings"
	"testing"
)

func TestSubmissionStatusReview(t *testing.T) {
	env := setupTestEnv(t)

	builder, err := env.newUser("builder")
	if err != nil {
		t.Fatal(err)
	}

	formId, slug, textField, _, _ := buildForm(t, builder, nil)

	anonymous := env.newClient()
	res, err := anonymous.submit(slug, map[string][]string{fieldKey(textField): {"x"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	submissionId := res["submission_id"].(string)

	other, err := env.newUser("other")
	if err != nil {
		t.Fatal(err)
	}

	if err := other.updateStatus(submissionId, "approved"); err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("non owner should not review: %v", err)
	}
	if _, err := other.getSubmission(submissionId); err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("non owner should not view: %v", err)
	}
	if _, err := other.listSubmissions(formId); err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("non owner should not list: %v", err)
	}

	if err := builder.updateStatus(submissionId, "bogus"); err == nil {
		t.Fatal("invalid status should be rejected")
	}

	if err := builder.updateStatus(submissionId, "approved"); err != nil {
		t.Fatal(err)
	}

	submission, err := builder.getSubmission(submissionId)
	if err != nil {
		t.Fatal(err)
	}
	if submission.Status != "approved" {
		t.Fatalf("status not updated, got %v", submission.Status)
	}

	// Admins can review any form's submissions.
	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}
	if err := admin.updateStatus(submissionId, "rejected"); err != nil {
		t.Fatal(err)
	}
}

func TestUpdateAnswerAdminOnly(t *testing.T) {
	env := setupTestEnv(t)

	builder, err := env.newUser("builder")
	if err != nil {
		t.Fatal(err)
	}

	formId, slug, err := builder.createForm("Review Form")
	if err != nil {
		t.Fatal(err)
	}

	openField, err := builder.addField(formId, map[string]interface{}{"name": "nom"})
	if err != nil {
		t.Fatal(err)
	}
	noteField, err := builder.addField(formId, map[string]interface{}{
		"name": "note_admin", "field_type": "textarea", "admin_only": true,
	})
	if err != nil {
		t.Fatal(err)
	}
	decisionField, err := builder.addField(formId, map[string]interface{}{
		"name": "valide", "field_type": "checkbox", "admin_only": true,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := builder.updateForm(formId, map[string]interface{}{"status": "published"}); err != nil {
		t.Fatal(err)
	}

	anonymous := env.newClient()
	res, err := anonymous.submit(slug, map[string][]string{fieldKey(openField): {"ali"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	submissionId := res["submission_id"].(string)

	// Even the form owner cannot edit answers of regular fields.
	err = builder.updateAnswer(submissionId, openField, "changed")
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("non admin-only field must not be editable: %v", err)
	}

	if err := builder.updateAnswer(submissionId, noteField, "dossier complet"); err != nil {
		t.Fatal(err)
	}

	submission, err := builder.getSubmission(submissionId)
	if err != nil {
		t.Fatal(err)
	}
	if answerByField(t, submission.Answers, noteField).ValueText != "dossier complet" {
		t.Fatal("admin-only answer not updated")
	}
	if answerByField(t, submission.Answers, openField).ValueText != "ali" {
		t.Fatal("regular answer should be untouched")
	}

	// Checkbox answers coerce to the stored '1'/'0' encoding.
	for posted, expected := range map[string]string{
		"yes": "1", "true": "1", "1": "1",
		"": "0", "0": "0", "false": "0", "off": "0",
	} {
		if err := builder.updateAnswer(submissionId, decisionField, posted); err != nil {
			t.Fatal(err)
		}
		submission, err := builder.getSubmission(submissionId)
		if err != nil {
			t.Fatal(err)
		}
		if got := answerByField(t, submission.Answers, decisionField).ValueText; got != expected {
			t.Fatalf("posted %q: expected %q got %q", posted, expected, got)
		}
	}

	other, err := env.newUser("other")
	if err != nil {
		t.Fatal(err)
	}
	err = other.updateAnswer(submissionId, noteField, "nope")
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("non owner should not edit answers: %v", err)
	}
}

func TestListSubmissionsNewestFirst(t *testing.T) {
	env := setupTestEnv(t)

	builder, err := env.newUser("builder")
	if err != nil {
		t.Fatal(err)
	}

	formId, slug, textField, _, _ := buildForm(t, builder, nil)

	anonymous := env.newClient()
	for _, value := range []string{"first", "second", "third"} {
		if _, err := anonymous.submit(slug, map[string][]string{fieldKey(textField): {value}}, nil); err != nil {
			t.Fatal(err)
		}
	}

	submissions, err := builder.listSubmissions(formId)
	if err != nil {
		t.Fatal(err)
	}
	if len(submissions) != 3 {
		t.Fatalf("expected 3 submissions, got %d", len(submissions))
	}

	for i := 1; i < len(submissions); i++ {
		if submissions[i].SubmittedAt.After(submissions[i-1].SubmittedAt) {
			t.Fatal("submissions should be ordered newest first")
		}
	}
}
