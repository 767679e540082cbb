package tests

import (
	"encoding/json"
	"fmt"
	"forms_platform/platform/services"
	"strings"
	"testing"
	"time"
)

func fieldKey(fieldId string) string {
	return fmt.Sprintf("field_%v", fieldId)
}

func existingFieldKey(fieldId string) string {
	return fmt.Sprintf("existing_field_%v", fieldId)
}

// buildForm creates a form with a text field, a checkbox field, and a file
// field, returning the form id, slug, and the three field ids.
func buildForm(t *testing.T, builder client, updates map[string]interface{}) (string, string, string, string, string) {
	formId, slug, err := builder.createForm("Test Form")
	if err != nil {
		t.Fatal(err)
	}

	textField, err := builder.addField(formId, map[string]interface{}{"name": "nom"})
	if err != nil {
		t.Fatal(err)
	}
	checkboxField, err := builder.addField(formId, map[string]interface{}{"name": "langues", "field_type": "checkbox"})
	if err != nil {
		t.Fatal(err)
	}
	fileField, err := builder.addField(formId, map[string]interface{}{"name": "releve", "field_type": "file"})
	if err != nil {
		t.Fatal(err)
	}

	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["status"]; !ok {
		updates["status"] = "published"
	}
	if err := builder.updateForm(formId, updates); err != nil {
		t.Fatal(err)
	}

	return formId, slug, textField, checkboxField, fileField
}

func answerByField(t *testing.T, answers []services.AnswerInfo, fieldId string) services.AnswerInfo {
	for _, answer := range answers {
		if answer.FieldId.String() == fieldId {
			return answer
		}
	}
	t.Fatalf("no answer for field %v", fieldId)
	return services.AnswerInfo{}
}

func TestSubmitDraftFormHidden(t *testing.T) {
	env := setupTestEnv(t)

	builder, err := env.newUser("builder")
	if err != nil {
		t.Fatal(err)
	}

	_, slug, textField, _, _ := buildForm(t, builder, map[string]interface{}{"status": "draft"})

	anonymous := env.newClient()
	_, err = anonymous.submit(slug, map[string][]string{fieldKey(textField): {"ali"}}, nil)
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("draft form should not accept submissions: %v", err)
	}
}

func TestSubmitRecordsAllFields(t *testing.T) {
	env := setupTestEnv(t)

	builder, err := env.newUser("builder")
	if err != nil {
		t.Fatal(err)
	}

	formId, slug, textField, checkboxField, fileField := buildForm(t, builder, nil)

	anonymous := env.newClient()
	res, err := anonymous.submit(slug, map[string][]string{
		fieldKey(textField):     {"ali ben salah"},
		fieldKey(checkboxField): {"fr", "en"},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res["submission_id"] == "" {
		t.Fatal("missing submission id")
	}

	submissions, err := builder.listSubmissions(formId)
	if err != nil {
		t.Fatal(err)
	}
	if len(submissions) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(submissions))
	}

	submission := submissions[0]
	if submission.SubmittedById != nil {
		t.Fatal("anonymous submission should not have a submitter")
	}
	if submission.Status != "pending" {
		t.Fatalf("expected pending status, got %v", submission.Status)
	}
	if submission.IpAddress == "" || submission.UserAgent == "" {
		// httptest requests carry a remote addr, the user agent may be empty.
		if submission.IpAddress == "" {
			t.Fatal("submission should record the client ip")
		}
	}

	// Every field gets an answer row, posted or not.
	if len(submission.Answers) != 3 {
		t.Fatalf("expected 3 answers, got %d", len(submission.Answers))
	}

	if answerByField(t, submission.Answers, textField).ValueText != "ali ben salah" {
		t.Fatal("text answer not recorded")
	}

	checkbox := answerByField(t, submission.Answers, checkboxField)
	if checkbox.ValueText != "fr,en" {
		t.Fatalf("unexpected checkbox text %v", checkbox.ValueText)
	}
	var decoded map[string][]string
	if err := json.Unmarshal(checkbox.ValueJson, &decoded); err != nil {
		t.Fatal(err)
	}
	if len(decoded["values"]) != 2 || decoded["values"][0] != "fr" || decoded["values"][1] != "en" {
		t.Fatalf("unexpected checkbox json %v", decoded)
	}

	if answerByField(t, submission.Answers, fileField).ValueText != "" {
		t.Fatal("missing file should produce an empty answer")
	}
}

func TestAuthenticatedAccessLevel(t *testing.T) {
	env := setupTestEnv(t)

	builder, err := env.newUser("builder")
	if err != nil {
		t.Fatal(err)
	}

	_, slug, textField, _, _ := buildForm(t, builder, map[string]interface{}{"access_level": "authenticated"})

	anonymous := env.newClient()
	_, err = anonymous.submit(slug, map[string][]string{fieldKey(textField): {"x"}}, nil)
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("anonymous submit should be denied: %v", err)
	}

	user, err := env.newUser("student")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := user.submit(slug, map[string][]string{fieldKey(textField): {"x"}}, nil); err != nil {
		t.Fatal(err)
	}
}

func TestSingleSubmission(t *testing.T) {
	env := setupTestEnv(t)

	builder, err := env.newUser("builder")
	if err != nil {
		t.Fatal(err)
	}

	formId, slug, textField, _, _ := buildForm(t, builder, map[string]interface{}{"single_submission": true})

	user, err := env.newUser("student")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := user.submit(slug, map[string][]string{fieldKey(textField): {"first"}}, nil); err != nil {
		t.Fatal(err)
	}

	_, err = user.submit(slug, map[string][]string{fieldKey(textField): {"second"}}, nil)
	if err == nil || !strings.Contains(err.Error(), "409") {
		t.Fatalf("second submit should conflict: %v", err)
	}

	submissions, err := builder.listSubmissions(formId)
	if err != nil {
		t.Fatal(err)
	}
	if len(submissions) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(submissions))
	}
	if answerByField(t, submissions[0].Answers, textField).ValueText != "first" {
		t.Fatal("original submission should be intact")
	}
}

func TestAllowUpdateReplacesAnswers(t *testing.T) {
	env := setupTestEnv(t)

	builder, err := env.newUser("builder")
	if err != nil {
		t.Fatal(err)
	}

	formId, slug, textField, checkboxField, _ := buildForm(t, builder, map[string]interface{}{
		"single_submission": true, "allow_update": true,
	})

	user, err := env.newUser("student")
	if err != nil {
		t.Fatal(err)
	}

	first, err := user.submit(slug, map[string][]string{
		fieldKey(textField):     {"first"},
		fieldKey(checkboxField): {"fr"},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	firstAnswers, err := builder.listSubmissions(formId)
	if err != nil {
		t.Fatal(err)
	}
	oldAnswerId := answerByField(t, firstAnswers[0].Answers, textField).Id

	second, err := user.submit(slug, map[string][]string{fieldKey(textField): {"second"}}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if first["submission_id"] != second["submission_id"] {
		t.Fatal("update should reuse the submission row")
	}
	if second["updated"] != true {
		t.Fatal("second submit should report an update")
	}

	submissions, err := builder.listSubmissions(formId)
	if err != nil {
		t.Fatal(err)
	}
	if len(submissions) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(submissions))
	}

	submission := submissions[0]
	if len(submission.Answers) != 3 {
		t.Fatalf("expected 3 answers after update, got %d", len(submission.Answers))
	}

	newAnswer := answerByField(t, submission.Answers, textField)
	if newAnswer.ValueText != "second" {
		t.Fatal("answers should be replaced")
	}
	if newAnswer.Id == oldAnswerId {
		t.Fatal("answers should be recreated, not edited in place")
	}
	cleared := answerByField(t, submission.Answers, checkboxField)
	if cleared.ValueText != "" {
		t.Fatal("fields omitted from the update should be cleared")
	}
	if string(cleared.ValueJson) != `{"values":[]}` {
		t.Fatalf("cleared checkbox should store an empty list, got %s", cleared.ValueJson)
	}
}

func TestUpdateKeepsSubmissionMetadata(t *testing.T) {
	env := setupTestEnv(t)

	builder, err := env.newUser("builder")
	if err != nil {
		t.Fatal(err)
	}

	formId, slug, textField, _, _ := buildForm(t, builder, map[string]interface{}{"allow_update": true})

	user, err := env.newUser("student")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := user.submit(slug, map[string][]string{fieldKey(textField): {"first"}}, nil); err != nil {
		t.Fatal(err)
	}

	submissions, err := builder.listSubmissions(formId)
	if err != nil {
		t.Fatal(err)
	}
	original := submissions[0]

	time.Sleep(50 * time.Millisecond)

	if _, err := user.submit(slug, map[string][]string{fieldKey(textField): {"second"}}, nil); err != nil {
		t.Fatal(err)
	}

	submissions, err = builder.listSubmissions(formId)
	if err != nil {
		t.Fatal(err)
	}
	updated := submissions[0]

	// The create-time metadata belongs to the original submission, a full
	// replace only rewrites answers and files.
	if !updated.SubmittedAt.Equal(original.SubmittedAt) {
		t.Fatalf("update should keep the submission time: was %v now %v", original.SubmittedAt, updated.SubmittedAt)
	}
	if updated.IpAddress != original.IpAddress || updated.UserAgent != original.UserAgent {
		t.Fatal("update should keep the recorded client metadata")
	}
	if answerByField(t, updated.Answers, textField).ValueText != "second" {
		t.Fatal("answers should still be replaced")
	}
}

func TestAnonymousSubmissionsUnlimited(t *testing.T) {
	env := setupTestEnv(t)

	builder, err := env.newUser("builder")
	if err != nil {
		t.Fatal(err)
	}

	formId, slug, textField, _, _ := buildForm(t, builder, map[string]interface{}{"single_submission": true})

	anonymous := env.newClient()
	for i := 0; i < 3; i++ {
		if _, err := anonymous.submit(slug, map[string][]string{fieldKey(textField): {fmt.Sprintf("v%d", i)}}, nil); err != nil {
			t.Fatal(err)
		}
	}

	submissions, err := builder.listSubmissions(formId)
	if err != nil {
		t.Fatal(err)
	}
	if len(submissions) != 3 {
		t.Fatalf("anonymous submissions are not actor keyed, expected 3 got %d", len(submissions))
	}
}

func TestFileUploadAndCarryOver(t *testing.T) {
	env := setupTestEnv(t)

	builder, err := env.newUser("builder")
	if err != nil {
		t.Fatal(err)
	}

	formId, slug, textField, _, fileField := buildForm(t, builder, map[string]interface{}{
		"single_submission": true, "allow_update": true,
	})

	user, err := env.newUser("student")
	if err != nil {
		t.Fatal(err)
	}

	_, err = user.submit(slug,
		map[string][]string{fieldKey(textField): {"first"}},
		map[string]fileUpload{fieldKey(fileField): {filename: "notes.pdf", content: "pdf bytes"}},
	)
	if err != nil {
		t.Fatal(err)
	}

	submissions, err := builder.listSubmissions(formId)
	if err != nil {
		t.Fatal(err)
	}
	if len(submissions[0].Files) != 1 {
		t.Fatalf("expected 1 uploaded file, got %d", len(submissions[0].Files))
	}

	file := submissions[0].Files[0]
	if file.OriginalFilename != "notes.pdf" || !strings.HasSuffix(file.StoredFilename, "_notes.pdf") {
		t.Fatalf("unexpected filenames %+v", file)
	}
	if answerByField(t, submissions[0].Answers, fileField).ValueText != file.StoredFilename {
		t.Fatal("file answer should record the stored filename")
	}

	stored, err := env.storage.Exists("uploads/" + file.StoredFilename)
	if err != nil {
		t.Fatal(err)
	}
	if !stored {
		t.Fatal("uploaded file missing from storage")
	}

	content, err := builder.downloadFile(submissions[0].Id.String(), file.Id.String())
	if err != nil {
		t.Fatal(err)
	}
	if content != "pdf bytes" {
		t.Fatalf("unexpected file content %q", content)
	}

	// Update without re-uploading, carrying the stored name over.
	_, err = user.submit(slug, map[string][]string{
		fieldKey(textField):         {"second"},
		existingFieldKey(fileField): {file.StoredFilename},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	submissions, err = builder.listSubmissions(formId)
	if err != nil {
		t.Fatal(err)
	}
	if answerByField(t, submissions[0].Answers, fileField).ValueText != file.StoredFilename {
		t.Fatal("carried over filename lost")
	}
	if len(submissions[0].Files) != 1 || submissions[0].Files[0].StoredFilename != file.StoredFilename {
		t.Fatalf("carried over file row missing %+v", submissions[0].Files)
	}
}

func TestMySubmission(t *testing.T) {
	env := setupTestEnv(t)

	builder, err := env.newUser("builder")
	if err != nil {
		t.Fatal(err)
	}

	_, slug, textField, _, _ := buildForm(t, builder, nil)

	user, err := env.newUser("student")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := user.mySubmission(slug); err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("no submission yet: %v", err)
	}

	if _, err := user.submit(slug, map[string][]string{fieldKey(textField): {"mine"}}, nil); err != nil {
		t.Fatal(err)
	}

	submission, err := user.mySubmission(slug)
	if err != nil {
		t.Fatal(err)
	}
	if submission.SubmittedById == nil || submission.SubmittedById.String() != user.userId {
		t.Fatalf("unexpected submitter %+v", submission.SubmittedById)
	}
	if answerByField(t, submission.Answers, textField).ValueText != "mine" {
		t.Fatal("unexpected answer")
	}
}
