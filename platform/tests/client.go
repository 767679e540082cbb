package tests

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"forms_platform/platform/services"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func newUuid() uuid.UUID {
	return uuid.New()
}

type httpTestRequest struct {
	api http.Handler

	method   string
	endpoint string
	headers  map[string]string
	json     interface{}
	body     io.Reader
	login    *loginInfo
}

func newHttpTestRequest(api http.Handler, method, endpoint string) *httpTestRequest {
	return &httpTestRequest{
		api:      api,
		method:   method,
		endpoint: endpoint,
		headers:  nil,
		json:     nil,
		body:     nil,
	}
}

func (r *httpTestRequest) Header(key, value string) *httpTestRequest {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[key] = value
	return r
}

func (r *httpTestRequest) Login(email, password string) *httpTestRequest {
	r.login = &loginInfo{Email: email, Password: password}
	return r
}

func (r *httpTestRequest) Auth(token string) *httpTestRequest {
	return r.Header("Authorization", fmt.Sprintf("Bearer %v", token))
}

func (r *httpTestRequest) Json(data interface{}) *httpTestRequest {
	r.json = data
	return r
}

func (r *httpTestRequest) Body(body io.Reader) *httpTestRequest {
	r.body = body
	return r
}

// response body will be parsed into result, passing nil indicates that no result is returned.
func (r *httpTestRequest) Do(result interface{}) error {
	if r.json != nil {
		body := new(bytes.Buffer)
		err := json.NewEncoder(body).Encode(r.json)
		if err != nil {
			return fmt.Errorf("error encoding json body for endpoint %v: %w", r.endpoint, err)
		}
		r.body = body
	}

	req := httptest.NewRequest(r.method, r.endpoint, r.body)
	if r.headers != nil {
		for k, v := range r.headers {
			req.Header.Add(k, v)
		}
	}

	if r.login != nil {
		req.SetBasicAuth(r.login.Email, r.login.Password)
	}

	w := httptest.NewRecorder()

	r.api.ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		if res.StatusCode == http.StatusUnauthorized {
			return ErrUnauthorized
		}
		return fmt.Errorf("%v request to endpoint %v returned status %d, content '%v'", r.method, r.endpoint, res.StatusCode, w.Body.String())
	}

	if result != nil {
		err := json.NewDecoder(res.Body).Decode(result)
		if err != nil {
			return fmt.Errorf("error parsing %v response from endpoint %v: %w", r.method, r.endpoint, err)
		}
	}

	return nil
}

var ErrUnauthorized = errors.New("unauthorized")

type client struct {
	api       chi.Router
	authToken string
	userId    string
}

func (c *client) Get(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "GET", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Post(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "POST", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Delete(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "DELETE", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

type loginInfo struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *client) signup(username, email, password string) (loginInfo, error) {
	body := map[string]string{
		"email": email, "username": username, "password": password,
	}

	err := c.Post("/user/signup").Json(body).Do(nil)
	if err != nil {
		return loginInfo{}, err
	}

	return loginInfo{Email: email, Password: password}, nil
}

func (c *client) login(login loginInfo) error {
	var res map[string]string
	err := c.Get("/user/login").Login(login.Email, login.Password).Do(&res)
	if err != nil {
		return err
	}

	c.authToken = res["access_token"]
	c.userId = res["user_id"]

	return nil
}

func (c *client) addUser(username, email, password string) (loginInfo, error) {
	body := map[string]string{
		"email": email, "username": username, "password": password,
	}

	err := c.Post("/user/create").Json(body).Do(nil)
	if err != nil {
		return loginInfo{}, err
	}

	return loginInfo{Email: email, Password: password}, nil
}

func (c *client) deleteUser(userId string) error {
	return c.Delete(fmt.Sprintf("/user/%v", userId)).Do(nil)
}

func (c *client) promoteAdmin(userId string) error {
	return c.Post(fmt.Sprintf("/user/%v/admin", userId)).Do(nil)
}

func (c *client) demoteAdmin(userId string) error {
	return c.Delete(fmt.Sprintf("/user/%v/admin", userId)).Do(nil)
}

func (c *client) listUsers() ([]services.UserInfo, error) {
	var res []services.UserInfo
	err := c.Get("/user/list").Do(&res)
	return res, err
}

func (c *client) userInfo() (services.UserInfo, error) {
	var res services.UserInfo
	err := c.Get("/user/info").Do(&res)
	return res, err
}

func (c *client) createForm(title string) (string, string, error) {
	body := map[string]string{"title": title}

	var res map[string]string
	err := c.Post("/forms/create").Json(body).Do(&res)
	return res["form_id"], res["slug"], err
}

func (c *client) updateForm(formId string, updates map[string]interface{}) error {
	return c.Post(fmt.Sprintf("/forms/%v", formId)).Json(updates).Do(nil)
}

func (c *client) deleteForm(formId string) error {
	return c.Delete(fmt.Sprintf("/forms/%v", formId)).Do(nil)
}

func (c *client) listForms() ([]services.FormInfo, error) {
	var res []services.FormInfo
	err := c.Get("/forms/list").Do(&res)
	return res, err
}

type formDetail struct {
	Form   services.FormInfo    `json:"form"`
	Fields []services.FieldInfo `json:"fields"`
}

func (c *client) getForm(formId string) (formDetail, error) {
	var res formDetail
	err := c.Get(fmt.Sprintf("/forms/%v", formId)).Do(&res)
	return res, err
}

func (c *client) addField(formId string, field map[string]interface{}) (string, error) {
	var res map[string]string
	err := c.Post(fmt.Sprintf("/forms/%v/fields", formId)).Json(field).Do(&res)
	return res["field_id"], err
}

func (c *client) updateField(fieldId string, updates map[string]interface{}) error {
	return c.Post(fmt.Sprintf("/forms/fields/%v", fieldId)).Json(updates).Do(nil)
}

func (c *client) deleteField(fieldId string) error {
	return c.Delete(fmt.Sprintf("/forms/fields/%v", fieldId)).Do(nil)
}

func (c *client) reorderFields(formId string, fieldIds []string) error {
	body := map[string][]string{"field_ids": fieldIds}
	return c.Post(fmt.Sprintf("/forms/%v/fields/reorder", formId)).Json(body).Do(nil)
}

func (c *client) getField(fieldId string) (services.FieldInfo, error) {
	var res services.FieldInfo
	err := c.Get(fmt.Sprintf("/forms/fields/%v", fieldId)).Do(&res)
	return res, err
}

func (c *client) fieldOptions(fieldId, parentValue string) ([]map[string]string, error) {
	var res struct {
		Options []map[string]string `json:"options"`
	}
	err := c.Get(fmt.Sprintf("/forms/fields/%v/options?parent_value=%v", fieldId, parentValue)).Do(&res)
	return res.Options, err
}

type layoutDetail struct {
	Items []struct {
		Field    services.FieldInfo   `json:"field"`
		Children []services.FieldInfo `json:"children"`
	} `json:"items"`
}

func (c *client) getLayout(formId string) (layoutDetail, error) {
	var res layoutDetail
	err := c.Get(fmt.Sprintf("/forms/%v/layout", formId)).Do(&res)
	return res, err
}

func (c *client) uploadImage(formId, filename, content string) error {
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return err
	}
	if _, err := part.Write([]byte(content)); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	return c.Post(fmt.Sprintf("/forms/%v/image", formId)).
		Header("Content-Type", writer.FormDataContentType()).
		Body(body).
		Do(nil)
}

func (c *client) getImage(formId string) (string, error) {
	endpoint := fmt.Sprintf("/forms/%v/image", formId)
	req := httptest.NewRequest("GET", endpoint, nil)
	if c.authToken != "" {
		req.Header.Add("Authorization", fmt.Sprintf("Bearer %v", c.authToken))
	}
	w := httptest.NewRecorder()
	c.api.ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("get %v failed with status %d and res '%v'", endpoint, res.StatusCode, w.Body.String())
	}

	return w.Body.String(), nil
}

type fileUpload struct {
	filename string
	content  string
}

// submit posts a multipart submission. values are keyed by field id, files by
// the file field's id.
func (c *client) submit(slug string, values map[string][]string, files map[string]fileUpload) (map[string]interface{}, error) {
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)

	for key, fieldValues := range values {
		for _, value := range fieldValues {
			if err := writer.WriteField(key, value); err != nil {
				return nil, err
			}
		}
	}

	for key, upload := range files {
		part, err := writer.CreateFormFile(key, upload.filename)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write([]byte(upload.content)); err != nil {
			return nil, err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}

	var res map[string]interface{}
	err := c.Post(fmt.Sprintf("/f/%v", slug)).
		Header("Content-Type", writer.FormDataContentType()).
		Body(body).
		Do(&res)
	return res, err
}

func (c *client) mySubmission(slug string) (services.SubmissionInfo, error) {
	var res services.SubmissionInfo
	err := c.Get(fmt.Sprintf("/f/%v/my-submission", slug)).Do(&res)
	return res, err
}

func (c *client) listSubmissions(formId string) ([]services.SubmissionInfo, error) {
	var res []services.SubmissionInfo
	err := c.Get(fmt.Sprintf("/review/forms/%v/submissions", formId)).Do(&res)
	return res, err
}

func (c *client) getSubmission(submissionId string) (services.SubmissionInfo, error) {
	var res services.SubmissionInfo
	err := c.Get(fmt.Sprintf("/review/submissions/%v", submissionId)).Do(&res)
	return res, err
}

func (c *client) updateStatus(submissionId, status string) error {
	body := map[string]string{"status": status}
	return c.Post(fmt.Sprintf("/review/submissions/%v/status", submissionId)).Json(body).Do(nil)
}

func (c *client) updateAnswer(submissionId, fieldId, value string) error {
	body := map[string]string{"value": value}
	return c.Post(fmt.Sprintf("/review/submissions/%v/answers/%v", submissionId, fieldId)).Json(body).Do(nil)
}

func (c *client) downloadFile(submissionId, fileId string) (string, error) {
	endpoint := fmt.Sprintf("/review/submissions/%v/files/%v", submissionId, fileId)
	req := httptest.NewRequest("GET", endpoint, nil)
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %v", c.authToken))
	w := httptest.NewRecorder()
	c.api.ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("get %v failed with status %d and res '%v'", endpoint, res.StatusCode, w.Body.String())
	}

	return w.Body.String(), nil
}

// exportCsv returns the raw export body and the Content-Disposition header.
func (c *client) exportCsv(formId string) (string, string, error) {
	endpoint := fmt.Sprintf("/review/forms/%v/export", formId)
	req := httptest.NewRequest("GET", endpoint, nil)
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %v", c.authToken))
	w := httptest.NewRecorder()
	c.api.ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		if res.StatusCode == http.StatusUnauthorized {
			return "", "", ErrUnauthorized
		}
		return "", "", fmt.Errorf("get %v failed with status %d and res '%v'", endpoint, res.StatusCode, w.Body.String())
	}

	return w.Body.String(), res.Header.Get("Content-Disposition"), nil
}
