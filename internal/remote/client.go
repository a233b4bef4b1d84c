// Package remote implements the HTTP client that pushes template updates
// to the docify/notify backends configured as editor profiles.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/imroc/req/v3"

	"github.com/foxzi/templar/internal/cache"
	"github.com/foxzi/templar/internal/editor"
)

// ErrNoAPIURL is returned when an operation is attempted against an
// editor profile without a configured API URL.
var ErrNoAPIURL = errors.New("editor has no api url configured")

var fileNameSanitizer = regexp.MustCompile(`[^A-Z0-9_]`)

// defaultPageSettings is applied when a new document template is created
// without explicit page settings.
var defaultPageSettings = json.RawMessage(`{"pageSize":"A4","orientation":"portrait","marginTop":15,"marginBottom":15,"marginLeft":15,"marginRight":15}`)

// sampleHTML is the placeholder body for newly created document templates.
const sampleHTML = `<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8" />
    <title>Sample Template</title>
  </head>
  <body>
    <h1>Sample PDF Template</h1>
    <p>This is a placeholder HTML file for a new PDF template.</p>
    <p>Replace this content with your actual template markup.</p>
  </body>
</html>
`

// NotifyPayload is the JSON body sent to notify backends. Absent arrays
// are serialized as [] and absent maps as {}, never null.
type NotifyPayload struct {
	Key     string            `json:"key"`
	Sender  string            `json:"sender"`
	Subject string            `json:"subject"`
	Email   string            `json:"email"`
	SMS     string            `json:"sms"`
	CC      []string          `json:"cc"`
	BCC     []string          `json:"bcc"`
	Data    map[string]string `json:"data"`
}

// Client performs the template API calls against editor backends. It
// carries no retry or backoff logic: a failed call is reported to the
// caller, which records it and moves on.
type Client struct {
	http   *req.Client
	logger *slog.Logger
}

// NewClient creates a remote update client.
func NewClient(logger *slog.Logger) *Client {
	return &Client{
		http:   req.C().SetUserAgent("templar"),
		logger: logger,
	}
}

// SetTimeout bounds every outgoing request.
func (c *Client) SetTimeout(d time.Duration) *Client {
	if d > 0 {
		c.http.SetTimeout(d)
	}
	return c
}

// UpdatePageSettings pushes a document template's variables and metadata.
func (c *Client) UpdatePageSettings(ctx context.Context, ed *editor.Config, templateID string, t *cache.DocifyTemplate) error {
	base, err := baseURL(ed)
	if err != nil {
		return err
	}

	pageSettings := t.PageSettings
	if len(pageSettings) == 0 {
		pageSettings = json.RawMessage("{}")
	}

	res, err := c.request(ctx, ed).
		SetFormData(map[string]string{
			"templateId":     templateID,
			"name":           t.Name,
			"pageSettings":   string(pageSettings),
			"sampleJsonData": t.SampleJSONData,
			"folderName":     t.FolderName,
			"tags":           marshalTags(t.Tags),
		}).
		EnableForceMultipart().
		Put(base + "/templates/edit-page-settings/" + templateID)

	return checkResponse(res, err, "update page settings")
}

// UpdateContent pushes a document template's HTML body as a file upload.
func (c *Client) UpdateContent(ctx context.Context, ed *editor.Config, templateID string, t *cache.DocifyTemplate) error {
	base, err := baseURL(ed)
	if err != nil {
		return err
	}

	name := t.Name
	if name == "" {
		name = "template-" + templateID
	}

	res, err := c.request(ctx, ed).
		SetFileBytes("file", ContentFileName(name), []byte(t.HTMLContent)).
		SetFormData(map[string]string{
			"templateId": templateID,
		}).
		Put(base + "/templates/" + templateID)

	return checkResponse(res, err, "update template content")
}

// UpdateNotify pushes a notification template as a JSON document.
func (c *Client) UpdateNotify(ctx context.Context, ed *editor.Config, templateID string, t *cache.NotifyTemplate) error {
	base, err := baseURL(ed)
	if err != nil {
		return err
	}

	res, err := c.request(ctx, ed).
		SetBodyJsonMarshal(notifyPayload(t)).
		Put(base + "/templates/" + templateID)

	return checkResponse(res, err, "update notify template")
}

// CreateDocify creates a new document template, filling in placeholder
// content and default page settings for absent fields.
func (c *Client) CreateDocify(ctx context.Context, ed *editor.Config, t *cache.DocifyTemplate) error {
	base, err := baseURL(ed)
	if err != nil {
		return err
	}

	htmlContent := t.HTMLContent
	if htmlContent == "" {
		htmlContent = sampleHTML
	}
	name := t.Name
	if name == "" {
		name = t.FileName
	}
	if name == "" {
		name = fmt.Sprintf("template-%d", time.Now().UnixMilli())
	}
	pageSettings := t.PageSettings
	if len(pageSettings) == 0 {
		pageSettings = defaultPageSettings
	}
	sampleData := t.SampleJSONData
	if sampleData == "" {
		sampleData = "{}"
	}

	res, err := c.request(ctx, ed).
		SetFileBytes("file", ContentFileName(name), []byte(htmlContent)).
		SetFormData(map[string]string{
			"name":           name,
			"folderName":     t.FolderName,
			"tags":           marshalTags(t.Tags),
			"pageSettings":   string(pageSettings),
			"sampleJsonData": sampleData,
		}).
		Post(base + "/templates")

	return checkResponse(res, err, "create docify template")
}

// CreateNotify creates a new notification template.
func (c *Client) CreateNotify(ctx context.Context, ed *editor.Config, t *cache.NotifyTemplate) error {
	base, err := baseURL(ed)
	if err != nil {
		return err
	}

	payload := notifyPayload(t)
	if payload.Key == "" {
		payload.Key = payload.Subject
	}
	if payload.Subject == "" {
		payload.Subject = payload.Key
	}

	res, err := c.request(ctx, ed).
		SetBodyJsonMarshal(payload).
		Post(base + "/templates")

	return checkResponse(res, err, "create notify template")
}

// request starts a request with the editor's credentials applied either
// as headers or as query parameters.
func (c *Client) request(ctx context.Context, ed *editor.Config) *req.Request {
	r := c.http.R().SetContext(ctx)

	for _, cred := range ed.ActiveCredentials() {
		switch ed.CredentialsType {
		case editor.CredentialsHeader:
			r.SetHeader(cred.Key, cred.Value)
		case editor.CredentialsQuery:
			r.SetQueryParam(cred.Key, cred.Value)
		}
	}

	return r
}

// ContentFileName builds the upload name for an HTML body:
// uppercased, with anything outside [A-Z0-9_] collapsed to underscores.
func ContentFileName(name string) string {
	return fileNameSanitizer.ReplaceAllString(strings.ToUpper(name), "_") + ".html"
}

func notifyPayload(t *cache.NotifyTemplate) *NotifyPayload {
	p := &NotifyPayload{
		Key:     t.Key,
		Sender:  t.Sender,
		Subject: t.Subject,
		Email:   t.Email,
		SMS:     t.SMS,
		CC:      t.CC,
		BCC:     t.BCC,
		Data:    t.Data,
	}
	if p.CC == nil {
		p.CC = []string{}
	}
	if p.BCC == nil {
		p.BCC = []string{}
	}
	if p.Data == nil {
		p.Data = map[string]string{}
	}
	return p
}

func marshalTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func baseURL(ed *editor.Config) (string, error) {
	url := strings.TrimRight(strings.TrimSpace(ed.APIURL), "/")
	if url == "" {
		return "", ErrNoAPIURL
	}
	return url, nil
}

func checkResponse(res *req.Response, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.IsErrorState() {
		return fmt.Errorf("%s: unexpected status %s", op, res.Status)
	}
	return nil
}
