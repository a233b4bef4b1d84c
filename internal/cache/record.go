package cache

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Channel discriminates the two template kinds served by remote editors.
type Channel string

const (
	// ChannelDocify is a PDF document template.
	ChannelDocify Channel = "docify"
	// ChannelNotify is an email/SMS notification template.
	ChannelNotify Channel = "notify"
)

// Entry is the persisted envelope for one cached template, keyed by
// template id in the templates bucket.
type Entry struct {
	Expiry     int64           `json:"expiry"`
	LastOpened int64           `json:"lastOpened,omitempty"`
	EditorID   string          `json:"editorId,omitempty"`
	Template   json.RawMessage `json:"template"`
}

// TemplateRef is the lightweight scan result used to build sync payloads:
// identity and owning editor only, never full content.
type TemplateRef struct {
	TemplateID string `json:"templateId"`
	Name       string `json:"name"`
	EditorID   string `json:"editorId"`
}

// DocifyTemplate is the payload of a PDF document template.
type DocifyTemplate struct {
	ID             string          `json:"id,omitempty"`
	Name           string          `json:"name,omitempty"`
	FileName       string          `json:"fileName,omitempty"`
	HTMLContent    string          `json:"htmlContent,omitempty"`
	SampleJSONData string          `json:"sampleJsonData,omitempty"`
	PageSettings   json.RawMessage `json:"pageSettings,omitempty"`
	FolderName     string          `json:"folderName,omitempty"`
	Tags           []string        `json:"tags,omitempty"`
	EditorID       string          `json:"editorId,omitempty"`
	LastOpened     int64           `json:"lastOpened,omitempty"`
}

// NotifyTemplate is the payload of an email/SMS notification template.
type NotifyTemplate struct {
	Key        string            `json:"key,omitempty"`
	Subject    string            `json:"subject,omitempty"`
	Sender     string            `json:"sender,omitempty"`
	Email      string            `json:"email,omitempty"`
	SMS        string            `json:"sms,omitempty"`
	CC         []string          `json:"cc,omitempty"`
	BCC        []string          `json:"bcc,omitempty"`
	Data       map[string]string `json:"data,omitempty"`
	EditorID   string            `json:"editorId,omitempty"`
	LastOpened int64             `json:"lastOpened,omitempty"`
}

// Record is a fully resolved cache entry. Exactly one of Docify or Notify
// is set, matching Channel; dispatch code switches on Channel instead of
// probing optional fields.
type Record struct {
	TemplateID string          `json:"templateId"`
	Channel    Channel         `json:"channelType"`
	EditorID   string          `json:"editorId"`
	Expiry     int64           `json:"expiry"`
	LastOpened int64           `json:"lastOpened,omitempty"`
	Docify     *DocifyTemplate `json:"docify,omitempty"`
	Notify     *NotifyTemplate `json:"notify,omitempty"`
}

// HasContent reports whether the record carries anything worth pushing to
// its editor: non-blank HTML for docify, at least one message body for
// notify.
func (r *Record) HasContent() bool {
	switch r.Channel {
	case ChannelDocify:
		return r.Docify != nil && strings.TrimSpace(r.Docify.HTMLContent) != ""
	case ChannelNotify:
		return r.Notify != nil && (r.Notify.Email != "" || r.Notify.SMS != "")
	}
	return false
}

// DisplayName returns the best available name for the record.
func (r *Record) DisplayName() string {
	switch r.Channel {
	case ChannelDocify:
		if r.Docify != nil {
			if r.Docify.Name != "" {
				return r.Docify.Name
			}
			if r.Docify.FileName != "" {
				return r.Docify.FileName
			}
		}
	case ChannelNotify:
		if r.Notify != nil {
			if r.Notify.Key != "" {
				return r.Notify.Key
			}
			if r.Notify.Subject != "" {
				return r.Notify.Subject
			}
		}
	}
	return r.TemplateID
}

// payloadProbe reads the fields shared across both payload shapes that
// classification and scanning need, without committing to either one.
type payloadProbe struct {
	Name       string  `json:"name"`
	FileName   string  `json:"fileName"`
	Key        string  `json:"key"`
	Subject    string  `json:"subject"`
	Email      *string `json:"email"`
	SMS        *string `json:"sms"`
	EditorID   string  `json:"editorId"`
	LastOpened int64   `json:"lastOpened"`
}

// channel classifies a payload: anything carrying an email or sms field is
// a notification template, everything else is a document template.
func (p *payloadProbe) channel() Channel {
	if p.Email != nil || p.SMS != nil {
		return ChannelNotify
	}
	return ChannelDocify
}

// displayName implements the scan-time name fallback chain.
func (p *payloadProbe) displayName(templateID string) string {
	for _, candidate := range []string{p.Name, p.FileName, p.Key, p.Subject} {
		if candidate != "" {
			return candidate
		}
	}
	return templateID
}

// decodeRecord resolves a stored envelope into a tagged Record.
func decodeRecord(templateID string, e *Entry) (*Record, error) {
	var probe payloadProbe
	if err := json.Unmarshal(e.Template, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse template payload: %w", err)
	}

	rec := &Record{
		TemplateID: templateID,
		Channel:    probe.channel(),
		Expiry:     e.Expiry,
		LastOpened: e.LastOpened,
		// editor reference embedded in the payload wins over the envelope
		EditorID: probe.EditorID,
	}
	if rec.EditorID == "" {
		rec.EditorID = e.EditorID
	}
	if probe.LastOpened != 0 {
		rec.LastOpened = probe.LastOpened
	}

	switch rec.Channel {
	case ChannelDocify:
		var t DocifyTemplate
		if err := json.Unmarshal(e.Template, &t); err != nil {
			return nil, fmt.Errorf("failed to parse docify template: %w", err)
		}
		rec.Docify = &t
	case ChannelNotify:
		var t NotifyTemplate
		if err := json.Unmarshal(e.Template, &t); err != nil {
			return nil, fmt.Errorf("failed to parse notify template: %w", err)
		}
		rec.Notify = &t
	}

	return rec, nil
}
