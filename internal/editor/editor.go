package editor

import (
	"fmt"
	"strings"
	"time"
)

// Type says which kind of templates an editor backend hosts.
type Type string

const (
	TypeNotify Type = "notify"
	TypeDocify Type = "docify"
)

// SyncMode controls whether edits are pushed to the remote backend.
type SyncMode string

const (
	SyncOnline SyncMode = "online"
	SyncLocal  SyncMode = "local"
)

// CredentialsType says where credentials are injected on outgoing requests.
type CredentialsType string

const (
	CredentialsHeader CredentialsType = "header"
	CredentialsQuery  CredentialsType = "query"
)

// Credential is one key/value auth pair. Pairs with an empty key or value
// are kept in the config but never applied to requests.
type Credential struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Config is a named remote-API connection profile. Configs are replaced
// wholesale on save, never mutated in place.
type Config struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Type            Type            `json:"type"`
	SyncMode        SyncMode        `json:"syncMode"`
	APIURL          string          `json:"apiUrl"`
	CredentialsType CredentialsType `json:"credentialsType"`
	Credentials     []Credential    `json:"credentials,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Validate checks the profile before it is persisted.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("editor name is required")
	}

	switch c.Type {
	case TypeNotify, TypeDocify:
	default:
		return fmt.Errorf("invalid editor type %q", c.Type)
	}

	switch c.SyncMode {
	case SyncOnline, SyncLocal, "":
	default:
		return fmt.Errorf("invalid sync mode %q", c.SyncMode)
	}

	switch c.CredentialsType {
	case CredentialsHeader, CredentialsQuery, "":
	default:
		return fmt.Errorf("invalid credentials type %q", c.CredentialsType)
	}

	// online editors need a target before any network operation
	if c.SyncMode == SyncOnline && strings.TrimSpace(c.APIURL) == "" {
		return fmt.Errorf("api url is required when sync mode is online")
	}

	return nil
}

// ActiveCredentials returns only the pairs that should be applied to
// requests.
func (c *Config) ActiveCredentials() []Credential {
	var active []Credential
	for _, cred := range c.Credentials {
		if cred.Key != "" && cred.Value != "" {
			active = append(active, cred)
		}
	}
	return active
}
