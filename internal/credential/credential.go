// Package credential models the access credentials handed to the job proxy.
//
// A Credential is keyed by its Kind. Fields with a typed counterpart are
// decoded into struct fields; everything else is kept verbatim in Extra so the
// proxy always receives the credential exactly as the job service sent it.
package credential

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Kind identifies the credential variant.
type Kind string

const (
	KindGitSource          Kind = "git_source"
	KindDockerRegistry     Kind = "docker_registry"
	KindNpmRegistry        Kind = "npm_registry"
	KindRubygemsServer     Kind = "rubygems_server"
	KindMavenRepository    Kind = "maven_repository"
	KindNugetFeed          Kind = "nuget_feed"
	KindPythonIndex        Kind = "python_index"
	KindComposerRepository Kind = "composer_repository"
	KindHexOrganization    Kind = "hex_organization"
	KindHexRepository      Kind = "hex_repository"
	KindTerraformRegistry  Kind = "terraform_registry"
	KindGoproxyServer      Kind = "goproxy_server"
	KindCargoRegistry      Kind = "cargo_registry"
	KindHelmRegistry       Kind = "helm_registry"
	KindPubRepository      Kind = "pub_repository"

	// KindJitAccess is a short-lived single-use token. It never appears in
	// credentials metadata.
	KindJitAccess Kind = "jit_access"
)

// Wire names of the typed fields.
const (
	keyType                 = "type"
	keyHost                 = "host"
	keyURL                  = "url"
	keyRegistry             = "registry"
	keyIndexURL             = "index-url"
	keyUsername             = "username"
	keyPassword             = "password"
	keyToken                = "token"
	keyOrganization         = "organization"
	keyRepo                 = "repo"
	keyEnvKey               = "env-key"
	keyPublicKeyFingerprint = "public-key-fingerprint"
	keyReplacesBase         = "replaces-base"
)

// nonSecretKeys are the only fields that may be logged or persisted.
var nonSecretKeys = map[string]bool{
	keyType:                 true,
	keyHost:                 true,
	keyURL:                  true,
	keyRegistry:             true,
	keyIndexURL:             true,
	keyUsername:             true,
	keyOrganization:         true,
	keyRepo:                 true,
	keyEnvKey:               true,
	keyPublicKeyFingerprint: true,
	keyReplacesBase:         true,
}

// Credential is one access credential.
type Credential struct {
	Type                 Kind
	Host                 string
	URL                  string
	Registry             string
	IndexURL             string
	Username             string
	Password             string
	Token                string
	Organization         string
	Repo                 string
	EnvKey               string
	PublicKeyFingerprint string
	ReplacesBase         *bool

	// Extra holds fields without a typed counterpart, e.g. "key" for
	// hex_organization or OIDC settings. Values are raw JSON.
	Extra map[string]json.RawMessage
}

func (c *Credential) stringFields() map[string]*string {
	return map[string]*string{
		keyHost:                 &c.Host,
		keyURL:                  &c.URL,
		keyRegistry:             &c.Registry,
		keyIndexURL:             &c.IndexURL,
		keyUsername:             &c.Username,
		keyPassword:             &c.Password,
		keyToken:                &c.Token,
		keyOrganization:         &c.Organization,
		keyRepo:                 &c.Repo,
		keyEnvKey:               &c.EnvKey,
		keyPublicKeyFingerprint: &c.PublicKeyFingerprint,
	}
}

// UnmarshalJSON decodes a credential, treating null values as absent.
func (c *Credential) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode credential: %w", err)
	}

	*c = Credential{}
	fields := c.stringFields()
	for key, value := range raw {
		if isNull(value) {
			continue
		}
		switch key {
		case keyType:
			var kind string
			if err := json.Unmarshal(value, &kind); err != nil {
				return fmt.Errorf("decode credential type: %w", err)
			}
			c.Type = Kind(kind)
			continue
		case keyReplacesBase:
			var b bool
			if err := json.Unmarshal(value, &b); err == nil {
				c.ReplacesBase = &b
				continue
			}
		default:
			if target, ok := fields[key]; ok {
				if err := json.Unmarshal(value, target); err == nil {
					continue
				}
			}
		}
		if c.Extra == nil {
			c.Extra = make(map[string]json.RawMessage)
		}
		c.Extra[key] = append(json.RawMessage(nil), value...)
	}
	return nil
}

// MarshalJSON encodes the full credential, secrets included. Only the proxy
// configuration should ever be built from this encoding.
func (c Credential) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Extra)+4)
	for key, value := range c.Extra {
		out[key] = value
	}
	out[keyType] = string(c.Type)
	for key, value := range c.stringFields() {
		if *value != "" {
			out[key] = *value
		}
	}
	if c.ReplacesBase != nil {
		out[keyReplacesBase] = *c.ReplacesBase
	}
	return json.Marshal(out)
}

// Secrets returns every secret value carried by the credential: the password,
// the token, and each string field outside the non-secret allow-list.
func (c Credential) Secrets() []string {
	var secrets []string
	if c.Password != "" {
		secrets = append(secrets, c.Password)
	}
	if c.Token != "" {
		secrets = append(secrets, c.Token)
	}

	keys := make([]string, 0, len(c.Extra))
	for key := range c.Extra {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if nonSecretKeys[key] {
			continue
		}
		var s string
		if err := json.Unmarshal(c.Extra[key], &s); err == nil && s != "" {
			secrets = append(secrets, s)
		}
	}
	return secrets
}

// String never includes secret material.
func (c Credential) String() string {
	location := c.Host
	for _, candidate := range []string{c.Registry, c.IndexURL, c.URL, c.Organization} {
		if location == "" {
			location = candidate
		}
	}
	return fmt.Sprintf("%s(%s)", c.Type, location)
}

func isNull(value json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(value), []byte("null"))
}
