package credential

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// Metadata is the secret-free projection of a Credential that is safe to
// persist in job state.
type Metadata struct {
	Type                 Kind   `json:"type"`
	Host                 string `json:"host,omitempty"`
	URL                  string `json:"url,omitempty"`
	Registry             string `json:"registry,omitempty"`
	IndexURL             string `json:"index-url,omitempty"`
	Organization         string `json:"organization,omitempty"`
	Repo                 string `json:"repo,omitempty"`
	EnvKey               string `json:"env-key,omitempty"`
	PublicKeyFingerprint string `json:"public-key-fingerprint,omitempty"`
	ReplacesBase         *bool  `json:"replaces-base,omitempty"`
}

// Metadata projects the credential. The second result is false for kinds that
// are never recorded.
func (c Credential) Metadata() (Metadata, bool) {
	m := Metadata{
		Type:         c.Type,
		Host:         c.Host,
		URL:          c.URL,
		ReplacesBase: c.ReplacesBase,
	}

	switch c.Type {
	case KindJitAccess:
		return Metadata{}, false
	case KindDockerRegistry, KindNpmRegistry, KindHelmRegistry, KindCargoRegistry, KindTerraformRegistry:
		m.Registry = c.Registry
		if m.Registry == "" && m.Host == "" {
			m.Registry = registryFromURL(c.URL)
		}
	case KindPythonIndex:
		m.IndexURL = c.IndexURL
		if m.IndexURL == "" {
			m.IndexURL = c.URL
		}
	case KindHexOrganization:
		m.Organization = c.Organization
	case KindHexRepository:
		m.Repo = c.Repo
		m.PublicKeyFingerprint = c.PublicKeyFingerprint
	case KindGitSource, KindRubygemsServer, KindComposerRepository, KindGoproxyServer,
		KindMavenRepository, KindNugetFeed, KindPubRepository:
		// host and url already projected
	default:
		m.Registry = c.Registry
		m.IndexURL = c.IndexURL
		m.Organization = c.Organization
		m.Repo = c.Repo
	}
	m.EnvKey = c.EnvKey
	return m, true
}

type metadataKey struct {
	Metadata
	replacesBase string
}

func (m Metadata) key() metadataKey {
	k := metadataKey{Metadata: m}
	k.ReplacesBase = nil
	if m.ReplacesBase != nil {
		k.replacesBase = strconv.FormatBool(*m.ReplacesBase)
	}
	return k
}

// Equal reports structural equality.
func (m Metadata) Equal(other Metadata) bool {
	return m.key() == other.key()
}

// MetadataList projects creds, dropping jit_access entries and duplicates
// while preserving first-seen order.
func MetadataList(creds []Credential) []Metadata {
	projected := lo.FilterMap(creds, func(c Credential, _ int) (Metadata, bool) {
		return c.Metadata()
	})
	return lo.UniqBy(projected, Metadata.key)
}

// registryFromURL turns "https://npm.example.com/scope/" into
// "npm.example.com/scope".
func registryFromURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(raw, "/")
	}
	return strings.TrimSuffix(u.Host+u.Path, "/")
}
