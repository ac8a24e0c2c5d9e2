package api

import (
	"encoding/json"
	"testing"

	"github.com/RevCBH/jobrunner/internal/credential"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExperiments_Enabled(t *testing.T) {
	tests := []struct {
		name        string
		experiments Experiments
		want        bool
	}{
		{"underscore", Experiments{"automatic_github_packages_auth": true}, true},
		{"hyphen", Experiments{"automatic-github-packages-auth": true}, true},
		{"string true", Experiments{"automatic_github_packages_auth": "true"}, true},
		{"disabled", Experiments{"automatic_github_packages_auth": false}, false},
		{"absent", Experiments{"other": true}, false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.experiments.Enabled("automatic_github_packages_auth"))
		})
	}
}

func TestSource_Owner(t *testing.T) {
	assert.Equal(t, "acme", Source{Repo: "acme/widgets"}.Owner())
	assert.Equal(t, "", Source{}.Owner())
}

func decodeDetails(t *testing.T, raw string) JobDetails {
	t.Helper()
	var details JobDetails
	require.NoError(t, json.Unmarshal([]byte(raw), &details))
	return details
}

func TestJobDetails_MarshalKeepsUnknownFields(t *testing.T) {
	raw := `{"id":"42","allowed-updates":[{"dependency-type":"direct"}],"package-manager":"npm_and_yarn",
		"source":{"provider":"github","repo":"acme/widgets","extra":1}}`
	details := decodeDetails(t, raw)

	encoded, err := json.Marshal(details)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(encoded))
}

func TestJobDetails_MarshalOmitsAbsentSource(t *testing.T) {
	details := decodeDetails(t, `{"id":"42","package-manager":"bundler"}`)

	encoded, err := json.Marshal(details)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"42","package-manager":"bundler"}`, string(encoded))
}

func TestJobDetails_CredentialsMetadata(t *testing.T) {
	raw := `{"id":"42","credentials-metadata":[{"type":"git_source","host":"github.com"}]}`

	t.Run("nil keeps the server value", func(t *testing.T) {
		details := decodeDetails(t, raw)
		details.CredentialsMetadata = nil

		encoded, err := json.Marshal(details)
		require.NoError(t, err)
		assert.JSONEq(t, raw, string(encoded))
	})

	t.Run("empty replaces the server value", func(t *testing.T) {
		details := decodeDetails(t, raw)
		details.CredentialsMetadata = []credential.Metadata{}

		encoded, err := json.Marshal(details)
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"42","credentials-metadata":[]}`, string(encoded))
	})
}
