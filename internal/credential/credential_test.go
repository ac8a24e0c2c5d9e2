package credential

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredential_UnmarshalKeepsUnknownFields(t *testing.T) {
	var c Credential
	err := json.Unmarshal([]byte(`{
		"type": "hex_organization",
		"organization": "acme",
		"key": "hex-key",
		"host": null,
		"replaces-base": true
	}`), &c)
	require.NoError(t, err)

	assert.Equal(t, KindHexOrganization, c.Type)
	assert.Equal(t, "acme", c.Organization)
	assert.Empty(t, c.Host)
	require.NotNil(t, c.ReplacesBase)
	assert.True(t, *c.ReplacesBase)
	assert.JSONEq(t, `"hex-key"`, string(c.Extra["key"]))
}

func TestCredential_MarshalRoundTripsExtra(t *testing.T) {
	in := `{"type":"git_source","host":"github.com","username":"x-access-token","password":"pw","auth-key":"k"}`
	var c Credential
	require.NoError(t, json.Unmarshal([]byte(in), &c))

	out, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
}

func TestCredential_Secrets(t *testing.T) {
	var c Credential
	require.NoError(t, json.Unmarshal([]byte(`{
		"type": "hex_organization",
		"organization": "acme",
		"username": "bob",
		"password": "pw",
		"token": "tok",
		"key": "hex-key",
		"public-key-fingerprint": "fp"
	}`), &c))

	assert.Equal(t, []string{"pw", "tok", "hex-key"}, c.Secrets())
}

func TestCredential_StringOmitsSecrets(t *testing.T) {
	c := Credential{Type: KindNpmRegistry, Registry: "npm.example.com", Token: "tok"}
	assert.Equal(t, "npm_registry(npm.example.com)", c.String())
	assert.NotContains(t, c.String(), "tok")
}

func TestFromEnv(t *testing.T) {
	masker := &recordingMasker{}
	payload := `[{"type":"npm_registry","registry":"npm.example.com","token":"abc"}]`
	encoded := base64Encode(payload)

	creds := FromEnv(encoded, masker, discard())
	require.Len(t, creds, 1)
	assert.Equal(t, "npm.example.com", creds[0].Registry)
	assert.Equal(t, []string{"abc"}, masker.secrets)
}

func TestFromEnv_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"empty", ""},
		{"not base64", "%%%"},
		{"not json", base64Encode("nope")},
		{"not a list", base64Encode(`{"type":"git_source"}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			masker := &recordingMasker{}
			assert.Empty(t, FromEnv(tt.value, masker, discard()))
			assert.Empty(t, masker.secrets)
		})
	}
}
