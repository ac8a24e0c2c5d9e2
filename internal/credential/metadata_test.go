package credential

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func boolPtr(b bool) *bool { return &b }

func TestMetadata_Projection(t *testing.T) {
	tests := []struct {
		name string
		in   Credential
		want Metadata
		ok   bool
	}{
		{
			name: "git source keeps host only",
			in:   Credential{Type: KindGitSource, Host: "github.com", Username: "x", Password: "pw"},
			want: Metadata{Type: KindGitSource, Host: "github.com"},
			ok:   true,
		},
		{
			name: "npm registry derived from url",
			in:   Credential{Type: KindNpmRegistry, URL: "https://npm.example.com/scope/", Token: "tok"},
			want: Metadata{Type: KindNpmRegistry, URL: "https://npm.example.com/scope/", Registry: "npm.example.com/scope"},
			ok:   true,
		},
		{
			name: "docker registry explicit",
			in:   Credential{Type: KindDockerRegistry, Registry: "ghcr.io", Username: "u", Password: "p", ReplacesBase: boolPtr(true)},
			want: Metadata{Type: KindDockerRegistry, Registry: "ghcr.io", ReplacesBase: boolPtr(true)},
			ok:   true,
		},
		{
			name: "python index from url",
			in:   Credential{Type: KindPythonIndex, URL: "https://pypi.example.com/simple"},
			want: Metadata{Type: KindPythonIndex, URL: "https://pypi.example.com/simple", IndexURL: "https://pypi.example.com/simple"},
			ok:   true,
		},
		{
			name: "hex repository",
			in:   Credential{Type: KindHexRepository, Repo: "private", URL: "https://hex.example.com", PublicKeyFingerprint: "fp", Extra: nil},
			want: Metadata{Type: KindHexRepository, Repo: "private", URL: "https://hex.example.com", PublicKeyFingerprint: "fp"},
			ok:   true,
		},
		{
			name: "jit access dropped",
			in:   Credential{Type: KindJitAccess, Token: "tok"},
			ok:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.in.Metadata()
			assert.Equal(t, tt.ok, ok)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("metadata mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMetadataList_DedupsAndDropsJit(t *testing.T) {
	creds := []Credential{
		{Type: KindGitSource, Host: "github.com", Password: "a"},
		{Type: KindJitAccess, Token: "jit"},
		{Type: KindGitSource, Host: "github.com", Password: "b"},
		{Type: KindDockerRegistry, Registry: "ghcr.io", ReplacesBase: boolPtr(true)},
		{Type: KindDockerRegistry, Registry: "ghcr.io", ReplacesBase: boolPtr(true)},
		{Type: KindDockerRegistry, Registry: "ghcr.io", ReplacesBase: boolPtr(false)},
	}

	got := MetadataList(creds)

	want := []Metadata{
		{Type: KindGitSource, Host: "github.com"},
		{Type: KindDockerRegistry, Registry: "ghcr.io", ReplacesBase: boolPtr(true)},
		{Type: KindDockerRegistry, Registry: "ghcr.io", ReplacesBase: boolPtr(false)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("metadata list mismatch (-want +got):\n%s", diff)
	}
	for i := range got {
		for j := range got {
			if i != j {
				assert.False(t, got[i].Equal(got[j]), "entries %d and %d are equal", i, j)
			}
		}
	}
}

func TestMetadataList_NeverCarriesSecrets(t *testing.T) {
	creds := []Credential{
		{Type: KindMavenRepository, URL: "https://maven.example.com", Username: "u", Password: "pw"},
		{Type: KindNpmRegistry, Registry: "npm.example.com", Token: "tok"},
	}
	for _, m := range MetadataList(creds) {
		assert.NotContains(t, []string{m.Host, m.URL, m.Registry, m.IndexURL, m.Organization, m.Repo}, "pw")
		assert.NotContains(t, []string{m.Host, m.URL, m.Registry, m.IndexURL, m.Organization, m.Repo}, "tok")
	}
}
