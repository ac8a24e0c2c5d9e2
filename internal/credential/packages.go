package credential

import (
	"fmt"
	"strings"
)

// PackagesExperiment enables automatic GitHub Packages authentication.
const PackagesExperiment = "automatic_github_packages_auth"

// PackagesRequest describes the job for which a GitHub Packages credential
// may be synthesized.
type PackagesRequest struct {
	PackageManager string
	// Owner is the organization or user owning the job's repository.
	Owner string
	// Actor is the user the token acts as.
	Actor string
	Token string
	// Existing is the metadata of credentials the job already has.
	Existing []Metadata
}

// GitHubPackagesCredential returns a credential for the GitHub Packages
// registry of the request's ecosystem. It returns false for unsupported
// package managers and when an equivalent credential already exists.
func GitHubPackagesCredential(req PackagesRequest) (Credential, bool) {
	switch req.PackageManager {
	case "bundler":
		const host = "rubygems.pkg.github.com"
		if req.has(KindRubygemsServer, func(m Metadata) bool { return strings.EqualFold(m.Host, host) }) {
			return Credential{}, false
		}
		return Credential{Type: KindRubygemsServer, Host: host, Token: req.Actor + ":" + req.Token}, true

	case "docker":
		const registry = "ghcr.io"
		if req.has(KindDockerRegistry, func(m Metadata) bool { return strings.EqualFold(m.Registry, registry) }) {
			return Credential{}, false
		}
		return Credential{Type: KindDockerRegistry, Registry: registry, Username: req.Actor, Password: req.Token}, true

	case "maven":
		url := "https://maven.pkg.github.com/" + req.Owner
		if req.has(KindMavenRepository, func(m Metadata) bool {
			return strings.EqualFold(strings.TrimSuffix(m.URL, "/"), url)
		}) {
			return Credential{}, false
		}
		return Credential{Type: KindMavenRepository, URL: url, Username: req.Actor, Password: req.Token}, true

	case "npm_and_yarn":
		const registry = "npm.pkg.github.com"
		if req.has(KindNpmRegistry, func(m Metadata) bool { return strings.EqualFold(m.Registry, registry) }) {
			return Credential{}, false
		}
		return Credential{Type: KindNpmRegistry, Registry: registry, Token: req.Actor + ":" + req.Token}, true

	case "nuget":
		url := fmt.Sprintf("https://nuget.pkg.github.com/%s/index.json", req.Owner)
		if req.has(KindNugetFeed, func(m Metadata) bool { return strings.EqualFold(m.URL, url) }) {
			return Credential{}, false
		}
		return Credential{Type: KindNugetFeed, URL: url, Username: req.Actor, Password: req.Token}, true
	}
	return Credential{}, false
}

func (req PackagesRequest) has(kind Kind, match func(Metadata) bool) bool {
	for _, m := range req.Existing {
		if m.Type == kind && match(m) {
			return true
		}
	}
	return false
}
