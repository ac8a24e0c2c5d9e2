package proxy

import (
	"github.com/RevCBH/jobrunner/internal/credential"
)

const (
	configDir  = "/"
	configFile = "config.json"
)

// Config is the document the proxy reads from /config.json.
type Config struct {
	AllCredentials []credential.Credential `json:"all_credentials"`
	CA             CertificateAuthority    `json:"ca"`
}

// NewConfig builds the proxy configuration. A nil credential list is encoded
// as an empty array.
func NewConfig(creds []credential.Credential, ca CertificateAuthority) Config {
	if creds == nil {
		creds = []credential.Credential{}
	}
	return Config{AllCredentials: creds, CA: ca}
}
