package credential

import (
	"encoding/base64"
	"encoding/json"

	"github.com/RevCBH/jobrunner/internal/logging"
	"github.com/sirupsen/logrus"
)

// RegistriesProxyEnv carries extra registry credentials as base64 encoded JSON.
const RegistriesProxyEnv = "GITHUB_REGISTRIES_PROXY"

// FromEnv decodes the value of RegistriesProxyEnv. Every secret is handed to
// masker before the credentials are returned. Malformed input yields no
// credentials; the parse error is not logged because it may quote secrets.
func FromEnv(value string, masker logging.SecretMasker, log logrus.FieldLogger) []Credential {
	if value == "" {
		return nil
	}

	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		log.Warnf("Failed to parse %s environment variable", RegistriesProxyEnv)
		return nil
	}

	var creds []Credential
	if err := json.Unmarshal(decoded, &creds); err != nil {
		log.Warnf("Failed to parse %s environment variable", RegistriesProxyEnv)
		return nil
	}

	MaskAll(creds, masker)
	return creds
}

// MaskAll registers every secret of creds with masker.
func MaskAll(creds []Credential, masker logging.SecretMasker) {
	if masker == nil {
		return
	}
	for _, c := range creds {
		for _, secret := range c.Secrets() {
			masker.AddSecret(secret)
		}
	}
}
