package logging

import (
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Mask replaces a registered secret in log output.
const Mask = "***"

// SecretMasker receives secret values as soon as they are observed so that
// they can never be logged verbatim afterwards.
type SecretMasker interface {
	AddSecret(secret string)
}

// Redactor is a logrus hook that replaces every registered secret in the
// message and string fields of each entry.
type Redactor struct {
	mu      sync.RWMutex
	secrets []string
}

// NewRedactor returns an empty Redactor.
func NewRedactor() *Redactor {
	return &Redactor{}
}

// AddSecret registers a value for masking. Empty and duplicate values are ignored.
func (r *Redactor) AddSecret(secret string) {
	if secret == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.secrets {
		if existing == secret {
			return
		}
	}
	r.secrets = append(r.secrets, secret)
	// Longest first so a secret containing another is masked whole.
	sort.Slice(r.secrets, func(i, j int) bool {
		return len(r.secrets[i]) > len(r.secrets[j])
	})
}

// Redact returns s with every registered secret masked.
func (r *Redactor) Redact(s string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, secret := range r.secrets {
		s = strings.ReplaceAll(s, secret, Mask)
	}
	return s
}

// Len reports how many distinct secrets are registered.
func (r *Redactor) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.secrets)
}

// Levels implements logrus.Hook.
func (r *Redactor) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook.
func (r *Redactor) Fire(entry *logrus.Entry) error {
	entry.Message = r.Redact(entry.Message)
	for key, value := range entry.Data {
		switch v := value.(type) {
		case string:
			entry.Data[key] = r.Redact(v)
		case error:
			entry.Data[key] = r.Redact(v.Error())
		}
	}
	return nil
}

var _ logrus.Hook = (*Redactor)(nil)
var _ SecretMasker = (*Redactor)(nil)
