package credential

import (
	"encoding/base64"
	"io"

	"github.com/sirupsen/logrus"
)

type recordingMasker struct {
	secrets []string
}

func (m *recordingMasker) AddSecret(s string) {
	m.secrets = append(m.secrets, s)
}

func base64Encode(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func discard() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
