package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(Options{Level: "loud", Output: &bytes.Buffer{}}, nil)
	require.Error(t, err)
}

func TestNew_UnknownFormat(t *testing.T) {
	_, err := New(Options{Format: "xml", Output: &bytes.Buffer{}}, nil)
	require.Error(t, err)
}

func TestNew_AutoFormatUsesJSONWhenNotTerminal(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := New(Options{Level: "debug", Output: buf}, nil)
	require.NoError(t, err)

	logger.WithField("job", 1).Debug("hello")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "hello", decoded["msg"])
	assert.Equal(t, float64(1), decoded["job"])
}

func TestRedactor_MasksMessageAndFields(t *testing.T) {
	buf := &bytes.Buffer{}
	redactor := NewRedactor()
	logger, err := New(Options{Format: FormatJSON, Output: buf}, redactor)
	require.NoError(t, err)

	redactor.AddSecret("s3cr3t")
	logger.WithField("auth", "Bearer s3cr3t").
		WithError(errors.New("bad token s3cr3t")).
		Info("token is s3cr3t")

	out := buf.String()
	assert.NotContains(t, out, "s3cr3t")
	assert.Contains(t, out, "token is ***")
	assert.Contains(t, out, "Bearer ***")
	assert.Contains(t, out, "bad token ***")
}

func TestRedactor_LongestSecretFirst(t *testing.T) {
	redactor := NewRedactor()
	redactor.AddSecret("abc")
	redactor.AddSecret("abcdef")

	assert.Equal(t, "x *** y", redactor.Redact("x abcdef y"))
}

func TestRedactor_IgnoresEmptyAndDuplicates(t *testing.T) {
	redactor := NewRedactor()
	redactor.AddSecret("")
	redactor.AddSecret("tok")
	redactor.AddSecret("tok")

	assert.Equal(t, 1, redactor.Len())
	assert.Equal(t, "unchanged", redactor.Redact("unchanged"))
}

func TestSay(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := New(Options{Format: FormatJSON, Output: buf}, nil)
	require.NoError(t, err)

	Say(logger, "starting update")

	assert.Contains(t, buf.String(), "starting update")
}
