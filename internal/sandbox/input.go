package sandbox

import (
	"encoding/base64"
	"fmt"

	"github.com/RevCBH/jobrunner/internal/api"
)

// DependencyFile is a manifest or lockfile reported by the fetch phase.
type DependencyFile struct {
	Name            string `json:"name"`
	Content         string `json:"content"`
	Directory       string `json:"directory"`
	Type            string `json:"type"`
	SupportFile     bool   `json:"support_file"`
	ContentEncoding string `json:"content_encoding"`
	Deleted         bool   `json:"deleted"`
	Operation       string `json:"operation"`
}

// FetchedFiles is the fetch phase output read from output.json.
type FetchedFiles struct {
	BaseCommitSHA         string           `json:"base_commit_sha"`
	Base64DependencyFiles []DependencyFile `json:"base64_dependency_files"`
}

// FetcherInput is the payload of the fetch phase.
type FetcherInput struct {
	Job *api.JobDetails `json:"job"`
}

// UpdaterInput is the payload of the update phase.
type UpdaterInput struct {
	Job                   *api.JobDetails  `json:"job"`
	BaseCommitSHA         string           `json:"base_commit_sha"`
	Base64DependencyFiles []DependencyFile `json:"base64_dependency_files"`
	DependencyFiles       []DependencyFile `json:"dependency_files"`
}

// NewUpdaterInput builds the update payload. DependencyFiles is a decoded
// copy of the fetched files; files itself is left untouched.
func NewUpdaterInput(job *api.JobDetails, files FetchedFiles) (UpdaterInput, error) {
	decoded := make([]DependencyFile, len(files.Base64DependencyFiles))
	for i, f := range files.Base64DependencyFiles {
		content, err := base64.StdEncoding.DecodeString(f.Content)
		if err != nil {
			return UpdaterInput{}, fmt.Errorf("decode %s: %w", f.Name, err)
		}
		f.Content = string(content)
		decoded[i] = f
	}

	encoded := files.Base64DependencyFiles
	if encoded == nil {
		encoded = []DependencyFile{}
	}
	return UpdaterInput{
		Job:                   job,
		BaseCommitSHA:         files.BaseCommitSHA,
		Base64DependencyFiles: encoded,
		DependencyFiles:       decoded,
	}, nil
}
