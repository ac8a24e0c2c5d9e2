package cli

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/RevCBH/jobrunner/internal/config"
	"github.com/RevCBH/jobrunner/internal/container"
	"github.com/RevCBH/jobrunner/internal/container/containertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T, rt *containertest.Runtime, args ...string) (*App, *bytes.Buffer) {
	t.Helper()
	t.Chdir(t.TempDir())

	app := New()
	app.newRuntime = func(*config.Config) (container.Runtime, error) { return rt, nil }
	out := new(bytes.Buffer)
	app.rootCmd.SetOut(out)
	app.rootCmd.SetErr(io.Discard)
	app.SetArgs(args)
	return app, out
}

func TestPullCmd_NamedManagers(t *testing.T) {
	rt := containertest.New()
	app, out := newTestApp(t, rt, "pull", "npm_and_yarn", "bundler")

	require.NoError(t, app.Execute())

	want := []string{
		config.DefaultProxyImage,
		"ghcr.io/dependabot/dependabot-updater-npm:latest",
		"ghcr.io/dependabot/dependabot-updater-bundler:latest",
	}
	assert.Equal(t, strings.Join(want, "\n")+"\n", out.String())
	for _, ref := range want {
		assert.True(t, rt.HasImage(ref), ref)
	}
}

func TestPullCmd_SkipsPresentImagesUnlessForced(t *testing.T) {
	rt := containertest.New()
	rt.AddImage(config.DefaultProxyImage)
	rt.AddImage("ghcr.io/dependabot/dependabot-updater-gomod:latest")

	app, _ := newTestApp(t, rt, "pull", "go_modules")
	require.NoError(t, app.Execute())
	assert.Zero(t, rt.CallCount("pull "+config.DefaultProxyImage))

	app, _ = newTestApp(t, rt, "pull", "--force", "go_modules")
	require.NoError(t, app.Execute())
	assert.Equal(t, 1, rt.CallCount("pull "+config.DefaultProxyImage))
}

func TestPullCmd_UnknownManager(t *testing.T) {
	app, _ := newTestApp(t, containertest.New(), "pull", "cobol")

	err := app.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"cobol"`)
}

func TestPullCmd_UsesConfigFile(t *testing.T) {
	rt := containertest.New()
	app, out := newTestApp(t, rt, "pull", "npm_and_yarn")

	cfgPath := filepath.Join(t.TempDir(), "jobrunner.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
images:
  proxy: ghcr.io/example/proxy:v2
  updaters:
    npm_and_yarn: ghcr.io/example/npm:v2
`), 0o644))
	app.SetArgs([]string{"--config", cfgPath, "pull", "npm_and_yarn"})

	require.NoError(t, app.Execute())
	assert.Equal(t, "ghcr.io/example/proxy:v2\nghcr.io/example/npm:v2\n", out.String())
}

func TestPullCmd_RuntimeUnavailable(t *testing.T) {
	app, _ := newTestApp(t, nil, "pull")
	app.newRuntime = func(*config.Config) (container.Runtime, error) { return nil, container.ErrNoRuntime }

	err := app.Execute()
	require.ErrorIs(t, err, container.ErrNoRuntime)
}

func setJobEnv(t *testing.T, apiURL, workDir string) {
	t.Helper()
	t.Setenv(config.EnvJobID, strconv.Itoa(testJobID))
	t.Setenv(config.EnvJobToken, "job-token")
	t.Setenv(config.EnvCredentialsToken, "cred-token")
	t.Setenv(config.EnvAPIURL, apiURL)
	t.Setenv(config.EnvAPIDockerURL, "")
	t.Setenv(config.EnvWorkingDirectory, workDir)
	t.Setenv(config.EnvUpdaterImage, "")
}

func TestRunCmd_EndToEnd(t *testing.T) {
	f := newJobFixture(t)
	server := httptest.NewServer(f.api)
	t.Cleanup(server.Close)
	setJobEnv(t, server.URL, f.workDir)

	app, _ := newTestApp(t, f.rt, "run")
	require.NoError(t, app.Execute())

	proxy, ok := f.rt.Container("dependabot-job-1001-proxy")
	require.True(t, ok)
	assert.Equal(t, server.URL, proxy.Config.Env["DEPENDABOT_API_URL"])
	assert.True(t, proxy.Removed)
	_, ok = f.rt.Container("dependabot-job-1001-file-updater")
	assert.True(t, ok)
}

func TestRunCmd_FlagsOverrideEnvironment(t *testing.T) {
	f := newJobFixture(t)
	server := httptest.NewServer(f.api)
	t.Cleanup(server.Close)
	setJobEnv(t, "http://unused.invalid", f.workDir)

	app, _ := newTestApp(t, f.rt, "run", "--api-url", server.URL, "--updater-image", "ghcr.io/dependabot/dependabot-updater-npm:v9")
	require.NoError(t, app.Execute())

	fetcher, ok := f.rt.Container("dependabot-job-1001-file-fetcher")
	require.True(t, ok)
	assert.Equal(t, "ghcr.io/dependabot/dependabot-updater-npm:v9", fetcher.Config.Image)
	assert.Equal(t, server.URL, fetcher.Config.Env["DEPENDABOT_API_URL"])
}

func TestRunCmd_MissingTokenFails(t *testing.T) {
	f := newJobFixture(t)
	setJobEnv(t, "http://unused.invalid", f.workDir)
	t.Setenv(config.EnvJobToken, "")

	app, _ := newTestApp(t, f.rt, "run")
	err := app.Execute()

	var failure *JobFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "Github Dependabot job token is not set", failure.Message)
	assert.Empty(t, f.rt.Calls())
}

func TestExecute_LogsFailureRedacted(t *testing.T) {
	f := newJobFixture(t)
	f.api.detailsStatus = http.StatusBadRequest
	f.api.errorBody = `{"error":"bad token job-token"}`
	server := httptest.NewServer(f.api)
	t.Cleanup(server.Close)
	setJobEnv(t, server.URL, f.workDir)

	app, _ := newTestApp(t, f.rt, "run")
	stderr := &syncBuffer{}
	app.rootCmd.SetErr(stderr)

	err := app.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job-token", "the returned error is not masked")

	assert.Contains(t, stderr.String(), "Dependabot encountered an unexpected problem")
	assert.Contains(t, stderr.String(), "bad token ***")
	assert.NotContains(t, stderr.String(), "job-token")
}

func TestExecute_LogsFailureBeforeSetup(t *testing.T) {
	app, _ := newTestApp(t, containertest.New(), "run", "--no-such-flag")
	stderr := &syncBuffer{}
	app.rootCmd.SetErr(stderr)

	require.Error(t, app.Execute())
	assert.Contains(t, stderr.String(), "no-such-flag")
}

func TestRunOptions_Apply(t *testing.T) {
	params := config.JobParameters{JobID: 1, APIURL: "http://a", APIDockerURL: "http://docker-a", WorkingDirectory: "/w"}

	got := RunOptions{JobID: 2, APIURL: "http://b", WorkDir: "/x"}.apply(params)
	assert.Equal(t, int64(2), got.JobID)
	assert.Equal(t, "http://b", got.APIURL)
	assert.Equal(t, "http://docker-a", got.APIDockerURL, "explicit docker url is kept")
	assert.Equal(t, "/x", got.WorkingDirectory)

	params.APIDockerURL = params.APIURL
	got = RunOptions{APIURL: "http://b"}.apply(params)
	assert.Equal(t, "http://b", got.APIDockerURL, "derived docker url follows the api url")
}
