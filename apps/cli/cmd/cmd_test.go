package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/caserun/packages/core/runner"
)

const userYAML = `case_common:
  allureEpic: shop
  allureFeature: user
  allureStory: profile

login:
  url: /api/login
  method: POST
  requestType: json
  is_run: true
  data:
    username: alice
  assert:
    status_code: 200
  current_request_set_cache:
    - type: response
      jsonpath: $.data.token
      name: login_token

get_profile:
  url: /api/profile
  method: GET
  headers:
    Authorization: Bearer $cache{auth_token}
  requestType: params
  is_run: true
  dependence_case: true
  dependence_case_data:
    - case_id: login
      dependent_data:
        - dependent_type: response
          jsonpath: $.data.token
          set_cache: auth_token
  assert:
    name:
      jsonpath: $.data.name
      type: eq
      value: alice
`

const cycleYAML = `a:
  url: /a
  method: GET
  is_run: true
  dependence_case: true
  dependence_case_data:
    - case_id: b
b:
  url: /b
  method: GET
  is_run: true
  dependence_case: true
  dependence_case_data:
    - case_id: a
`

func apiServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code": 0, "data": {"token": "abc"}}`))
	})
	mux.HandleFunc("GET /api/profile", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer abc" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code": 0, "data": {"name": "alice"}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func dataDir(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for path, content := range files {
		full := filepath.Join(root, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	chdir(t, t.TempDir())
	return root
}

func execute(args ...string) (string, error) {
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRunCommand_JSON(t *testing.T) {
	srv := apiServer(t)
	root := dataDir(t, map[string]string{"user/user.yaml": userYAML})
	summary := filepath.Join(t.TempDir(), "summary.json")

	out, err := execute("run", "user", "--data-dir", root, "--host", srv.URL, "-o", "json", "--summary-file", summary, "--log-level", "error")
	require.NoError(t, err)

	var doc struct {
		Summary struct {
			Total  int `json:"total"`
			Passed int `json:"passed"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, 2, doc.Summary.Total)
	assert.Equal(t, 2, doc.Summary.Passed)

	data, err := os.ReadFile(summary)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"passed": 2`)
	assert.Contains(t, string(data), `"run_id"`)
}

func TestValidateCommand_Cycle(t *testing.T) {
	root := dataDir(t, map[string]string{
		"user/user.yaml": userYAML,
		"loop/loop.yaml": cycleYAML,
	})

	out, err := execute("validate", "--data-dir", root)
	require.Error(t, err)
	assert.Equal(t, ExitDataError, exitCode(err))
	assert.Contains(t, out, "Valid: user (2 cases)")
}

func TestResultCode(t *testing.T) {
	passed := &runner.CaseResult{Status: runner.StatusPassed}
	failed := &runner.CaseResult{Status: runner.StatusFailed}
	conn := &runner.CaseResult{Status: runner.StatusError, ErrorKind: "connection"}
	cycle := &runner.CaseResult{Status: runner.StatusError, ErrorKind: "circular_dependency"}

	assert.Equal(t, ExitSuccess, resultCode([]*runner.ModuleResult{{Results: []*runner.CaseResult{passed}}}))
	assert.Equal(t, ExitTestFailure, resultCode([]*runner.ModuleResult{{Results: []*runner.CaseResult{passed, failed}}}))
	assert.Equal(t, ExitTestFailure, resultCode([]*runner.ModuleResult{{Results: []*runner.CaseResult{conn}}}))
	assert.Equal(t, ExitDataError, resultCode([]*runner.ModuleResult{{Results: []*runner.CaseResult{failed, cycle}}}))
	assert.Equal(t, ExitDataError, resultCode([]*runner.ModuleResult{{LoadErrors: []string{"bad"}, Results: []*runner.CaseResult{passed}}}))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, exitCode(nil))
	assert.Equal(t, ExitTestFailure, exitCode(errors.New("boom")))
	assert.Equal(t, ExitConfigError, exitCode(withCode(ExitConfigError, errors.New("bad config"))))
	assert.Equal(t, ExitTestFailure, exitCode(withCode(ExitTestFailure, nil)))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"smoke", "regression"}, splitList(" smoke, ,regression "))
	assert.Nil(t, splitList(""))
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
