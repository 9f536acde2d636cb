package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/marcus/taskflow/internal/models"
	"github.com/marcus/taskflow/internal/store"
	"github.com/marcus/taskflow/internal/workflow"
)

// TestHarness wraps a full Server with a real HTTP listener for integration tests.
type TestHarness struct {
	t       *testing.T
	Server  *Server
	Store   *store.Store
	Service *workflow.Service
	BaseURL string
	client  *http.Client
	httpSrv *httptest.Server
}

// newTestHarness creates a TestHarness over an in-memory SQLite store.
func newTestHarness(t *testing.T, opts ...func(*Config)) *TestHarness {
	t.Helper()

	st, err := store.Open(context.Background(), store.Options{Driver: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	cfg := DefaultConfig()
	cfg.ListenAddr = ":0"
	cfg.RateLimitRead = 100000
	cfg.RateLimitWrite = 100000
	for _, opt := range opts {
		opt(&cfg)
	}

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := workflow.New(st, workflow.WithLogger(quiet))
	srv, err := NewServer(cfg, svc, st, st)
	if err != nil {
		t.Fatalf("create server: %v", err)
	}

	httpSrv := httptest.NewServer(srv.Handler())

	h := &TestHarness{
		t:       t,
		Server:  srv,
		Store:   st,
		Service: svc,
		BaseURL: httpSrv.URL,
		client:  &http.Client{},
		httpSrv: httpSrv,
	}

	t.Cleanup(func() {
		httpSrv.Close()
		st.Close()
	})

	return h
}

// Do sends an HTTP request and returns the response.
// Caller must close resp.Body unless using assertion helpers (AssertStatus,
// AssertErrorResponse, ReadJSON) which close it automatically.
func (h *TestHarness) Do(method, path, token string, body any) *http.Response {
	h.t.Helper()

	url := h.BaseURL + path

	var req *http.Request
	var err error
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		req, err = http.NewRequest(method, url, &buf)
	} else {
		req, err = http.NewRequest(method, url, nil)
	}
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.t.Fatalf("do request %s %s: %v", method, path, err)
	}

	return resp
}

// DoJSON sends an HTTP request and decodes the JSON response into out.
// Fatals if the response status is >= 400 or if JSON decoding fails.
func (h *TestHarness) DoJSON(method, path, token string, body any, out any) *http.Response {
	h.t.Helper()

	resp := h.Do(method, path, token, body)
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		h.t.Fatalf("DoJSON %s %s: expected success, got %d: %s", method, path, resp.StatusCode, respBody)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		h.t.Fatalf("decode response: %v", err)
	}

	return resp
}

// CreateUser creates a user directly in the store and returns it with an API key.
func (h *TestHarness) CreateUser(email string, role models.SystemRole) (userID, token string) {
	h.t.Helper()
	ctx := context.Background()

	name, _, _ := strings.Cut(email, "@")
	u := &models.User{Name: name, Email: email, SystemRole: role}
	if err := h.Store.CreateUser(ctx, u); err != nil {
		h.t.Fatalf("create user: %v", err)
	}

	tok, _, err := h.Store.GenerateAPIKey(ctx, u.ID, "test", nil)
	if err != nil {
		h.t.Fatalf("generate api key: %v", err)
	}

	return u.ID, tok
}

// CreateProject creates a project via the API. Returns the response.
func (h *TestHarness) CreateProject(ownerToken string, in workflow.CreateProjectInput) ProjectResponse {
	h.t.Helper()

	var project ProjectResponse
	resp := h.DoJSON("POST", "/v1/projects", ownerToken, in, &project)

	if resp.StatusCode != http.StatusCreated {
		h.t.Fatalf("create project: expected 201, got %d", resp.StatusCode)
	}

	return project
}

// CreateIssue creates an issue via the API.
func (h *TestHarness) CreateIssue(token string, in workflow.CreateIssueInput) *models.Issue {
	h.t.Helper()

	var issue models.Issue
	resp := h.DoJSON("POST", "/v1/issues", token, in, &issue)
	if resp.StatusCode != http.StatusCreated {
		h.t.Fatalf("create issue: expected 201, got %d", resp.StatusCode)
	}
	return &issue
}

// --- Response assertion helpers ---

// AssertStatus checks the HTTP status code matches expected. Reads and closes the body.
func AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d: %s", expected, resp.StatusCode, string(body))
	}
}

// AssertErrorResponse checks the response has the expected status and error code.
func AssertErrorResponse(t *testing.T, resp *http.Response, expectedStatus int, expectedCode string) {
	t.Helper()
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != expectedStatus {
		t.Fatalf("expected status %d, got %d: %s", expectedStatus, resp.StatusCode, string(body))
	}
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Error.Code != expectedCode {
		t.Fatalf("expected error code %q, got %q: %s", expectedCode, errResp.Error.Code, errResp.Error.Message)
	}
}

// ReadJSON decodes a JSON response body into the given type.
func ReadJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode json response: %v", err)
	}
	return out
}

// ---------------------------------------------------------------------------
// State builder: fluent API for setting up test scenarios
// ---------------------------------------------------------------------------

// userEntry holds user state created during a build.
type userEntry struct {
	id    string
	token string
	admin bool
}

// projectEntry holds project state created during a build.
type projectEntry struct {
	id         string
	key        string
	ownerEmail string
}

// TestState is the result of a StateBuilder.Done() call.
type TestState struct {
	h        *TestHarness
	users    map[string]userEntry     // email -> userEntry
	projects map[string]projectEntry  // name -> projectEntry
	issues   map[string]*models.Issue // title -> issue
}

// UserToken returns the API token for the given email. Fatals if not found.
func (s *TestState) UserToken(email string) string {
	s.h.t.Helper()
	u, ok := s.users[email]
	if !ok {
		s.h.t.Fatalf("UserToken: unknown user %q", email)
	}
	return u.token
}

// UserID returns the user ID for the given email. Fatals if not found.
func (s *TestState) UserID(email string) string {
	s.h.t.Helper()
	u, ok := s.users[email]
	if !ok {
		s.h.t.Fatalf("UserID: unknown user %q", email)
	}
	return u.id
}

// AdminToken returns the API token for the given system admin. Fatals if
// the user is not found or is not an admin.
func (s *TestState) AdminToken(email string) string {
	s.h.t.Helper()
	u, ok := s.users[email]
	if !ok {
		s.h.t.Fatalf("AdminToken: unknown user %q", email)
	}
	if !u.admin {
		s.h.t.Fatalf("AdminToken: user %q is not an admin", email)
	}
	return u.token
}

// ProjectID returns the project ID for the given project name. Fatals if
// not found.
func (s *TestState) ProjectID(name string) string {
	s.h.t.Helper()
	p, ok := s.projects[name]
	if !ok {
		s.h.t.Fatalf("ProjectID: unknown project %q", name)
	}
	return p.id
}

// ProjectKey returns the derived key of the named project.
func (s *TestState) ProjectKey(name string) string {
	s.h.t.Helper()
	p, ok := s.projects[name]
	if !ok {
		s.h.t.Fatalf("ProjectKey: unknown project %q", name)
	}
	return p.key
}

// Issue returns the issue created with the given title. Fatals if not found.
func (s *TestState) Issue(title string) *models.Issue {
	s.h.t.Helper()
	i, ok := s.issues[title]
	if !ok {
		s.h.t.Fatalf("Issue: unknown issue %q", title)
	}
	return i
}

// Harness returns the underlying TestHarness.
func (s *TestState) Harness() *TestHarness {
	return s.h
}

// StateBuilder accumulates deferred setup steps executed in order by Done().
type StateBuilder struct {
	h     *TestHarness
	steps []func(*TestState)
}

// Build returns a new StateBuilder for fluent test-state setup.
func (h *TestHarness) Build() *StateBuilder {
	return &StateBuilder{h: h}
}

// WithUser appends a step that creates a regular user with an API key.
func (b *StateBuilder) WithUser(email string) *StateBuilder {
	b.steps = append(b.steps, func(s *TestState) {
		id, tok := b.h.CreateUser(email, models.SystemRoleUser)
		s.users[email] = userEntry{id: id, token: tok}
	})
	return b
}

// WithAdmin appends a step that creates a system admin with an API key.
func (b *StateBuilder) WithAdmin(email string) *StateBuilder {
	b.steps = append(b.steps, func(s *TestState) {
		id, tok := b.h.CreateUser(email, models.SystemRoleAdmin)
		s.users[email] = userEntry{id: id, token: tok, admin: true}
	})
	return b
}

// WithProject appends a step that creates a private project owned by ownerEmail.
func (b *StateBuilder) WithProject(name, ownerEmail string) *StateBuilder {
	return b.withProject(name, ownerEmail, false)
}

// WithPublicProject is WithProject for a public project.
func (b *StateBuilder) WithPublicProject(name, ownerEmail string) *StateBuilder {
	return b.withProject(name, ownerEmail, true)
}

func (b *StateBuilder) withProject(name, ownerEmail string, public bool) *StateBuilder {
	b.steps = append(b.steps, func(s *TestState) {
		u, ok := s.users[ownerEmail]
		if !ok {
			b.h.t.Fatalf("WithProject: owner %q not created yet", ownerEmail)
		}
		p := b.h.CreateProject(u.token, workflow.CreateProjectInput{Name: name, IsPublic: public})
		s.projects[name] = projectEntry{id: p.ID, key: p.Key, ownerEmail: ownerEmail}
	})
	return b
}

// WithMember appends a step that grants a user a role in a project.
// The project owner's token is used for the API call.
func (b *StateBuilder) WithMember(projectName, email string, role models.ProjectRole) *StateBuilder {
	b.steps = append(b.steps, func(s *TestState) {
		p, ok := s.projects[projectName]
		if !ok {
			b.h.t.Fatalf("WithMember: project %q not created yet", projectName)
		}
		owner, ok := s.users[p.ownerEmail]
		if !ok {
			b.h.t.Fatalf("WithMember: owner %q not found", p.ownerEmail)
		}
		u, ok := s.users[email]
		if !ok {
			b.h.t.Fatalf("WithMember: user %q not created yet", email)
		}
		resp := b.h.Do("POST", fmt.Sprintf("/v1/projects/%s/permissions/%s", p.id, u.id), owner.token,
			PermissionRequest{Role: role})
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			b.h.t.Fatalf("WithMember: expected 201, got %d", resp.StatusCode)
		}
	})
	return b
}

// WithIssue appends a step that creates an issue in the named project as
// userEmail. parentTitle names a previously created issue, or is empty.
func (b *StateBuilder) WithIssue(projectName, userEmail, title string, typ models.Type, parentTitle string) *StateBuilder {
	b.steps = append(b.steps, func(s *TestState) {
		p, ok := s.projects[projectName]
		if !ok {
			b.h.t.Fatalf("WithIssue: project %q not created yet", projectName)
		}
		u, ok := s.users[userEmail]
		if !ok {
			b.h.t.Fatalf("WithIssue: user %q not created yet", userEmail)
		}
		in := workflow.CreateIssueInput{ProjectID: p.id, Title: title, Type: typ}
		if parentTitle != "" {
			parent, ok := s.issues[parentTitle]
			if !ok {
				b.h.t.Fatalf("WithIssue: parent %q not created yet", parentTitle)
			}
			in.ParentIssueID = parent.ID
		}
		s.issues[title] = b.h.CreateIssue(u.token, in)
	})
	return b
}

// Done executes all accumulated steps in order and returns the resulting
// TestState.
func (b *StateBuilder) Done() *TestState {
	b.h.t.Helper()

	s := &TestState{
		h:        b.h,
		users:    make(map[string]userEntry),
		projects: make(map[string]projectEntry),
		issues:   make(map[string]*models.Issue),
	}
	for _, step := range b.steps {
		step(s)
	}
	return s
}
