package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/taskdeck/taskdeck/internal/access"
	"github.com/taskdeck/taskdeck/internal/attachments"
	"github.com/taskdeck/taskdeck/internal/gateway"
	"github.com/taskdeck/taskdeck/internal/notify"
	"github.com/taskdeck/taskdeck/internal/session"
	"github.com/taskdeck/taskdeck/internal/syncstore"
)

type fakeTaskGateway struct {
	rows      []Task
	insertErr error
	updateErr error
	nextID    int
	patches   []syncstore.Patch
}

func (g *fakeTaskGateway) Select(ctx context.Context, filter syncstore.Filter) ([]Task, error) {
	out := make([]Task, 0, len(g.rows))
	for _, row := range g.rows {
		if pid, ok := filter["project_id"]; ok && row.ProjectID != pid {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func (g *fakeTaskGateway) Insert(ctx context.Context, record Task) (Task, error) {
	if g.insertErr != nil {
		return Task{}, g.insertErr
	}
	g.nextID++
	record.ID = fmt.Sprintf("task-%d", g.nextID)
	return record, nil
}

func (g *fakeTaskGateway) Update(ctx context.Context, id string, patch syncstore.Patch) (Task, error) {
	if g.updateErr != nil {
		return Task{}, g.updateErr
	}
	g.patches = append(g.patches, patch)
	for _, row := range g.rows {
		if row.ID == id {
			return merge(row, patch, time.Now()), nil
		}
	}
	return merge(Task{ID: id}, patch, time.Now()), nil
}

func (g *fakeTaskGateway) Delete(ctx context.Context, id string) error { return nil }

func (g *fakeTaskGateway) Subscribe(onEvent func(syncstore.EventType, Task)) (func(), error) {
	return func() {}, nil
}

type staticProvider struct {
	ident *gateway.Identity
}

func (p *staticProvider) Identity() (*gateway.Identity, error) { return p.ident, nil }

func (p *staticProvider) OnIdentityChange(fn func(*gateway.Identity)) func() {
	return func() {}
}

type staticRoleStore struct {
	role access.Role
}

func (s *staticRoleStore) FindRole(ctx context.Context, identityID string) (session.RoleRecord, bool, error) {
	return session.RoleRecord{ID: "rec-1", IdentityID: identityID, Role: s.role}, true, nil
}

func (s *staticRoleStore) CountRoles(ctx context.Context) (int, error) { return 1, nil }

func (s *staticRoleStore) CreateRole(ctx context.Context, rec session.RoleRecord) (session.RoleRecord, error) {
	return rec, nil
}

type fakeUploader struct {
	paths []string
}

func (u *fakeUploader) Upload(ctx context.Context, bucket, path, contentType string, body io.Reader) (string, error) {
	u.paths = append(u.paths, path)
	return "https://cdn.example.com/" + path, nil
}

func (u *fakeUploader) SignedURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
	return "https://cdn.example.com/" + path + "?signed=1", nil
}

type fixture struct {
	gw       *fakeTaskGateway
	store    *syncstore.Store[Task]
	feed     *notify.Feed
	uploader *fakeUploader
	router   chi.Router
}

func newFixture(t *testing.T, identityID string, role access.Role) *fixture {
	t.Helper()
	gw := &fakeTaskGateway{}
	store, err := syncstore.New[Task](gw, StoreConfig(func() string { return identityID }))
	require.NoError(t, err)
	t.Cleanup(store.Close)

	provider := &staticProvider{}
	if identityID != "" {
		provider.ident = &gateway.Identity{ID: identityID}
	}
	resolver := session.NewResolver(provider, &staticRoleStore{role: role}, time.Minute, nil)
	t.Cleanup(resolver.Close)

	uploader := &fakeUploader{}
	feed := notify.NewFeed()
	router := chi.NewRouter()
	NewHandler(nil, store, resolver, feed, attachments.NewService(uploader, "attachments")).MountRoutes(router)
	return &fixture{gw: gw, store: store, feed: feed, uploader: uploader, router: router}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestCreateTaskAsAdmin(t *testing.T) {
	f := newFixture(t, "admin-1", access.RoleAdmin)

	rec := f.do(t, http.MethodPost, "/tasks/", map[string]string{
		"project_id": "p1",
		"title":      "Write spec",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "task-1", created.ID)
	require.Equal(t, StatusTodo, created.Status)
	require.Equal(t, PriorityMedium, created.Priority)
	require.Equal(t, "admin-1", created.CreatedBy)
}

func TestCreateTaskAsMemberDenied(t *testing.T) {
	f := newFixture(t, "member-1", access.RoleMember)

	rec := f.do(t, http.MethodPost, "/tasks/", map[string]string{
		"project_id": "p1",
		"title":      "Nope",
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "Only admins can create tasks")
}

func TestMemberEditsOwnAssignedTask(t *testing.T) {
	f := newFixture(t, "member-1", access.RoleMember)
	f.gw.rows = []Task{{ID: "t1", ProjectID: "p1", Title: "Mine", AssigneeID: "member-1", Status: StatusTodo}}
	require.NoError(t, f.store.FetchAll(context.Background(), nil))

	rec := f.do(t, http.MethodPatch, "/tasks/t1", map[string]string{"status": StatusCompleted})
	require.Equal(t, http.StatusOK, rec.Code)

	cur, ok := f.store.Get("t1")
	require.True(t, ok)
	require.Equal(t, StatusCompleted, cur.Status)
}

func TestMemberEditsUnownedTaskDenied(t *testing.T) {
	f := newFixture(t, "member-1", access.RoleMember)
	f.gw.rows = []Task{{ID: "t1", ProjectID: "p1", AssigneeID: "someone-else"}}
	require.NoError(t, f.store.FetchAll(context.Background(), nil))

	rec := f.do(t, http.MethodPatch, "/tasks/t1", map[string]string{"status": StatusCompleted})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "You can only edit tasks assigned to you")
}

func TestAssignTask(t *testing.T) {
	admin := newFixture(t, "admin-1", access.RoleAdmin)
	admin.gw.rows = []Task{{ID: "t1", ProjectID: "p1", Title: "Handoff"}}
	require.NoError(t, admin.store.FetchAll(context.Background(), nil))

	rec := admin.do(t, http.MethodPost, "/tasks/t1/assign", map[string]string{"assignee_id": "member-2"})
	require.Equal(t, http.StatusOK, rec.Code)
	cur, ok := admin.store.Get("t1")
	require.True(t, ok)
	require.Equal(t, "member-2", cur.AssigneeID)

	member := newFixture(t, "member-1", access.RoleMember)
	member.gw.rows = admin.gw.rows
	require.NoError(t, member.store.FetchAll(context.Background(), nil))
	rec = member.do(t, http.MethodPost, "/tasks/t1/assign", map[string]string{"assignee_id": "member-1"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "Only admins can assign tasks")
}

func TestListFiltersByProject(t *testing.T) {
	f := newFixture(t, "member-1", access.RoleMember)
	f.gw.rows = []Task{
		{ID: "t1", ProjectID: "p1"},
		{ID: "t2", ProjectID: "p2"},
	}

	rec := f.do(t, http.MethodGet, "/tasks/?project_id=p1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	require.Equal(t, "t1", resp.Items[0].ID)
}

func multipartPDF(t *testing.T, filename string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func TestAttachmentUpload(t *testing.T) {
	f := newFixture(t, "admin-1", access.RoleAdmin)
	f.gw.rows = []Task{{ID: "t1", ProjectID: "p1", Title: "Docs"}}
	require.NoError(t, f.store.FetchAll(context.Background(), nil))

	body, contentType := multipartPDF(t, "report.pdf", []byte("%PDF-1.7\ncontent"))
	req := httptest.NewRequest(http.MethodPost, "/tasks/t1/attachment", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	cur, ok := f.store.Get("t1")
	require.True(t, ok)
	require.Contains(t, cur.AttachmentURL, "admin-1/")
	require.Len(t, f.uploader.paths, 1)
}

func TestAttachmentRejectsNonPDF(t *testing.T) {
	f := newFixture(t, "admin-1", access.RoleAdmin)
	f.gw.rows = []Task{{ID: "t1", ProjectID: "p1"}}
	require.NoError(t, f.store.FetchAll(context.Background(), nil))

	body, contentType := multipartPDF(t, "notes.txt", []byte("just text"))
	req := httptest.NewRequest(http.MethodPost, "/tasks/t1/attachment", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, f.uploader.paths)
	cur, _ := f.store.Get("t1")
	require.Empty(t, cur.AttachmentURL)
}

func TestTaskNotFound(t *testing.T) {
	f := newFixture(t, "admin-1", access.RoleAdmin)

	rec := f.do(t, http.MethodPatch, "/tasks/ghost", map[string]string{"title": "X"})
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(t, http.MethodDelete, "/tasks/ghost", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
