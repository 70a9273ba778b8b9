package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"missiondir/internal/authz"
	"missiondir/internal/db"
	"missiondir/internal/domain"
	"missiondir/internal/migrate"
	"missiondir/internal/service"
	"missiondir/internal/store"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Store  store.Store
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	st, err := store.New(conn, "", "")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := st.Ensure(context.Background()); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	handler, err := New(Config{
		Service: service.New(conn, st),
		Store:   st,
		Auth:    AuthConfig{JWTSecret: testSecret},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Store:  st,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(testSrv.Close)
	return testSrv
}

func mintToken(t *testing.T, scope authz.Scope) string {
	t.Helper()
	token, err := SignToken(testSecret, "tester", scope, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope %s: %v", string(data), err)
	}
	return envelope.Error.Code
}

func createMission(t *testing.T, srv *testServer, token, name, description string) domain.Mission {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/admin/v1/missions", map[string]any{
		"name":        name,
		"description": description,
	}, bearer(token))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create mission status %d: %s", res.StatusCode, string(data))
	}
	var created domain.Mission
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal mission: %v", err)
	}
	return created
}

func TestAdminCreateAndGet(t *testing.T) {
	srv := newTestServer(t)
	admin := mintToken(t, authz.Admin)

	created := createMission(t, srv, admin, "apollo", "land on the moon")
	if created.ID == "" || created.Name != "apollo" {
		t.Fatalf("unexpected create output: %+v", created)
	}
	if created.Description != "" {
		t.Fatalf("create output must only carry id and name, got %+v", created)
	}

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/admin/v1/missions/"+created.ID, nil, bearer(admin))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get status %d: %s", res.StatusCode, string(data))
	}
	var got domain.Mission
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID != created.ID || got.Name != "apollo" || got.Description != "land on the moon" {
		t.Fatalf("unexpected mission: %+v", got)
	}
}

func TestReadScopeIsReadOnly(t *testing.T) {
	srv := newTestServer(t)
	admin := mintToken(t, authz.Admin)
	read := mintToken(t, authz.ReadOnly)

	created := createMission(t, srv, admin, "viking", "mars landers")

	// Read scope can fetch on either surface.
	for _, base := range []string{"/personnel/v1", "/admin/v1"} {
		res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+base+"/missions/"+created.ID, nil, bearer(read))
		if res.StatusCode != http.StatusOK {
			t.Fatalf("get via %s status %d: %s", base, res.StatusCode, string(data))
		}
	}

	// Read scope may not create, regardless of surface.
	for _, base := range []string{"/personnel/v1", "/admin/v1"} {
		res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+base+"/missions", map[string]any{
			"name":        "forbidden",
			"description": "should not exist",
		}, bearer(read))
		if res.StatusCode != http.StatusForbidden {
			t.Fatalf("create via %s status %d: %s", base, res.StatusCode, string(data))
		}
		if code := errorCode(t, data); code != "forbidden" {
			t.Fatalf("expected forbidden code, got %q", code)
		}
	}
}

func TestGetMissionNotFound(t *testing.T) {
	srv := newTestServer(t)
	read := mintToken(t, authz.ReadOnly)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/personnel/v1/missions/01hzzzzzzzzzzzzzzzzzzzzzzz", nil, bearer(read))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "not_found" {
		t.Fatalf("expected not_found code, got %q", code)
	}
}

func TestCreateMissionValidation(t *testing.T) {
	srv := newTestServer(t)
	admin := mintToken(t, authz.Admin)
	cases := []map[string]any{
		{"name": "", "description": "x"},
		{"name": "x", "description": ""},
		{"name": "", "description": ""},
	}
	for _, body := range cases {
		res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/admin/v1/missions", body, bearer(admin))
		if res.StatusCode != http.StatusBadRequest {
			t.Fatalf("body %v: expected 400, got %d: %s", body, res.StatusCode, string(data))
		}
		if code := errorCode(t, data); code != "bad_request" {
			t.Fatalf("body %v: expected bad_request code, got %q", body, code)
		}
	}
}

func TestUnauthenticated(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/personnel/v1/missions/some-id", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/personnel/v1/missions/some-id", nil, bearer("not-a-token"))
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d: %s", res.StatusCode, string(data))
	}
}

func TestTokenWithUnknownScopeRejected(t *testing.T) {
	srv := newTestServer(t)
	token, err := SignToken(testSecret, "tester", authz.Scope("write"), time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/personnel/v1/missions/some-id", nil, bearer(token))
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown scope, got %d: %s", res.StatusCode, string(data))
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv := newTestServer(t)
	admin := mintToken(t, authz.Admin)
	created := createMission(t, srv, admin, "skylab", "orbital workshop")

	secret := "sk-test-key"
	if err := srv.Store.InsertAPIKey(context.Background(), domain.APIKey{
		ID:      "key-1",
		ActorID: "automation",
		Scope:   string(authz.ReadOnly),
		KeyHash: store.HashAPIKey(secret),
	}); err != nil {
		t.Fatalf("insert api key: %v", err)
	}

	headers := map[string]string{"X-Api-Key": secret}
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/personnel/v1/missions/"+created.ID, nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("api key get status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/personnel/v1/missions", map[string]any{
		"name":        "nope",
		"description": "read key cannot create",
	}, headers)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("api key create status %d: %s", res.StatusCode, string(data))
	}
}

func TestWhoAmI(t *testing.T) {
	srv := newTestServer(t)
	read := mintToken(t, authz.ReadOnly)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/personnel/v1/me", nil, bearer(read))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var who WhoAmIResponse
	if err := json.Unmarshal(data, &who); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if who.ActorID != "tester" || who.Scope != "read" {
		t.Fatalf("unexpected principal: %+v", who)
	}
	if len(who.Operations) != 1 || who.Operations[0] != "get-mission" {
		t.Fatalf("unexpected operations: %v", who.Operations)
	}
}

func TestHealthOpen(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
}
