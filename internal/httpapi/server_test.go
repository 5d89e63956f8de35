package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/crowvale/taskdeck/internal/config"
	"github.com/crowvale/taskdeck/internal/directory"
	"github.com/crowvale/taskdeck/internal/feed"
	"github.com/crowvale/taskdeck/internal/gateway"
	"github.com/crowvale/taskdeck/internal/notify"
	"github.com/crowvale/taskdeck/internal/optimistic"
	"github.com/crowvale/taskdeck/internal/service"
	"github.com/crowvale/taskdeck/internal/store"
	"github.com/crowvale/taskdeck/internal/workflow"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	gw := gateway.NewMemory()
	dir := directory.NewStatic(
		workflow.User{ID: "1", Name: "Boss", Role: workflow.RoleMaster},
		workflow.User{ID: "2", Name: "Chair", Role: workflow.RoleMaster, Designation: "chairman"},
		workflow.User{ID: "3", Name: "Dir", Role: workflow.RoleDirector},
		workflow.User{ID: "4", Name: "Emp", Role: workflow.RoleEmployee},
	)
	st := store.New()
	listeners := feed.NewManager()

	err := listeners.Subscribe("tasks", func() (feed.Teardown, error) {
		return gw.SubscribeTasks(func(tasks []workflow.Task) {
			st.ReplaceAll(tasks)
		})
	})
	if err != nil {
		t.Fatalf("feed subscribe error = %v", err)
	}

	sink := notify.NewLogSink(nil)
	svc := service.New(st, workflow.NewEngine(dir), optimistic.New(st), gw, sink, sink, nil, nil)

	cfg := config.Config{BindAddr: ":0", AllowAnyOrigin: true}
	srv := New(cfg, svc, dir, gw, listeners, nil, nil)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		listeners.UnsubscribeAll()
	})
	return ts
}

func doJSON(t *testing.T, method, url, actor string, payload any) *http.Response {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set("X-Actor-ID", actor)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, url, err)
	}
	return res
}

func decodeTask(t *testing.T, res *http.Response) workflow.Task {
	t.Helper()
	defer res.Body.Close()
	var task workflow.Task
	if err := json.NewDecoder(res.Body).Decode(&task); err != nil {
		t.Fatalf("decode task response: %v", err)
	}
	return task
}

func TestCreateTaskEndpoint(t *testing.T) {
	ts := newTestServer(t)

	res := doJSON(t, http.MethodPost, ts.URL+"/v1/tasks", "1", map[string]any{
		"title":       "quarterly report",
		"assigned_to": "3",
		"priority":    "high",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want %d", res.StatusCode, http.StatusCreated)
	}
	task := decodeTask(t, res)
	if task.ID == "" {
		t.Fatalf("missing task id in response")
	}
	if task.Status != workflow.StatusPending {
		t.Fatalf("status = %q, want pending", task.Status)
	}
}

func TestCreateTaskRequiresActor(t *testing.T) {
	ts := newTestServer(t)

	res := doJSON(t, http.MethodPost, ts.URL+"/v1/tasks", "", map[string]any{
		"title":       "no actor",
		"assigned_to": "3",
	})
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d for missing actor header", res.StatusCode, http.StatusBadRequest)
	}
}

func TestUnknownActorRejected(t *testing.T) {
	ts := newTestServer(t)

	res := doJSON(t, http.MethodPost, ts.URL+"/v1/tasks", "999", map[string]any{
		"title":       "ghost actor",
		"assigned_to": "3",
	})
	defer res.Body.Close()
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want %d for unknown actor", res.StatusCode, http.StatusForbidden)
	}
}

func TestTransitionEndpointsAndErrorMapping(t *testing.T) {
	ts := newTestServer(t)

	res := doJSON(t, http.MethodPost, ts.URL+"/v1/tasks", "1", map[string]any{
		"title":       "wire check",
		"assigned_to": "3",
	})
	task := decodeTask(t, res)

	// Unauthorized actor for assignment.
	res = doJSON(t, http.MethodPost, ts.URL+"/v1/tasks/"+task.ID+"/assign-director", "4", map[string]any{
		"director_id": "3",
	})
	res.Body.Close()
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("assign by employee status = %d, want %d", res.StatusCode, http.StatusForbidden)
	}

	// Valid assignment.
	res = doJSON(t, http.MethodPost, ts.URL+"/v1/tasks/"+task.ID+"/assign-director", "1", map[string]any{
		"director_id": "3",
	})
	assigned := decodeTask(t, res)
	if assigned.Status != workflow.StatusAssignedToDirector {
		t.Fatalf("status = %q, want assigned_to_director", assigned.Status)
	}

	// Undefined transition from the current state.
	res = doJSON(t, http.MethodPost, ts.URL+"/v1/tasks/"+task.ID+"/approve", "3", nil)
	res.Body.Close()
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("approve from assigned status = %d, want %d", res.StatusCode, http.StatusConflict)
	}

	// Unknown task id.
	res = doJSON(t, http.MethodPost, ts.URL+"/v1/tasks/nope/start", "4", nil)
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown task status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}

func TestGetAndListTasks(t *testing.T) {
	ts := newTestServer(t)

	res := doJSON(t, http.MethodPost, ts.URL+"/v1/tasks", "1", map[string]any{
		"title":       "listable",
		"assigned_to": "3",
	})
	task := decodeTask(t, res)

	res = doJSON(t, http.MethodGet, ts.URL+"/v1/tasks/"+task.ID, "", nil)
	got := decodeTask(t, res)
	if got.ID != task.ID {
		t.Fatalf("got task %q, want %q", got.ID, task.ID)
	}

	res = doJSON(t, http.MethodGet, ts.URL+"/v1/tasks", "", nil)
	defer res.Body.Close()
	var listing struct {
		Tasks []workflow.Task `json:"tasks"`
	}
	if err := json.NewDecoder(res.Body).Decode(&listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if len(listing.Tasks) != 1 {
		t.Fatalf("listing length = %d, want 1", len(listing.Tasks))
	}

	res = doJSON(t, http.MethodGet, ts.URL+"/v1/tasks/ghost", "", nil)
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("get ghost status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}

func TestUserEndpoints(t *testing.T) {
	ts := newTestServer(t)

	res := doJSON(t, http.MethodPost, ts.URL+"/v1/users", "", workflow.User{
		ID:   "7",
		Name: "New Director",
		Role: workflow.RoleDirector,
	})
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("upsert user status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	res = doJSON(t, http.MethodGet, ts.URL+"/v1/users", "", nil)
	defer res.Body.Close()
	var listing struct {
		Users []workflow.User `json:"users"`
	}
	if err := json.NewDecoder(res.Body).Decode(&listing); err != nil {
		t.Fatalf("decode users: %v", err)
	}
	if len(listing.Users) != 5 {
		t.Fatalf("user count = %d, want 5 after upsert", len(listing.Users))
	}
}

func TestTasksWebsocketDeliversSnapshots(t *testing.T) {
	ts := newTestServer(t)

	res := doJSON(t, http.MethodPost, ts.URL+"/v1/tasks", "1", map[string]any{
		"title":       "streamed",
		"assigned_to": "3",
	})
	task := decodeTask(t, res)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/tasks/ws"
	conn, wsRes, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial error = %v", err)
	}
	if wsRes != nil {
		wsRes.Body.Close()
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg struct {
		Type  string          `json:"type"`
		Tasks []workflow.Task `json:"tasks"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read initial snapshot: %v", err)
	}
	if msg.Type != "tasks_snapshot" {
		t.Fatalf("message type = %q, want tasks_snapshot", msg.Type)
	}
	if len(msg.Tasks) != 1 || msg.Tasks[0].ID != task.ID {
		t.Fatalf("initial snapshot = %v, want the created task", msg.Tasks)
	}
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		res, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s error = %v", path, err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d, want %d", path, res.StatusCode, http.StatusOK)
		}
	}
}
