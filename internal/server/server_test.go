package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/roach88/bloom/internal/event"
	"github.com/roach88/bloom/internal/shared"
	"github.com/roach88/bloom/internal/state"
	"github.com/roach88/bloom/internal/testutil"
)

type testEnv struct {
	clock    *testutil.FakeClock
	access   *shared.Accessor
	notifier *shared.Notifier
	srv      *Server
	http     *httptest.Server
}

func newTestEnv(t *testing.T, engineOpts []state.Option, opts ...Option) *testEnv {
	t.Helper()
	clock := testutil.NewFakeClock(time.Time{})
	e := state.New(event.NewBus(64), append([]state.Option{state.WithClock(clock)}, engineOpts...)...)

	env := &testEnv{
		clock:    clock,
		access:   shared.NewAccessor(e),
		notifier: shared.NewNotifier(shared.DefaultNotifierDepth),
	}
	base := []Option{WithIDGenerator(testutil.NewSequentialIDs("ws")), WithClock(clock)}
	env.srv = New(env.access, env.notifier, append(base, opts...)...)
	env.http = httptest.NewServer(env.srv.Handler())
	t.Cleanup(env.http.Close)
	return env
}

func (env *testEnv) with(t *testing.T, fn func(*state.Engine) error) {
	t.Helper()
	require.NoError(t, env.access.With(fn))
}

func (env *testEnv) addTask(t *testing.T, name string) uint32 {
	t.Helper()
	var id uint32
	env.with(t, func(e *state.Engine) error {
		var err error
		id, err = e.AddTask(name, 25, 5)
		return err
	})
	return id
}

func (env *testEnv) request(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, env.http.URL+path, rd)
	require.NoError(t, err)

	resp, err := env.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]any
	if len(bytes.TrimSpace(raw)) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out), "body: %s", raw)
	}
	return resp.StatusCode, out
}

func (env *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws"
	conn, err := websocket.Dial(wsURL, "", env.http.URL)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func receive(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	var data []byte
	require.NoError(t, websocket.Message.Receive(conn, &data))
	return data
}

func receiveType(t *testing.T, conn *websocket.Conn) (string, map[string]any) {
	t.Helper()
	var frame map[string]any
	require.NoError(t, json.Unmarshal(receive(t, conn), &frame))
	typ, _ := frame["type"].(string)
	return typ, frame
}

func send(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, websocket.Message.Send(conn, frame))
}

func assertGolden(t *testing.T, name string, frames ...[]byte) {
	t.Helper()
	var buf bytes.Buffer
	for _, f := range frames {
		buf.Write(f)
		buf.WriteByte('\n')
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, buf.Bytes())
}

// ---------------------------------------------------------------------------
// REST

func TestAPI_StatusInitial(t *testing.T) {
	env := newTestEnv(t, nil)

	code, body := env.request(t, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, code)

	assert.Equal(t, "idle", body["state"])
	assert.Nil(t, body["taskName"])
	assert.EqualValues(t, 0, body["timeLeft"])

	plant := body["plant"].(map[string]any)
	assert.EqualValues(t, 0, plant["stage"])
	assert.NotContains(t, plant, "type")

	stats := body["stats"].(map[string]any)
	assert.EqualValues(t, 0, stats["completed"])
	assert.EqualValues(t, 0, stats["total"])
}

func TestAPI_TasksEmptyIsArray(t *testing.T) {
	env := newTestEnv(t, nil)

	code, body := env.request(t, http.MethodGet, "/api/tasks", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{}, body["tasks"])
}

func TestAPI_AddTaskDefaults(t *testing.T) {
	env := newTestEnv(t, nil)

	code, body := env.request(t, http.MethodPost, "/api/tasks", `{}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 1, body["taskId"])

	tasks := shared.Read(env.access, func(e *state.Engine) []state.Task { return e.Tasks() })
	require.Len(t, tasks, 1)
	assert.Equal(t, "Untitled", tasks[0].Name)
	assert.Equal(t, uint16(25), tasks[0].FocusMinutes)
	assert.Equal(t, uint16(5), tasks[0].BreakMinutes)
}

func TestAPI_AddTaskValues(t *testing.T) {
	env := newTestEnv(t, nil)

	code, _ := env.request(t, http.MethodPost, "/api/tasks", `{"name":"  review PR  ","focusDuration":50,"breakDuration":10}`)
	require.Equal(t, http.StatusOK, code)

	code, body := env.request(t, http.MethodGet, "/api/tasks", "")
	require.Equal(t, http.StatusOK, code)
	tasks := body["tasks"].([]any)
	require.Len(t, tasks, 1)
	task := tasks[0].(map[string]any)
	assert.Equal(t, "review PR", task["name"])
	assert.EqualValues(t, 50, task["focusDuration"])
	assert.EqualValues(t, 10, task["breakDuration"])
	assert.Equal(t, false, task["started"])
}

func TestAPI_AddTaskRejected(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		status   int
		code     string
		maxTasks int
	}{
		{name: "no body", body: "", status: http.StatusBadRequest, code: "INVALID_ARGUMENT"},
		{name: "invalid json", body: "{", status: http.StatusBadRequest, code: "INVALID_ARGUMENT"},
		{name: "zero focus", body: `{"focusDuration":0}`, status: http.StatusBadRequest, code: "INVALID_ARGUMENT"},
		{name: "blank name", body: `{"name":"   "}`, status: http.StatusBadRequest, code: "INVALID_ARGUMENT"},
		{name: "list full", body: `{}`, status: http.StatusConflict, code: "CAPACITY_EXCEEDED", maxTasks: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []state.Option
			if tt.maxTasks > 0 {
				opts = append(opts, state.WithMaxTasks(tt.maxTasks))
			}
			env := newTestEnv(t, opts)
			if tt.maxTasks > 0 {
				for range tt.maxTasks {
					env.addTask(t, "filler")
				}
			}

			code, body := env.request(t, http.MethodPost, "/api/tasks", tt.body)
			assert.Equal(t, tt.status, code)
			assert.Equal(t, tt.code, body["code"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestAPI_ActionStartTask(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.addTask(t, "write docs")

	code, body := env.request(t, http.MethodPost, "/api/action", `{"action":"startTask","taskId":1}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"success": true, "action": "startTask"}, body)

	st := shared.Read(env.access, func(e *state.Engine) state.Status { return e.Status() })
	assert.Equal(t, state.ModeFocusing, st.Mode)
	assert.Equal(t, id, st.ActiveTaskID)

	code, body = env.request(t, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "focusing", body["state"])
	assert.Equal(t, "write docs", body["taskName"])
	assert.EqualValues(t, 1500, body["timeLeft"])
}

func TestAPI_ActionErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"unknown action", `{"action":"dance"}`, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"missing action", `{}`, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"addTask has its own route", `{"action":"addTask"}`, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"select without id", `{"action":"selectTask"}`, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"start unknown task", `{"action":"startTask","taskId":42}`, http.StatusNotFound, "INVALID_REFERENCE"},
		{"water with nothing pending", `{"action":"water"}`, http.StatusConflict, "INVALID_STATE_TRANSITION"},
		{"resume while idle", `{"action":"resume"}`, http.StatusConflict, "INVALID_STATE_TRANSITION"},
		{"goal out of range", `{"action":"setGoal","goal":300}`, http.StatusBadRequest, "INVALID_ARGUMENT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.addTask(t, "write docs")
			before := shared.Read(env.access, func(e *state.Engine) state.Snapshot { return e.Snapshot() })

			code, body := env.request(t, http.MethodPost, "/api/action", tt.body)
			assert.Equal(t, tt.status, code)
			assert.Equal(t, tt.code, body["code"])

			after := shared.Read(env.access, func(e *state.Engine) state.Snapshot { return e.Snapshot() })
			assert.Equal(t, before, after, "rejected action must not change state")
		})
	}
}

func TestAPI_KillClearsTasks(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addTask(t, "a")
	env.addTask(t, "b")

	code, _ := env.request(t, http.MethodPost, "/api/action", `{"action":"kill"}`)
	require.Equal(t, http.StatusOK, code)

	st := shared.Read(env.access, func(e *state.Engine) state.Status { return e.Status() })
	assert.Equal(t, state.ModeWithered, st.Mode)
	assert.True(t, st.Plant.Withered)
	assert.Empty(t, st.Tasks)

	code, _ = env.request(t, http.MethodPost, "/api/action", `{"action":"revive"}`)
	require.Equal(t, http.StatusOK, code)
	mode := shared.Read(env.access, func(e *state.Engine) state.Mode { return e.Mode() })
	assert.Equal(t, state.ModeIdle, mode)
}

func TestAPI_SetGoal(t *testing.T) {
	env := newTestEnv(t, nil)

	code, _ := env.request(t, http.MethodPost, "/api/action", `{"action":"setGoal","goal":4}`)
	require.Equal(t, http.StatusOK, code)

	plant := shared.Read(env.access, func(e *state.Engine) state.Plant { return e.Plant() })
	assert.Equal(t, uint8(4), plant.DailyGoal)
	assert.Equal(t, uint8(4), plant.SessionGoal)
}

func TestAPI_MethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, nil)

	code, _ := env.request(t, http.MethodGet, "/api/action", "")
	assert.Equal(t, http.StatusMethodNotAllowed, code)
}

// ---------------------------------------------------------------------------
// WebSocket

func TestWS_ConnectSendsTasksPlantStatus(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addTask(t, "write docs")

	conn := env.dial(t)
	frames := [][]byte{receive(t, conn), receive(t, conn), receive(t, conn)}

	assertGolden(t, "ws_connect", frames...)
	assert.Eventually(t, func() bool { return env.srv.Clients() == 1 }, time.Second, 5*time.Millisecond)
}

func TestWS_ActionsAckAndErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addTask(t, "write docs")

	conn := env.dial(t)
	for range 3 {
		receive(t, conn)
	}

	send(t, conn, `{"action":"startTask","taskId":1}`)
	ack := receive(t, conn)

	send(t, conn, `{"action":"getStatus"}`)
	status := receive(t, conn)

	send(t, conn, `{"action":"resume"}`)
	rejected := receive(t, conn)

	assertGolden(t, "ws_start_task", ack, status, rejected)
}

func TestWS_AddTaskWithDefaults(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := env.dial(t)
	for range 3 {
		receive(t, conn)
	}

	send(t, conn, `{"action":"addTask","task":{"name":"plan sprint"}}`)
	typ, frame := receiveType(t, conn)
	require.Equal(t, "ack", typ)
	assert.EqualValues(t, 1, frame["taskId"])

	send(t, conn, `{"action":"getTasks"}`)
	typ, frame = receiveType(t, conn)
	require.Equal(t, "tasks", typ)
	tasks := frame["tasks"].([]any)
	require.Len(t, tasks, 1)
	task := tasks[0].(map[string]any)
	assert.Equal(t, "plan sprint", task["name"])
	assert.EqualValues(t, 25, task["focusDuration"])
	assert.EqualValues(t, 5, task["breakDuration"])
}

func TestWS_InvalidFrames(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := env.dial(t)
	for range 3 {
		receive(t, conn)
	}

	send(t, conn, `not json`)
	typ, frame := receiveType(t, conn)
	assert.Equal(t, "error", typ)
	assert.Equal(t, "INVALID_ARGUMENT", frame["code"])

	send(t, conn, `{"action":"fly"}`)
	typ, frame = receiveType(t, conn)
	assert.Equal(t, "error", typ)
	assert.Equal(t, "fly", frame["action"])
	assert.Equal(t, "INVALID_ARGUMENT", frame["code"])

	// still usable
	send(t, conn, `{"action":"getStatus"}`)
	typ, _ = receiveType(t, conn)
	assert.Equal(t, "status", typ)
}

func TestWS_CloseAfterRepeatedInvalidFrames(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := env.dial(t)
	for range 3 {
		receive(t, conn)
	}

	for range maxDecodeErrorsPerConn {
		send(t, conn, `{`)
		typ, _ := receiveType(t, conn)
		require.Equal(t, "error", typ)
	}

	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	var data []byte
	assert.Error(t, websocket.Message.Receive(conn, &data))
	assert.Eventually(t, func() bool { return env.srv.Clients() == 0 }, time.Second, 5*time.Millisecond)
}

func TestBroadcast_ReachesEveryClient(t *testing.T) {
	env := newTestEnv(t, nil)
	a := env.dial(t)
	b := env.dial(t)
	for range 3 {
		receive(t, a)
		receive(t, b)
	}
	require.Eventually(t, func() bool { return env.srv.Clients() == 2 }, time.Second, 5*time.Millisecond)

	env.srv.Broadcast(shared.KindPlant, shared.KindStatus)

	for _, conn := range []*websocket.Conn{a, b} {
		typ, _ := receiveType(t, conn)
		assert.Equal(t, "plant", typ)
		typ, _ = receiveType(t, conn)
		assert.Equal(t, "status", typ)
	}
}

func TestRun_DrainsNotifierOncePerKind(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := env.dial(t)
	for range 3 {
		receive(t, conn)
	}
	require.Eventually(t, func() bool { return env.srv.Clients() == 1 }, time.Second, 5*time.Millisecond)

	// queued before Run starts, so one drain sees them all
	env.notifier.Send(shared.KindStatus)
	env.notifier.Send(shared.KindStatus)
	env.notifier.Send(shared.KindPlant)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = env.srv.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	typ, _ := receiveType(t, conn)
	assert.Equal(t, "plant", typ)
	typ, _ = receiveType(t, conn)
	assert.Equal(t, "status", typ)

	env.with(t, func(e *state.Engine) error {
		_, err := e.AddTask("late", 25, 5)
		return err
	})
	env.notifier.Send(shared.KindTasks)
	typ, frame := receiveType(t, conn)
	assert.Equal(t, "tasks", typ, "no duplicate status frame queued")
	assert.Len(t, frame["tasks"], 1)
}

func TestRun_MidnightWithersIncompleteDay(t *testing.T) {
	env := newTestEnv(t, nil, WithDayWatcher(NewDayWatcher(testutil.Epoch, time.UTC), 2*time.Millisecond))
	env.addTask(t, "never finished")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = env.srv.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	env.clock.Set(time.Date(2025, time.March, 4, 0, 0, 30, 0, time.UTC))

	require.Eventually(t, func() bool {
		return shared.Read(env.access, func(e *state.Engine) bool { return e.Plant().Withered })
	}, time.Second, 5*time.Millisecond)

	st := shared.Read(env.access, func(e *state.Engine) state.Status { return e.Status() })
	assert.Equal(t, state.ModeWithered, st.Mode)
	assert.Empty(t, st.Tasks)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	env := newTestEnv(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- env.srv.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(6 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestErrorStatus(t *testing.T) {
	e := state.New(nil)
	_, errFull := func() (uint32, error) {
		full := state.New(nil, state.WithMaxTasks(1))
		_, _ = full.AddTask("a", 1, 1)
		return full.AddTask("b", 1, 1)
	}()

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unknown action", unknownActionError{action: "x"}, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"unknown task", e.StartTask(9), http.StatusNotFound, "INVALID_REFERENCE"},
		{"bad transition", e.PauseTimer(), http.StatusConflict, "INVALID_STATE_TRANSITION"},
		{"full", errFull, http.StatusConflict, "CAPACITY_EXCEEDED"},
		{"other", io.ErrUnexpectedEOF, http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := errorStatus(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}
