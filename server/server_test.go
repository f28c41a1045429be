package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newmanjoel/Lights/animation"
	"github.com/newmanjoel/Lights/config"
	"github.com/newmanjoel/Lights/controller"
	"github.com/newmanjoel/Lights/store"
	"github.com/newmanjoel/Lights/util"
)

type fakeLibrary map[int]animation.Animation

func (l fakeLibrary) Get(id int) (animation.Animation, error) {
	a, ok := l[id]
	if !ok {
		return animation.Animation{}, fmt.Errorf("%w: id %d", store.ErrNotFound, id)
	}
	return a, nil
}

func (l fakeLibrary) List() []store.Summary {
	var list []store.Summary
	for _, a := range l {
		list = append(list, store.Summarise(a))
	}
	return list
}

type fixture struct {
	srv      *Server
	cmds     chan animation.Command
	state    *util.Snapshot[controller.LiveState]
	shutdown *util.Shutdown
	daynight *config.DayNightStore
}

func newFixture(t *testing.T, buffer int) *fixture {
	t.Helper()
	f := &fixture{
		cmds:     make(chan animation.Command, buffer),
		state:    controller.NewLiveState(),
		shutdown: util.NewShutdown(),
		daynight: config.NewDayNightStore(config.Default().DayNight),
	}
	red := animation.SingleColor("red", 0xff0000, 3, 4)
	red.ID = 2
	lib := fakeLibrary{2: red}
	f.srv = New(config.Default().Web, "", f.cmds, f.state, lib, f.daynight, f.shutdown)
	t.Cleanup(func() { f.shutdown.Trigger() })
	return f
}

func (f *fixture) do(method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestCommandEndpoints(t *testing.T) {
	f := newFixture(t, 8)

	rec := f.do(http.MethodPost, "/api/brightness/42")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Equal(t, animation.SetBrightness{Level: 42}, <-f.cmds)

	rec = f.do(http.MethodPost, "/api/speed/12.5")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, animation.SetSpeed{FPS: 12.5}, <-f.cmds)

	rec = f.do(http.MethodPost, "/api/animation/2")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	cmd := (<-f.cmds).(animation.SetAnimation)
	assert.Equal(t, "red", cmd.Animation.Name)
}

func TestCommandEndpoints_Rejects(t *testing.T) {
	f := newFixture(t, 8)
	tests := []struct {
		target string
		status int
	}{
		{"/api/brightness/256", http.StatusBadRequest},
		{"/api/brightness/-1", http.StatusBadRequest},
		{"/api/brightness/abc", http.StatusBadRequest},
		{"/api/speed/0", http.StatusBadRequest},
		{"/api/speed/-2", http.StatusBadRequest},
		{"/api/speed/NaN", http.StatusBadRequest},
		{"/api/speed/0.0000000001", http.StatusBadRequest},
		{"/api/animation/x", http.StatusBadRequest},
		{"/api/animation/9", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := f.do(http.MethodPost, tt.target)
		assert.Equal(t, tt.status, rec.Code, tt.target)
	}
	assert.Empty(t, f.cmds, "rejected requests queue nothing")

	rec := f.do(http.MethodGet, "/api/brightness/10")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestEnqueue_BlocksUntilRequestCancelled(t *testing.T) {
	f := newFixture(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/api/brightness/5", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		f.srv.Handler().ServeHTTP(rec, req)
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("request returned while the command channel was full")
	case <-time.After(20 * time.Millisecond):
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cancelled request still blocked")
	}
}

func TestEnqueue_WaitsForReader(t *testing.T) {
	f := newFixture(t, 0)
	got := make(chan animation.Command, 1)
	go func() {
		time.Sleep(10 * time.Millisecond)
		got <- <-f.cmds
	}()
	rec := f.do(http.MethodPost, "/api/brightness/7")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, animation.SetBrightness{Level: 7}, <-got)
}

func TestStatus(t *testing.T) {
	f := newFixture(t, 1)
	f.state.Publish(controller.LiveState{Brightness: 9, AnimationID: 2, AnimationName: "red", FrameIndex: 1, FrameCount: 3, SpeedFPS: 4})

	rec := f.do(http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"brightness":9,"animation_id":2,"animation_name":"red","frame_index":1,"frame_count":3,"speed_fps":4}`, rec.Body.String())
}

func TestAnimations(t *testing.T) {
	f := newFixture(t, 1)

	rec := f.do(http.MethodGet, "/api/animations")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":2,"name":"red","speed":4,"frames":1,"pixels":3}]`, rec.Body.String())

	rec = f.do(http.MethodGet, "/api/animations/2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"red"`)

	rec = f.do(http.MethodGet, "/api/animations/3")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSettings(t *testing.T) {
	f := newFixture(t, 1)

	rec := f.do(http.MethodGet, "/api/settings/day_hour")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"setting":"day_hour","value":6}`, rec.Body.String())

	rec = f.do(http.MethodPost, "/api/settings/day_hour/99")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"setting":"day_hour","old":6,"value":24}`, rec.Body.String())

	policy, err := f.daynight.Policy()
	require.NoError(t, err)
	assert.Equal(t, 24, policy.DayHour)

	rec = f.do(http.MethodGet, "/api/settings/colour")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodGet, "/api/daynight")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"day_hour":24`)
}

func TestIndex(t *testing.T) {
	f := newFixture(t, 1)
	rec := f.do(http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)

	var index []route
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &index))
	require.NotEmpty(t, index)
	for i := 1; i < len(index); i++ {
		assert.Less(t, index[i-1].Path, index[i].Path)
	}
	assert.Contains(t, index, route{Path: "/api/daynight", Methods: "GET,POST"})
	assert.Contains(t, index, route{Path: "/api/status", Methods: "GET"})

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/nothing").Code)
}

func TestRequestIDPassedThrough(t *testing.T) {
	f := newFixture(t, 1)
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("X-Request-Id", "abc")
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-Id"))
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestWebsocketStream(t *testing.T) {
	f := newFixture(t, 1)
	f.srv.Hub().SetCoalesceWindow(time.Millisecond)
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	env := readEnvelope(t, conn)
	assert.Equal(t, typeStateInit, env.Type)
	assert.Equal(t, controller.DefaultLiveState(), env.Data)
	assert.False(t, env.Ts.IsZero())
	assert.Eventually(t, func() bool { return f.srv.Hub().Clients() == 1 }, time.Second, time.Millisecond)

	f.state.Publish(controller.LiveState{Brightness: 3, AnimationID: 2, FrameCount: 2, SpeedFPS: 1})
	env = readEnvelope(t, conn)
	assert.Equal(t, typeStateChanged, env.Type)
	assert.Equal(t, uint8(3), env.Data.Brightness)

	f.shutdown.Trigger()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	assert.Eventually(t, func() bool { return f.srv.Hub().Clients() == 0 }, time.Second, time.Millisecond)
}

func TestWebsocketCoalesces(t *testing.T) {
	f := newFixture(t, 1)
	f.srv.Hub().SetCoalesceWindow(50 * time.Millisecond)
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	readEnvelope(t, conn)

	for i := 1; i <= 20; i++ {
		f.state.Publish(controller.LiveState{FrameIndex: i})
	}
	env := readEnvelope(t, conn)
	assert.Equal(t, 20, env.Data.FrameIndex, "bursts collapse into the latest state")
}
