package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"playbulb-controller/internal/config"
	"playbulb-controller/internal/core"
	"playbulb-controller/internal/device"
	"playbulb-controller/internal/protocol"
	"playbulb-controller/internal/scheduler"

	"github.com/gorilla/websocket"
)

type fakeScripts struct {
	files map[string]string
	ran   chan string
}

func (f *fakeScripts) ExecuteString(code string) error {
	f.ran <- code
	return nil
}

func (f *fakeScripts) ListScripts() ([]string, error) {
	out := []string{}
	for name := range f.files {
		out = append(out, name)
	}
	return out, nil
}

func (f *fakeScripts) ScriptCode(name string) (string, error) {
	code, ok := f.files[name]
	if !ok {
		return "", errors.New("no such script")
	}
	return code, nil
}

func (f *fakeScripts) SaveScript(name, code string) error {
	f.files[name] = code
	return nil
}

func (f *fakeScripts) DeleteScript(name string) error {
	delete(f.files, name)
	return nil
}

type fakeSchedules []scheduler.ScheduleEntry

func (f fakeSchedules) Entries() []scheduler.ScheduleEntry { return f }

type harness struct {
	srv      *Server
	http     *httptest.Server
	scripts  *fakeScripts
	commands core.CommandChannel
	bus      *core.EventBus
	status   *core.Status
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		commands: make(core.CommandChannel, 8),
		bus:      core.NewEventBus(),
		status:   core.NewStatus("AA:BB:CC:DD:EE:FF"),
	}
	h.scripts = &fakeScripts{
		files: map[string]string{"sunrise.lua": "fade(0,0,0,0,255,0,0,0,1000)"},
		ran:   make(chan string, 1),
	}
	schedules := fakeSchedules{{ID: 1, Spec: "0 7 * * *", Command: "script sunrise.lua"}}
	h.srv = NewServer(config.ServerConfig{WebFilesDir: t.TempDir()}, h.commands, h.bus, h.status, h.scripts, schedules)
	h.http = httptest.NewServer(h.srv.Handler())
	t.Cleanup(h.http.Close)
	return h
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type rawMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func readMessage(t *testing.T, conn *websocket.Conn) rawMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg rawMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	return msg
}

// readUntil skips messages until one of type want arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want string) rawMessage {
	t.Helper()
	for i := 0; i < 10; i++ {
		if msg := readMessage(t, conn); msg.Type == want {
			return msg
		}
	}
	t.Fatalf("no %s message", want)
	return rawMessage{}
}

func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Len() != n {
		if time.Now().After(deadline) {
			t.Fatalf("hub has %d clients, want %d", hub.Len(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestInitialMessages(t *testing.T) {
	h := newHarness(t)
	color := protocol.Color{Red: 255}
	h.status.SetDevice(device.Snapshot{Address: "AA:BB:CC:DD:EE:FF", Color: &color})

	conn := h.dial(t)
	var types []string
	for i := 0; i < 5; i++ {
		types = append(types, readMessage(t, conn).Type)
	}
	want := []string{MsgLinkStatus, MsgDeviceState, MsgScriptList, MsgScriptStatus, MsgScheduleList}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("initial messages = %v, want %v", types, want)
		}
	}
}

func TestCommandForwarded(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)
	readUntil(t, conn, MsgScheduleList)

	if err := conn.WriteJSON(Request{Type: "setColor", Payload: map[string]interface{}{"color": "#00FF0000"}}); err != nil {
		t.Fatal(err)
	}
	select {
	case cmd := <-h.commands:
		if cmd.Type != core.CmdSetColor || cmd.Payload["color"] != "#00FF0000" {
			t.Errorf("cmd = %+v", cmd)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("command not forwarded")
	}

	if err := conn.WriteJSON(Request{Type: "dance"}); err != nil {
		t.Fatal(err)
	}
	if msg := readUntil(t, conn, MsgError); !strings.Contains(string(msg.Payload), "dance") {
		t.Errorf("error payload = %s", msg.Payload)
	}
}

func TestScriptRequests(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)
	readUntil(t, conn, MsgScheduleList)

	conn.WriteJSON(Request{Type: "getScriptCode", Payload: map[string]interface{}{"name": "sunrise.lua"}})
	msg := readUntil(t, conn, MsgScriptCode)
	var code map[string]string
	json.Unmarshal(msg.Payload, &code)
	if code["code"] != "fade(0,0,0,0,255,0,0,0,1000)" {
		t.Errorf("code = %v", code)
	}

	waitClients(t, h.srv.Hub, 1)
	conn.WriteJSON(Request{Type: "saveScript", Payload: map[string]interface{}{"name": "night.lua", "code": "set_color(0,0,0,0)"}})
	msg = readUntil(t, conn, MsgScriptList)
	if !strings.Contains(string(msg.Payload), "night.lua") {
		t.Errorf("script list = %s", msg.Payload)
	}
}

func TestRunCode(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)
	readUntil(t, conn, MsgScheduleList)

	conn.WriteJSON(Request{Type: "runCode", Payload: map[string]interface{}{"code": "set_color(0,255,0,0)"}})
	select {
	case code := <-h.scripts.ran:
		if code != "set_color(0,255,0,0)" {
			t.Errorf("code = %q", code)
		}
	case <-time.After(time.Second):
		t.Fatal("code not executed")
	}

	conn.WriteJSON(Request{Type: "runCode", Payload: map[string]interface{}{}})
	msg := readUntil(t, conn, MsgError)
	if !strings.Contains(string(msg.Payload), "code") {
		t.Errorf("error = %s", msg.Payload)
	}
}

func TestEventsBroadcast(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)
	readUntil(t, conn, MsgScheduleList)
	waitClients(t, h.srv.Hub, 1)

	h.bus.Publish(core.Event{Type: core.LinkChangedEvent, Payload: h.status.SetLink("ready", true)})
	msg := readUntil(t, conn, MsgLinkStatus)
	var link core.LinkStatus
	json.Unmarshal(msg.Payload, &link)
	if !link.Connected || link.State != "ready" {
		t.Errorf("link = %+v", link)
	}

	h.bus.Publish(core.Event{Type: core.ScriptChangedEvent, Payload: "sunrise.lua"})
	msg = readUntil(t, conn, MsgScriptStatus)
	if !strings.Contains(string(msg.Payload), "sunrise.lua") {
		t.Errorf("script status = %s", msg.Payload)
	}
}

func TestStateEndpoint(t *testing.T) {
	h := newHarness(t)
	h.status.SetLink("ready", true)
	h.status.SetRunningScript("sunrise.lua")

	resp, err := http.Get(h.http.URL + "/api/state")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		Link          core.LinkStatus  `json:"link"`
		Device        *device.Snapshot `json:"device"`
		RunningScript string           `json:"running_script"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if !body.Link.Connected || body.Device != nil || body.RunningScript != "sunrise.lua" {
		t.Errorf("state = %+v", body)
	}

	req, _ := http.NewRequest(http.MethodPost, h.http.URL+"/api/state", nil)
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d", resp2.StatusCode)
	}
}
