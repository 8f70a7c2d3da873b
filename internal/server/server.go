package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"playbulb-controller/internal/config"
	"playbulb-controller/internal/core"
	"playbulb-controller/internal/device"
	"playbulb-controller/internal/scheduler"

	"github.com/gorilla/websocket"
)

// Scripts is the script store the web UI edits and runs.
type Scripts interface {
	ListScripts() ([]string, error)
	ScriptCode(name string) (string, error)
	SaveScript(name, code string) error
	DeleteScript(name string) error
	ExecuteString(code string) error
}

// Schedules lists the cron entries.
type Schedules interface {
	Entries() []scheduler.ScheduleEntry
}

// Server manages the HTTP and WebSocket services.
type Server struct {
	Hub        *Hub
	commands   core.CommandChannel
	eventBus   *core.EventBus
	status     *core.Status
	scripts    Scripts
	schedules  Schedules
	httpServer *http.Server

	allowedOrigins []string
	upgrader       websocket.Upgrader

	events core.Subscriber
	done   chan struct{}
}

var forwardedEvents = []core.EventType{
	core.LinkChangedEvent,
	core.DeviceStateEvent,
	core.ScriptChangedEvent,
	core.SchedulesChangedEvent,
}

// NewServer creates the server and starts forwarding bus events to the hub.
func NewServer(cfg config.ServerConfig, commands core.CommandChannel, eb *core.EventBus, status *core.Status, scripts Scripts, schedules Schedules) *Server {
	s := &Server{
		Hub:            NewHub(),
		commands:       commands,
		eventBus:       eb,
		status:         status,
		scripts:        scripts,
		schedules:      schedules,
		allowedOrigins: cfg.AllowedOrigins,
		done:           make(chan struct{}),
	}

	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if len(s.allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range s.allowedOrigins {
				if strings.EqualFold(origin, allowed) {
					return true
				}
			}
			log.Printf("[WS] Connection blocked: Origin '%s' not in allowed list.", origin)
			return false
		},
	}

	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.Dir(cfg.WebFilesDir)))
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/api/state", s.handleState)
	s.httpServer = &http.Server{Addr: ":" + cfg.Port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	s.events = eb.Subscribe(forwardedEvents...)
	go s.forwardEvents()

	return s
}

// Handler exposes the HTTP routes.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) ListenAndServe() error {
	log.Printf("[HTTP] Listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.eventBus.Unsubscribe(s.events, forwardedEvents...)
	close(s.done)
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) forwardEvents() {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.events:
			if msg, ok := s.eventMessage(ev); ok {
				s.Hub.Broadcast(msg)
			}
		}
	}
}

func (s *Server) eventMessage(ev core.Event) (Message, bool) {
	switch ev.Type {
	case core.LinkChangedEvent:
		return NewMessage(MsgLinkStatus, ev.Payload), true
	case core.DeviceStateEvent:
		return NewMessage(MsgDeviceState, ev.Payload), true
	case core.ScriptChangedEvent:
		return NewMessage(MsgScriptStatus, map[string]interface{}{"running": ev.Payload}), true
	case core.SchedulesChangedEvent:
		return NewMessage(MsgScheduleList, s.schedules.Entries()), true
	}
	return Message{}, false
}

type stateResponse struct {
	Link          core.LinkStatus  `json:"link"`
	Device        *device.Snapshot `json:"device"`
	RunningScript string           `json:"running_script"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stateResponse{
		Link:          s.status.Link(),
		Device:        s.status.Device(),
		RunningScript: s.status.RunningScript(),
	})
}

func (s *Server) initialMessages() []Message {
	msgs := []Message{NewMessage(MsgLinkStatus, s.status.Link())}
	if snap := s.status.Device(); snap != nil {
		msgs = append(msgs, NewMessage(MsgDeviceState, *snap))
	}
	if scripts, err := s.scripts.ListScripts(); err == nil {
		msgs = append(msgs, NewMessage(MsgScriptList, scripts))
	}
	msgs = append(msgs,
		NewMessage(MsgScriptStatus, map[string]interface{}{"running": s.status.RunningScript()}),
		NewMessage(MsgScheduleList, s.schedules.Entries()),
	)
	return msgs
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] Upgrade error: %v", err)
		return
	}

	for _, msg := range s.initialMessages() {
		if err := s.Hub.Send(conn, msg); err != nil {
			conn.Close()
			return
		}
	}

	s.Hub.register(conn)
	defer s.Hub.unregister(conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			s.Hub.Send(conn, NewMessage(MsgError, map[string]string{"message": "invalid JSON"}))
			continue
		}
		if reply, ok := s.handleRequest(req); ok {
			s.Hub.Send(conn, reply)
		}
	}
}

// handleRequest serves script file requests directly and forwards
// everything else to the agent. It returns a reply for the sender, if any.
func (s *Server) handleRequest(req Request) (Message, bool) {
	cmd := core.Command{Type: core.CommandType(req.Type), Payload: req.Payload}

	switch req.Type {
	case "getScriptCode":
		name, err := cmd.String("name")
		if err != nil {
			return errorMessage(err), true
		}
		code, err := s.scripts.ScriptCode(name)
		if err != nil {
			return errorMessage(err), true
		}
		return NewMessage(MsgScriptCode, map[string]string{"name": name, "code": code}), true
	case "runCode":
		code, err := cmd.String("code")
		if err != nil {
			return errorMessage(err), true
		}
		if err := s.scripts.ExecuteString(code); err != nil {
			return errorMessage(err), true
		}
		return Message{}, false
	case "saveScript", "deleteScript":
		name, err := cmd.String("name")
		if err != nil {
			return errorMessage(err), true
		}
		if req.Type == "saveScript" {
			code, cerr := cmd.String("code")
			if cerr != nil {
				return errorMessage(cerr), true
			}
			err = s.scripts.SaveScript(name, code)
		} else {
			err = s.scripts.DeleteScript(name)
		}
		if err != nil {
			return errorMessage(err), true
		}
		if scripts, err := s.scripts.ListScripts(); err == nil {
			s.Hub.Broadcast(NewMessage(MsgScriptList, scripts))
		}
		return Message{}, false
	}

	if !isCommand(cmd.Type) {
		return errorMessage(fmt.Errorf("unknown message type '%s'", req.Type)), true
	}
	select {
	case s.commands <- cmd:
	case <-time.After(5 * time.Second):
		return NewMessage(MsgError, map[string]string{"message": "agent busy"}), true
	}
	return Message{}, false
}

func errorMessage(err error) Message {
	return NewMessage(MsgError, map[string]string{"message": err.Error()})
}

func isCommand(t core.CommandType) bool {
	switch t {
	case core.CmdSetColor, core.CmdSetEffect, core.CmdSetTimer, core.CmdSetRandommode,
		core.CmdSetName, core.CmdSetPin, core.CmdRefresh, core.CmdRunScript,
		core.CmdStopScript, core.CmdAddSchedule, core.CmdRemoveSchedule:
		return true
	}
	return false
}
