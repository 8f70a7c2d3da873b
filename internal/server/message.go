package server

// Request is an incoming JSON message from a WebSocket client. Types that
// name a core.CommandType are forwarded to the agent.
type Request struct {
	Type    string                 `json:"type"`
	Payload map[string]interface{} `json:"payload"`
}

// Message is an outgoing JSON message sent to WebSocket clients.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Outgoing message types.
const (
	MsgLinkStatus   = "link_status"
	MsgDeviceState  = "device_state"
	MsgScheduleList = "schedule_list"
	MsgScriptList   = "script_list"
	MsgScriptStatus = "script_status"
	MsgScriptCode   = "script_code"
	MsgError        = "error"
)

// NewMessage creates a new structured Message for broadcasting to clients.
func NewMessage(msgType string, payload interface{}) Message {
	return Message{Type: msgType, Payload: payload}
}
