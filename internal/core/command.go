package core

// CommandType names a request handled by the agent.
type CommandType string

const (
	CmdSetColor       CommandType = "setColor"
	CmdSetEffect      CommandType = "setEffect"
	CmdSetTimer       CommandType = "setTimer"
	CmdSetRandommode  CommandType = "setRandommode"
	CmdSetName        CommandType = "setName"
	CmdSetPin         CommandType = "setPin"
	CmdRefresh        CommandType = "refresh"
	CmdRunScript      CommandType = "runScript"
	CmdStopScript     CommandType = "stopScript"
	CmdAddSchedule    CommandType = "addSchedule"
	CmdRemoveSchedule CommandType = "removeSchedule"
)

// Command is a request from any front end (web, MQTT, cron, Lua).
// Payload holds JSON-decoded values:
//
//	setColor       color ("#WWRRGGBB" or "w,r,g,b")
//	setEffect      effect (name), delay, color (optional)
//	setTimer       id, type, hour (-1 disables), minute, runtime, color
//	setRandommode  start, end ("HH:MM", "" for none), min, max, color
//	setName        name
//	setPin         pin
//	runScript      name
//	addSchedule    spec, command
//	removeSchedule id
type Command struct {
	Type    CommandType
	Payload map[string]interface{}
}

// CommandChannel is consumed by the agent's single orchestrator goroutine,
// which is the only place the device cache is touched.
type CommandChannel chan Command
