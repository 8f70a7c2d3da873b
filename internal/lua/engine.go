// Package lua runs user scripts that drive the bulb through agent commands.
package lua

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"playbulb-controller/internal/core"

	lua "github.com/yuin/gopher-lua"
)

type cmdType int

const (
	cmdRunFile cmdType = iota
	cmdRunString
	cmdStop
)

type engineCmd struct {
	kind cmdType
	name string
	code string
}

// Engine runs at most one script at a time on a single worker goroutine.
// Scripts never touch the device; they send commands to the agent.
type Engine struct {
	scriptsDir string
	commands   core.CommandChannel
	eventBus   *core.EventBus
	status     *core.Status

	cmdChan chan engineCmd
}

// NewEngine creates the engine and starts its worker.
func NewEngine(scriptsDir string, commands core.CommandChannel, eb *core.EventBus, status *core.Status) *Engine {
	e := &Engine{
		scriptsDir: scriptsDir,
		commands:   commands,
		eventBus:   eb,
		status:     status,
		cmdChan:    make(chan engineCmd, 10),
	}
	go e.runLoop()
	return e
}

func (e *Engine) runLoop() {
	var currentCancel context.CancelFunc
	var scriptDone chan struct{}

	for cmd := range e.cmdChan {
		if currentCancel != nil {
			currentCancel()
			select {
			case <-scriptDone:
			case <-time.After(2 * time.Second):
				log.Println("[Lua] Timeout waiting for script to stop")
			}
			currentCancel = nil
			scriptDone = nil
		}

		if cmd.kind == cmdStop {
			continue
		}

		ctx, cancel := context.WithCancel(context.Background())
		currentCancel = cancel
		scriptDone = make(chan struct{})

		go func(cmd engineCmd, ctx context.Context, done chan struct{}) {
			defer close(done)
			switch cmd.kind {
			case cmdRunFile:
				e.execute(ctx, cmd.name, func(L *lua.LState) error { return L.DoFile(cmd.code) })
			case cmdRunString:
				e.execute(ctx, cmd.name, func(L *lua.LState) error { return L.DoString(cmd.code) })
			}
		}(cmd, ctx, scriptDone)
	}
	if currentCancel != nil {
		currentCancel()
	}
}

// Close stops the worker and any running script.
func (e *Engine) Close() {
	close(e.cmdChan)
}

// StopCurrentScript stops the running script, if any.
func (e *Engine) StopCurrentScript() {
	select {
	case e.cmdChan <- engineCmd{kind: cmdStop}:
	default:
		log.Println("[Lua] Command channel full, could not send stop command")
	}
}

// RunScript queues a script file from the scripts directory, replacing the
// running one.
func (e *Engine) RunScript(name string) error {
	path, err := e.ScriptPath(name)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("script '%s': %w", name, err)
	}
	select {
	case e.cmdChan <- engineCmd{kind: cmdRunFile, name: filepath.Base(path), code: path}:
		return nil
	default:
		return fmt.Errorf("script queue full")
	}
}

// ExecuteString queues a one-off chunk of Lua.
func (e *Engine) ExecuteString(code string) error {
	select {
	case e.cmdChan <- engineCmd{kind: cmdRunString, name: "inline", code: code}:
		return nil
	default:
		return fmt.Errorf("script queue full")
	}
}

func sanitizeFilename(name string) (string, error) {
	if !strings.HasSuffix(name, ".lua") {
		return "", fmt.Errorf("filename must end with .lua")
	}
	cleanName := filepath.Base(name)
	if cleanName == "" || cleanName == ".lua" || strings.Contains(cleanName, "..") {
		return "", fmt.Errorf("invalid filename")
	}
	return cleanName, nil
}

// ScriptPath resolves name inside the scripts directory, creating the
// directory on first use.
func (e *Engine) ScriptPath(name string) (string, error) {
	cleanName, err := sanitizeFilename(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(e.scriptsDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create scripts directory: %w", err)
	}
	return filepath.Join(e.scriptsDir, cleanName), nil
}

// ScriptCode returns the source of a script file.
func (e *Engine) ScriptCode(name string) (string, error) {
	path, err := e.ScriptPath(name)
	if err != nil {
		return "", err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

// SaveScript writes code to a script file after checking that it compiles.
func (e *Engine) SaveScript(name, code string) error {
	path, err := e.ScriptPath(name)
	if err != nil {
		return err
	}
	L := lua.NewState()
	defer L.Close()
	if _, err := L.LoadString(code); err != nil {
		return fmt.Errorf("script '%s' does not compile: %w", name, err)
	}
	return os.WriteFile(path, []byte(code), 0644)
}

func (e *Engine) DeleteScript(name string) error {
	path, err := e.ScriptPath(name)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

// ListScripts returns the .lua files in the scripts directory.
func (e *Engine) ListScripts() ([]string, error) {
	scripts := []string{}
	files, err := os.ReadDir(e.scriptsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return scripts, nil
		}
		return nil, err
	}
	for _, file := range files {
		if !file.IsDir() && filepath.Ext(file.Name()) == ".lua" {
			scripts = append(scripts, file.Name())
		}
	}
	return scripts, nil
}

func (e *Engine) setRunning(name string) {
	if e.status != nil {
		e.status.SetRunningScript(name)
	}
	if e.eventBus != nil {
		e.eventBus.Publish(core.Event{Type: core.ScriptChangedEvent, Payload: name})
	}
}

func (e *Engine) execute(ctx context.Context, name string, executor func(*lua.LState) error) {
	log.Printf("[Lua] Starting script '%s'...", name)
	e.setRunning(name)
	defer func() {
		log.Printf("[Lua] Script '%s' finished.", name)
		e.setRunning("")
	}()

	L := lua.NewState()
	defer L.Close()
	L.SetContext(ctx)
	e.registerGoFunctions(L, ctx)

	if err := executor(L); err != nil {
		if ctx.Err() != nil {
			log.Printf("[Lua] Script '%s' was canceled.", name)
		} else {
			log.Printf("[Lua] Error executing script '%s': %v", name, err)
		}
	}
}
