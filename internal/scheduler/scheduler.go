package scheduler

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"playbulb-controller/internal/core"
	"playbulb-controller/internal/protocol"

	"github.com/robfig/cron/v3"
)

// ScheduleEntry defines the structure for a saved schedule.
type ScheduleEntry struct {
	ID      int    `json:"id"`
	Spec    string `json:"spec"`
	Command string `json:"command"`
}

// Scheduler turns cron entries into agent commands.
type Scheduler struct {
	cron           *cron.Cron
	store          map[cron.EntryID]ScheduleEntry
	commandChannel core.CommandChannel
	mu             sync.RWMutex
	schedulesFile  string
}

// NewScheduler creates a scheduler and loads schedulesFile if it exists.
func NewScheduler(cmdChan core.CommandChannel, schedulesFile string) *Scheduler {
	s := &Scheduler{
		cron:           cron.New(),
		store:          make(map[cron.EntryID]ScheduleEntry),
		commandChannel: cmdChan,
		schedulesFile:  schedulesFile,
	}
	s.load()
	return s
}

// Start begins the cron job ticker.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Println("[Scheduler] Started.")
}

// Stop halts the cron job ticker and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Println("[Scheduler] Stopped.")
}

// Add validates command, registers it under the cron spec and persists the
// schedule list.
func (s *Scheduler) Add(spec, command string) (int, error) {
	if _, err := ParseCommand(command); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(spec, func() { s.execute(command) })
	if err != nil {
		return 0, fmt.Errorf("invalid cron spec '%s': %w", spec, err)
	}
	s.store[id] = ScheduleEntry{ID: int(id), Spec: spec, Command: command}
	s.save()
	log.Printf("[Scheduler] Added schedule (ID %d): %s -> %s", id, spec, command)
	return int(id), nil
}

// Remove deletes a cron job. It reports false for unknown ids.
func (s *Scheduler) Remove(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID := cron.EntryID(id)
	if _, ok := s.store[entryID]; !ok {
		return false
	}
	s.cron.Remove(entryID)
	delete(s.store, entryID)
	s.save()
	log.Printf("[Scheduler] Removed schedule (ID %d)", id)
	return true
}

// Entries returns the schedules ordered by id.
func (s *Scheduler) Entries() []ScheduleEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ScheduleEntry, 0, len(s.store))
	for _, e := range s.store {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Scheduler) execute(command string) {
	cmd, err := ParseCommand(command)
	if err != nil {
		log.Printf("[Scheduler] Skipping '%s': %v", command, err)
		return
	}
	log.Printf("[Scheduler] Executing: %s", command)
	s.commandChannel <- cmd
}

// ParseCommand maps a schedule line to an agent command:
//
//	color W R G B | color #WWRRGGBB
//	effect NAME [DELAY]
//	off
//	refresh
//	script NAME.lua
//	stop
func ParseCommand(line string) (core.Command, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return core.Command{}, fmt.Errorf("empty command")
	}
	args := parts[1:]
	switch strings.ToLower(parts[0]) {
	case "color":
		var color string
		switch len(args) {
		case 1:
			color = args[0]
		case 4:
			color = strings.Join(args, ",")
		default:
			return core.Command{}, fmt.Errorf("color: want 'color W R G B' or 'color #WWRRGGBB'")
		}
		if _, err := protocol.ParseColor(color); err != nil {
			return core.Command{}, err
		}
		return core.Command{Type: core.CmdSetColor, Payload: map[string]interface{}{"color": color}}, nil
	case "off":
		return core.Command{Type: core.CmdSetColor, Payload: map[string]interface{}{"color": "0,0,0,0"}}, nil
	case "effect":
		if len(args) < 1 || len(args) > 2 {
			return core.Command{}, fmt.Errorf("effect: want 'effect NAME [DELAY]'")
		}
		if _, ok := protocol.ParseEffectType(args[0]); !ok {
			return core.Command{}, fmt.Errorf("effect: unknown effect '%s'", args[0])
		}
		payload := map[string]interface{}{"effect": args[0]}
		if len(args) == 2 {
			delay, err := strconv.ParseUint(args[1], 10, 8)
			if err != nil {
				return core.Command{}, fmt.Errorf("effect: invalid delay '%s'", args[1])
			}
			payload["delay"] = int(delay)
		}
		return core.Command{Type: core.CmdSetEffect, Payload: payload}, nil
	case "refresh":
		return core.Command{Type: core.CmdRefresh}, nil
	case "script":
		if len(args) != 1 {
			return core.Command{}, fmt.Errorf("script: want 'script NAME.lua'")
		}
		return core.Command{Type: core.CmdRunScript, Payload: map[string]interface{}{"name": args[0]}}, nil
	case "stop":
		return core.Command{Type: core.CmdStopScript}, nil
	}
	return core.Command{}, fmt.Errorf("unknown command '%s'", parts[0])
}

func (s *Scheduler) save() {
	entries := make([]ScheduleEntry, 0, len(s.store))
	for _, e := range s.store {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		log.Printf("[Scheduler] Error marshalling schedules: %v", err)
		return
	}
	if err := os.WriteFile(s.schedulesFile, data, 0644); err != nil {
		log.Printf("[Scheduler] Error writing '%s': %v", s.schedulesFile, err)
	}
}

func (s *Scheduler) load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.schedulesFile)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[Scheduler] Error reading schedule file: %v", err)
		}
		return
	}

	var entries []ScheduleEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Printf("[Scheduler] Error unmarshalling schedule file: %v", err)
		return
	}

	log.Printf("[Scheduler] Loading %d schedules from '%s'...", len(entries), s.schedulesFile)
	for _, entry := range entries {
		command := entry.Command
		if _, err := ParseCommand(command); err != nil {
			log.Printf("[Scheduler] Dropping saved schedule '%s': %v", command, err)
			continue
		}
		newID, err := s.cron.AddFunc(entry.Spec, func() { s.execute(command) })
		if err != nil {
			log.Printf("[Scheduler] Error re-adding schedule from file: %v", err)
			continue
		}
		s.store[newID] = ScheduleEntry{ID: int(newID), Spec: entry.Spec, Command: command}
	}
}
