package core

import (
	"testing"

	"playbulb-controller/internal/device"
)

func TestEventBusDelivery(t *testing.T) {
	eb := NewEventBus()
	links := eb.Subscribe(LinkChangedEvent)
	all := eb.Subscribe(LinkChangedEvent, ScriptChangedEvent)

	eb.Publish(Event{Type: LinkChangedEvent, Payload: LinkStatus{State: "ready", Connected: true}})
	eb.Publish(Event{Type: ScriptChangedEvent, Payload: "sunrise.lua"})

	if len(links) != 1 || len(all) != 2 {
		t.Fatalf("queued = %d, %d", len(links), len(all))
	}

	eb.Unsubscribe(links, LinkChangedEvent)
	eb.Publish(Event{Type: LinkChangedEvent})
	if len(links) != 1 {
		t.Errorf("unsubscribed channel received an event")
	}
}

func TestEventBusDropsWhenFull(t *testing.T) {
	eb := NewEventBus()
	sub := eb.Subscribe(DeviceStateEvent)
	for i := 0; i < cap(sub)+10; i++ {
		eb.Publish(Event{Type: DeviceStateEvent})
	}
	if len(sub) != cap(sub) {
		t.Errorf("queued = %d, want %d", len(sub), cap(sub))
	}
}

func TestStatus(t *testing.T) {
	s := NewStatus("AA:BB:CC:DD:EE:FF")
	if s.Link().State != "idle" || s.Device() != nil {
		t.Fatalf("initial status = %+v", s.Link())
	}
	link := s.SetLink("ready", true)
	if link.Address != "AA:BB:CC:DD:EE:FF" || !link.Connected {
		t.Errorf("link = %+v", link)
	}

	name := "PLAYBULB"
	snap := device.Snapshot{Address: link.Address, Name: &name}
	s.SetDevice(snap)
	snap.Address = "changed"
	if s.Device().Address != "AA:BB:CC:DD:EE:FF" {
		t.Error("status shares the caller's snapshot")
	}
}

func TestPayloadAccessors(t *testing.T) {
	cmd := Command{Type: CmdSetTimer, Payload: map[string]interface{}{
		"id":     float64(5),
		"hour":   -1,
		"minute": uint8(30),
		"big":    float64(300),
		"type":   "wakeup",
	}}

	if v, err := cmd.Int("id"); err != nil || v != 5 {
		t.Errorf("Int(id) = %d, %v", v, err)
	}
	if v, err := cmd.Int("hour"); err != nil || v != -1 {
		t.Errorf("Int(hour) = %d, %v", v, err)
	}
	if v, err := cmd.Byte("minute"); err != nil || v != 30 {
		t.Errorf("Byte(minute) = %d, %v", v, err)
	}
	if _, err := cmd.Byte("big"); err == nil {
		t.Error("Byte(big) should be out of range")
	}
	if _, err := cmd.Int("type"); err == nil {
		t.Error("Int(type) should reject a string")
	}
	if v, err := cmd.OptionalByte("runtime", 7); err != nil || v != 7 {
		t.Errorf("OptionalByte default = %d, %v", v, err)
	}
	if v, err := cmd.OptionalString("color"); err != nil || v != "" {
		t.Errorf("OptionalString = %q, %v", v, err)
	}
	if _, err := cmd.String("color"); err == nil {
		t.Error("String(color) should report missing")
	}
}
