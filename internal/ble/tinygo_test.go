package ble

import (
	"errors"
	"testing"
)

type fakeCharacteristic struct {
	err   error
	value []byte
}

func (c *fakeCharacteristic) Read(data []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	return copy(data, c.value), nil
}

func (c *fakeCharacteristic) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	c.value = append([]byte(nil), p...)
	return len(p), nil
}

func TestTinyGoFailedWriteMarksDisconnected(t *testing.T) {
	d := &tinygoDevice{connected: true}
	a := &tinygoAttribute{uuid: CharColor, char: &fakeCharacteristic{err: errors.New("link lost")}, dev: d}

	if err := a.WriteValue([]byte{0, 255, 0, 0}); err == nil {
		t.Fatal("write should fail")
	}
	if d.IsConnected() {
		t.Error("device still reports connected after a failed write")
	}
	if d.IsServicesResolved() {
		t.Error("services still resolved after a failed write")
	}
}

func TestTinyGoFailedReadMarksDisconnected(t *testing.T) {
	d := &tinygoDevice{connected: true}
	a := &tinygoAttribute{uuid: CharColor, char: &fakeCharacteristic{err: errors.New("link lost")}, dev: d}

	if _, err := a.ReadValue(); err == nil {
		t.Fatal("read should fail")
	}
	if d.IsConnected() {
		t.Error("device still reports connected after a failed read")
	}
}

func TestTinyGoIOKeepsConnection(t *testing.T) {
	d := &tinygoDevice{connected: true}
	a := &tinygoAttribute{uuid: CharColor, char: &fakeCharacteristic{}, dev: d}

	if err := a.WriteValue([]byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	got, err := a.ReadValue()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 || got[3] != 4 {
		t.Errorf("read = %v, want [1 2 3 4]", got)
	}
	if !d.IsConnected() {
		t.Error("successful I/O dropped the connection")
	}
}
