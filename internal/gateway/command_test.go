package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestCommandConstructors(t *testing.T) {
	tests := []struct {
		name      string
		build     func() (Command, error)
		wantName  string
		wantValue int
		wantErr   bool
	}{
		{"dimmer min", func() (Command, error) { return DimmerCommand("l", 0) }, "dimmer", 0, false},
		{"dimmer max", func() (Command, error) { return DimmerCommand("l", 100) }, "dimmer", 100, false},
		{"dimmer too high", func() (Command, error) { return DimmerCommand("l", 101) }, "", 0, true},
		{"dimmer negative", func() (Command, error) { return DimmerCommand("l", -1) }, "", 0, true},
		{"relay 1 on", func() (Command, error) { return RelayCommand("l", 1, true) }, "relay1", 1, false},
		{"relay 4 off", func() (Command, error) { return RelayCommand("l", 4, false) }, "relay4", 0, false},
		{"relay 0", func() (Command, error) { return RelayCommand("l", 0, true) }, "", 0, true},
		{"relay 5", func() (Command, error) { return RelayCommand("l", 5, true) }, "", 0, true},
		{"daylight on", func() (Command, error) { return DaylightHarvestCommand("l", true) }, "daylight_harvest", 1, false},
		{"daylight off", func() (Command, error) { return DaylightHarvestCommand("l", false) }, "daylight_harvest", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := tt.build()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCommand) {
					t.Fatalf("error = %v, want ErrInvalidCommand", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cmd.Name != tt.wantName || cmd.Value != tt.wantValue {
				t.Errorf("got %s=%v, want %s=%d", cmd.Name, cmd.Value, tt.wantName, tt.wantValue)
			}
		})
	}
}

func TestDispatcher_SendCommand(t *testing.T) {
	r := NewRegistry()
	d := NewDispatcher(r)
	conn := newFakeConn()
	r.RegisterDevice("lamp-1", conn)

	cmd, _ := DimmerCommand("lamp-1", 75)
	if err := d.SendCommand(context.Background(), cmd); err != nil {
		t.Fatalf("SendCommand() error = %v", err)
	}

	frames := conn.sentFrames()
	if len(frames) != 1 {
		t.Fatalf("sent %d frames, want exactly 1", len(frames))
	}
	var got map[string]any
	if err := json.Unmarshal(frames[0], &got); err != nil {
		t.Fatal(err)
	}
	if got["command"] != "dimmer" || got["value"] != 75.0 || len(got) != 2 {
		t.Errorf("wire frame = %v, want {command:dimmer value:75}", got)
	}
}

func TestDispatcher_SendCommand_Offline(t *testing.T) {
	d := NewDispatcher(NewRegistry())
	cmd, _ := RelayCommand("ghost", 1, true)

	err := d.SendCommand(context.Background(), cmd)
	if !errors.Is(err, ErrDeviceOffline) {
		t.Fatalf("error = %v, want ErrDeviceOffline", err)
	}
	if errors.Is(err, ErrTransportSend) {
		t.Error("offline error should not claim a transport failure")
	}
}

func TestGateway_SendCommand_OfflineLeavesCacheUnchanged(t *testing.T) {
	g := New(Options{})
	g.Registry().RegisterDevice("dev-1", newFakeConn())

	cmd, _ := DimmerCommand("dev-2", 40)
	if err := g.SendCommand(context.Background(), cmd); !errors.Is(err, ErrDeviceOffline) {
		t.Fatalf("error = %v, want ErrDeviceOffline", err)
	}

	if _, ok := g.Cache().Get("dev-2"); ok {
		t.Error("offline command created a cache entry")
	}
	if n := g.Cache().Len(); n != 0 {
		t.Errorf("Cache().Len() = %d, want 0", n)
	}
}

func TestDispatcher_SendCommand_TransportFailureEvicts(t *testing.T) {
	r := NewRegistry()
	d := NewDispatcher(r)
	conn := newFakeConn()
	conn.failSends(errors.New("connection reset"))
	r.RegisterDevice("lamp-1", conn)

	cmd, _ := DaylightHarvestCommand("lamp-1", true)
	err := d.SendCommand(context.Background(), cmd)

	if !errors.Is(err, ErrDeviceOffline) || !errors.Is(err, ErrTransportSend) {
		t.Fatalf("error = %v, want both ErrDeviceOffline and ErrTransportSend", err)
	}
	if r.IsOnline("lamp-1") {
		t.Error("device should be evicted after send failure")
	}
	if !conn.isClosed() {
		t.Error("connection should be closed after send failure")
	}
}

func TestDispatcher_SendCommand_Invalid(t *testing.T) {
	d := NewDispatcher(NewRegistry())

	err := d.SendCommand(context.Background(), Command{DeviceID: "lamp-1"})
	if !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("error = %v, want ErrInvalidCommand", err)
	}
}

func TestDispatcher_SendCommand_CancelledContext(t *testing.T) {
	r := NewRegistry()
	conn := newFakeConn()
	r.RegisterDevice("lamp-1", conn)
	d := NewDispatcher(r)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cmd, _ := DimmerCommand("lamp-1", 10)
	if err := d.SendCommand(ctx, cmd); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if len(conn.sentFrames()) != 0 {
		t.Error("cancelled command should not be sent")
	}
}
