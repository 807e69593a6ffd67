package device

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// MockRepository is a test implementation of Repository.
type MockRepository struct {
	mu       sync.Mutex
	devices  map[string]*Device
	commands []CommandRecord

	// For testing error paths
	updateStatusErr error
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		devices: make(map[string]*Device),
	}
}

func (m *MockRepository) GetDevice(_ context.Context, id string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.devices[id]; ok {
		cpy := *d
		return &cpy, nil
	}
	return nil, ErrDeviceNotFound
}

func (m *MockRepository) ListDevices(_ context.Context) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	devices := make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		devices = append(devices, *d)
	}
	return devices, nil
}

func (m *MockRepository) CreateDevice(_ context.Context, d *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.devices[d.ID]; ok {
		return ErrDeviceExists
	}
	if d.Status == "" {
		d.Status = StatusOffline
	}
	cpy := *d
	m.devices[d.ID] = &cpy
	return nil
}

func (m *MockRepository) UpdateDeviceStatus(_ context.Context, id string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updateStatusErr != nil {
		return m.updateStatusErr
	}
	d, ok := m.devices[id]
	if !ok {
		return ErrDeviceNotFound
	}
	d.Status = status
	return nil
}

func (m *MockRepository) RecordCommand(_ context.Context, deviceID, command string, value int) (*CommandRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.devices[deviceID]; !ok {
		return nil, ErrDeviceNotFound
	}
	rec := CommandRecord{ID: command, DeviceID: deviceID, Command: command, Value: value}
	m.commands = append(m.commands, rec)
	return &rec, nil
}

func (m *MockRepository) ListCommands(_ context.Context, deviceID string, _ int) ([]CommandRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []CommandRecord
	for _, c := range m.commands {
		if c.DeviceID == deviceID {
			out = append(out, c)
		}
	}
	return out, nil
}

// ===== CreateDevice =====

func TestRegistry_CreateDevice(t *testing.T) {
	repo := NewMockRepository()
	reg := NewRegistry(repo)
	ctx := context.Background()

	if err := reg.CreateDevice(ctx, testDevice("esp32-001", "Hallway")); err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}

	tests := []struct {
		name    string
		device  *Device
		wantErr error
	}{
		{"nil device", nil, ErrInvalidDevice},
		{"duplicate", testDevice("esp32-001", "Again"), ErrDeviceExists},
		{"missing name", testDevice("esp32-002", "  "), ErrInvalidName},
		{"bad type", &Device{ID: "esp32-003", Name: "X", DeviceType: "toaster"}, ErrInvalidDeviceType},
		{"bad id", testDevice("has space", "X"), ErrInvalidID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.CreateDevice(ctx, tt.device)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CreateDevice() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// ===== Status tracking =====

func TestRegistry_MarkOnlineOffline(t *testing.T) {
	repo := NewMockRepository()
	reg := NewRegistry(repo)
	ctx := context.Background()

	if err := reg.CreateDevice(ctx, testDevice("esp32-001", "Hallway")); err != nil {
		t.Fatal(err)
	}

	if err := reg.MarkOnline(ctx, "esp32-001"); err != nil {
		t.Fatalf("MarkOnline() error = %v", err)
	}
	d, _ := reg.GetDevice(ctx, "esp32-001")
	if d.Status != StatusOnline {
		t.Errorf("Status = %q, want online", d.Status)
	}

	if err := reg.MarkOffline(ctx, "esp32-001"); err != nil {
		t.Fatalf("MarkOffline() error = %v", err)
	}
	d, _ = reg.GetDevice(ctx, "esp32-001")
	if d.Status != StatusOffline {
		t.Errorf("Status = %q, want offline", d.Status)
	}
}

func TestRegistry_MarkOnline_UnknownDeviceIgnored(t *testing.T) {
	reg := NewRegistry(NewMockRepository())

	if err := reg.MarkOnline(context.Background(), "never-registered"); err != nil {
		t.Errorf("MarkOnline() error = %v, want nil", err)
	}
}

func TestRegistry_MarkOnline_RepositoryError(t *testing.T) {
	repo := NewMockRepository()
	repo.updateStatusErr = errors.New("disk full")
	reg := NewRegistry(repo)

	err := reg.MarkOnline(context.Background(), "esp32-001")
	if err == nil {
		t.Fatal("MarkOnline() should surface repository errors")
	}
	if !errors.Is(err, repo.updateStatusErr) {
		t.Errorf("error = %v, want wrapped repository error", err)
	}
}

// ===== Commands =====

func TestRegistry_ListCommands_UnknownDevice(t *testing.T) {
	reg := NewRegistry(NewMockRepository())

	_, err := reg.ListCommands(context.Background(), "missing", 10)
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("ListCommands() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestRegistry_RecordAndListCommands(t *testing.T) {
	reg := NewRegistry(NewMockRepository())
	ctx := context.Background()

	if err := reg.CreateDevice(ctx, testDevice("esp32-001", "Hallway")); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.RecordCommand(ctx, "esp32-001", "dimmer", 40); err != nil {
		t.Fatalf("RecordCommand() error = %v", err)
	}

	records, err := reg.ListCommands(ctx, "esp32-001", 10)
	if err != nil {
		t.Fatalf("ListCommands() error = %v", err)
	}
	if len(records) != 1 || records[0].Value != 40 {
		t.Errorf("records = %+v, want one dimmer 40", records)
	}
}
