package device

import (
	"context"
	"errors"
	"fmt"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is the device catalogue used by the HTTP API and the gateway
// session hooks. It validates writes and keeps device status in step with
// open WebSocket sessions.
//
// All public methods are safe for concurrent use provided the Repository is.
type Registry struct {
	repo   Repository
	logger Logger
}

// NewRegistry creates a new device registry backed by repo.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// GetDevice retrieves a device by ID.
// Returns ErrDeviceNotFound if the device does not exist.
func (r *Registry) GetDevice(ctx context.Context, id string) (*Device, error) {
	return r.repo.GetDevice(ctx, id)
}

// ListDevices retrieves all devices.
func (r *Registry) ListDevices(ctx context.Context) ([]Device, error) {
	return r.repo.ListDevices(ctx)
}

// CreateDevice validates and stores a new device.
func (r *Registry) CreateDevice(ctx context.Context, d *Device) error {
	if err := ValidateDevice(d); err != nil {
		return err
	}
	if err := r.repo.CreateDevice(ctx, d); err != nil {
		return err
	}
	r.logger.Info("device created", "device_id", d.ID, "device_type", d.DeviceType)
	return nil
}

// MarkOnline records that a device opened a session.
func (r *Registry) MarkOnline(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, StatusOnline)
}

// MarkOffline records that a device's session ended.
func (r *Registry) MarkOffline(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, StatusOffline)
}

// setStatus ignores devices that were never registered in the catalogue:
// firmware may connect before an operator has created its record.
func (r *Registry) setStatus(ctx context.Context, id string, status Status) error {
	err := r.repo.UpdateDeviceStatus(ctx, id, status)
	switch {
	case err == nil:
		r.logger.Debug("device status updated", "device_id", id, "status", status)
		return nil
	case errors.Is(err, ErrDeviceNotFound):
		r.logger.Debug("status update for unknown device ignored", "device_id", id, "status", status)
		return nil
	default:
		return fmt.Errorf("setting device %s %s: %w", id, status, err)
	}
}

// RecordCommand logs a command that was handed to the device transport.
func (r *Registry) RecordCommand(ctx context.Context, deviceID, command string, value int) (*CommandRecord, error) {
	return r.repo.RecordCommand(ctx, deviceID, command, value)
}

// ListCommands returns the device's most recent commands, newest first.
func (r *Registry) ListCommands(ctx context.Context, deviceID string, limit int) ([]CommandRecord, error) {
	if _, err := r.repo.GetDevice(ctx, deviceID); err != nil {
		return nil, err
	}
	return r.repo.ListCommands(ctx, deviceID, limit)
}
