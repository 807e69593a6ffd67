package device

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"simple", "esp32-001", false},
		{"mac style", "esp32:aa:bb:cc", false},
		{"underscore and dot", "lights_1.hall", false},
		{"empty", "", true},
		{"leading dash", "-esp32", true},
		{"space", "esp 32", true},
		{"slash", "esp/32", true},
		{"too long", strings.Repeat("a", maxIDLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidID) {
				t.Errorf("error should wrap ErrInvalidID, got %v", err)
			}
		})
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", "Hallway lights", false},
		{"blank", "   ", true},
		{"too long", strings.Repeat("n", maxNameLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateName(tt.input); (err != nil) != tt.wantErr {
				t.Errorf("ValidateName() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateDevice(t *testing.T) {
	longLocation := strings.Repeat("l", maxLocationLength+1)
	longFirmware := strings.Repeat("1", maxFirmwareLength+1)

	tests := []struct {
		name    string
		device  *Device
		wantErr error
	}{
		{"valid", testDevice("esp32-001", "Hallway"), nil},
		{"nil", nil, ErrInvalidDevice},
		{"unknown type", &Device{ID: "a", Name: "A", DeviceType: "kettle"}, ErrInvalidDeviceType},
		{"bad status", &Device{ID: "a", Name: "A", DeviceType: DeviceTypeDoor, Status: "sleeping"}, ErrInvalidStatus},
		{"long location", &Device{ID: "a", Name: "A", DeviceType: DeviceTypeGeneric, Location: &longLocation}, ErrInvalidDevice},
		{"long firmware", &Device{ID: "a", Name: "A", DeviceType: DeviceTypeGeneric, FirmwareVersion: &longFirmware}, ErrInvalidDevice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDevice(tt.device)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateDevice() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateDevice() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsValidDeviceType(t *testing.T) {
	for _, dt := range AllDeviceTypes() {
		if !IsValidDeviceType(dt) {
			t.Errorf("IsValidDeviceType(%q) = false", dt)
		}
	}
	if IsValidDeviceType("") {
		t.Error("empty device type should be invalid")
	}
}
