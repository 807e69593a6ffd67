package device

import (
	"fmt"
	"regexp"
	"strings"
)

// Validation constants.
const (
	maxIDLength       = 50
	maxNameLength     = 100
	maxLocationLength = 100
	maxFirmwareLength = 20
	idPattern         = `^[A-Za-z0-9][A-Za-z0-9_.:-]*$`
)

var idRegex = regexp.MustCompile(idPattern)

var validDeviceTypes map[DeviceType]struct{}

func init() {
	validDeviceTypes = make(map[DeviceType]struct{}, len(AllDeviceTypes()))
	for _, t := range AllDeviceTypes() {
		validDeviceTypes[t] = struct{}{}
	}
}

// ValidateDevice checks a device before it is created.
// Returns an error describing the first validation failure found.
func ValidateDevice(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}
	if err := ValidateID(d.ID); err != nil {
		return err
	}
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if !IsValidDeviceType(d.DeviceType) {
		return fmt.Errorf("%w: %q", ErrInvalidDeviceType, d.DeviceType)
	}
	if d.Status != "" {
		if err := ValidateStatus(d.Status); err != nil {
			return err
		}
	}
	if d.Location != nil && len(*d.Location) > maxLocationLength {
		return fmt.Errorf("%w: location exceeds %d characters", ErrInvalidDevice, maxLocationLength)
	}
	if d.FirmwareVersion != nil && len(*d.FirmwareVersion) > maxFirmwareLength {
		return fmt.Errorf("%w: firmware_version exceeds %d characters", ErrInvalidDevice, maxFirmwareLength)
	}
	return nil
}

// ValidateID checks a device ID as sent by firmware in its handshake.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidID)
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("%w: id exceeds %d characters", ErrInvalidID, maxIDLength)
	}
	if !idRegex.MatchString(id) {
		return fmt.Errorf("%w: %q contains invalid characters", ErrInvalidID, id)
	}
	return nil
}

// ValidateName checks that a name is non-blank and within length limits.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if len(trimmed) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateStatus accepts only online and offline.
func ValidateStatus(s Status) error {
	switch s {
	case StatusOnline, StatusOffline:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

// IsValidDeviceType reports whether t is a recognised device type.
func IsValidDeviceType(t DeviceType) bool {
	_, ok := validDeviceTypes[t]
	return ok
}
