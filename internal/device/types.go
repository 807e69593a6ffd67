package device

import "time"

// Device is a field controller known to the gateway.
// This matches migrations/20260211_160000_create_devices.up.sql.
type Device struct {
	ID              string     `json:"device_id"`
	DeviceType      DeviceType `json:"device_type"`
	Name            string     `json:"name"`
	Location        *string    `json:"location,omitempty"`
	FirmwareVersion *string    `json:"firmware_version,omitempty"`

	// Status is maintained by the gateway: online while a session is open.
	Status   Status     `json:"status"`
	LastSeen *time.Time `json:"last_seen,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeviceType classifies the controller firmware.
type DeviceType string

// Device types flashed onto the ESP32 controllers.
const (
	DeviceTypeLighting      DeviceType = "lighting_controller"
	DeviceTypeEnvironmental DeviceType = "environmental_sensor"
	DeviceTypeDoor          DeviceType = "door_controller"
	DeviceTypeGeneric       DeviceType = "generic"
)

// AllDeviceTypes returns every recognised device type.
func AllDeviceTypes() []DeviceType {
	return []DeviceType{
		DeviceTypeLighting,
		DeviceTypeEnvironmental,
		DeviceTypeDoor,
		DeviceTypeGeneric,
	}
}

// Status is the connectivity status recorded for a device.
type Status string

// Device statuses.
const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// CommandRecord is one entry of a device's command log.
type CommandRecord struct {
	ID       string    `json:"id"`
	DeviceID string    `json:"device_id"`
	Command  string    `json:"command"`
	Value    int       `json:"value"`
	IssuedAt time.Time `json:"issued_at"`
}
