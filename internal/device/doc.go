// Package device is the persistent catalogue of field controllers.
//
// It stores each controller's identity and connectivity status in SQLite
// together with a log of the commands sent to it. The real-time view of a
// device (its latest telemetry) lives in the gateway's state cache; this
// package only holds what must survive a restart.
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.DB)
//	registry := device.NewRegistry(repo)
//	registry.SetLogger(log)
//
//	err := registry.CreateDevice(ctx, &device.Device{
//	    ID:         "esp32-lighting-01",
//	    DeviceType: device.DeviceTypeLighting,
//	    Name:       "Hallway lights",
//	})
//
//	// Called from the gateway session hooks.
//	registry.MarkOnline(ctx, "esp32-lighting-01")
//
// The schema is defined in migrations/20260211_160000_create_devices.up.sql.
package device
