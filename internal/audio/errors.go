package audio

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDevice indicates no input device could be opened.
	ErrNoDevice = errors.New("audio: no input device available")
	// ErrDeviceDisconnected indicates the device went away mid-capture.
	ErrDeviceDisconnected = errors.New("audio: input device disconnected")
)

// DeviceError reports a capture failure attributable to the input device.
type DeviceError struct {
	Backend string
	Device  string
	// Kind is ErrNoDevice or ErrDeviceDisconnected.
	Kind  error
	Cause error
}

func (e *DeviceError) Error() string {
	msg := fmt.Sprintf("%s (backend=%s device=%s)", e.Kind, e.Backend, e.Device)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the underlying cause to errors.Is.
func (e *DeviceError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func noDevice(backend, device string, cause error) error {
	return &DeviceError{Backend: backend, Device: device, Kind: ErrNoDevice, Cause: cause}
}

func disconnected(backend, device string, cause error) error {
	return &DeviceError{Backend: backend, Device: device, Kind: ErrDeviceDisconnected, Cause: cause}
}
