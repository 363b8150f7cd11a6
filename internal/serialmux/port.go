package serialmux

import (
	"io"

	"go.bug.st/serial"
)

// SerialPorter is the minimal interface needed for a serial port, so the
// mux can run over an in-memory port in tests.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// PortOpener opens the device at path. OpenSerial is the real one.
type PortOpener func(path string, mode *serial.Mode) (SerialPorter, error)

// OpenSerial opens a hardware serial port.
func OpenSerial(path string, mode *serial.Mode) (SerialPorter, error) {
	return serial.Open(path, mode)
}
