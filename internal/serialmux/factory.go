package serialmux

import (
	"fmt"

	"go.bug.st/serial"
)

// BridgeBaudRate is the ground-station bridge's default line rate.
const BridgeBaudRate = 115200

// BridgeMode returns the bridge's framing at baud: 8 data bits, no parity,
// one stop bit. The bridge firmware does not negotiate any other framing.
func BridgeMode(baud int) *serial.Mode {
	return &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// NewRealSerialMux opens the bridge at path and wraps it in a SerialMux.
func NewRealSerialMux(path string, baud int) (*SerialMux[SerialPorter], error) {
	return Open(path, baud, OpenSerial)
}

// Open is NewRealSerialMux with a replaceable opener.
func Open(path string, baud int, open PortOpener) (*SerialMux[SerialPorter], error) {
	if path == "" {
		return nil, fmt.Errorf("serial port path is required")
	}
	if baud <= 0 {
		return nil, fmt.Errorf("invalid baud rate %d", baud)
	}
	port, err := open(path, BridgeMode(baud))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return NewSerialMux[SerialPorter](port), nil
}
