package serialmux

import (
	"bytes"
	"errors"
	"sync"

	"go.bug.st/serial"
)

var errPortClosed = errors.New("serial port closed")

// MockPort is an in-memory bridge. Reads block until a line is fed with
// AddReadData or the port is closed, like a quiet serial device.
type MockPort struct {
	mu      sync.Mutex
	cond    *sync.Cond
	in, out bytes.Buffer

	// WriteError fails the next Write.
	WriteError error
	Closed     bool
}

func NewMockPort() *MockPort {
	p := &MockPort{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *MockPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.Closed && p.in.Len() == 0 {
		p.cond.Wait()
	}
	if p.Closed {
		return 0, errPortClosed
	}
	return p.in.Read(b)
}

func (p *MockPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Closed {
		return 0, errPortClosed
	}
	if err := p.WriteError; err != nil {
		p.WriteError = nil
		return 0, err
	}
	return p.out.Write(b)
}

func (p *MockPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	p.cond.Broadcast()
	return nil
}

// AddReadData queues bytes for the reader.
func (p *MockPort) AddReadData(b []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.in.Write(b)
	p.cond.Broadcast()
}

// GetWrittenData returns a copy of everything written so far.
func (p *MockPort) GetWrittenData() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return bytes.Clone(p.out.Bytes())
}

// MockOpener is a PortOpener that hands out a fixed port and records what
// was asked for.
type MockOpener struct {
	mu sync.Mutex

	Port  SerialPorter
	Error error

	Paths []string
	Modes []*serial.Mode
}

// Open implements PortOpener.
func (o *MockOpener) Open(path string, mode *serial.Mode) (SerialPorter, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.Paths = append(o.Paths, path)
	o.Modes = append(o.Modes, mode)
	if o.Error != nil {
		return nil, o.Error
	}
	return o.Port, nil
}
