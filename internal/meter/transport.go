package meter

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/goburrow/modbus"

	"github.com/nerrad567/rx380-logger/internal/infrastructure/config"
)

// Transport is one open Modbus handle.
//
// ReadInputRegisters issues exactly one function code 4 request and returns
// the response as 16-bit words in wire order.
type Transport interface {
	ReadInputRegisters(ctx context.Context, address, quantity uint16) ([]uint16, error)
	Close() error
}

// TransportFactory opens a new Transport.
type TransportFactory func() (Transport, error)

// handler is the subset of the goburrow handlers used to manage a link.
type handler interface {
	modbus.ClientHandler
	Connect() error
	Close() error
}

// sharedLink reference-counts one goburrow handler.
// The RTU handler serialises frames internally, so every pooled handle on a
// serial line shares it.
type sharedLink struct {
	mu      sync.Mutex
	handler handler
	client  modbus.Client
	refs    int
}

func (l *sharedLink) acquire() (modbus.Client, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.refs == 0 {
		if err := l.handler.Connect(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConnectFailed, err)
		}
	}
	l.refs++
	return l.client, nil
}

func (l *sharedLink) release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.refs == 0 {
		return nil
	}
	l.refs--
	if l.refs == 0 {
		return l.handler.Close()
	}
	return nil
}

// ModbusTransport is a Transport backed by goburrow/modbus.
type ModbusTransport struct {
	client modbus.Client
	link   *sharedLink
	once   sync.Once
}

// ReadInputRegisters reads quantity input registers starting at address.
//
// goburrow calls do not take a context, so ctx is only checked before the
// request is sent. The handler timeout bounds the request itself.
func (t *ModbusTransport) ReadInputRegisters(ctx context.Context, address, quantity uint16) ([]uint16, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := t.client.ReadInputRegisters(address, quantity)
	if err != nil {
		return nil, err
	}
	return decodeWords(raw, quantity)
}

// Close releases the handle. The underlying link closes with its last handle.
func (t *ModbusTransport) Close() error {
	var err error
	t.once.Do(func() {
		err = t.link.release()
	})
	return err
}

// decodeWords splits a big-endian register payload into words.
func decodeWords(raw []byte, quantity uint16) ([]uint16, error) {
	if len(raw) < int(quantity)*2 {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrShortResponse, len(raw), int(quantity)*2)
	}
	words := make([]uint16, quantity)
	for i := range words {
		words[i] = binary.BigEndian.Uint16(raw[i*2:])
	}
	return words, nil
}

// NewModbusFactory returns a factory for the link described by cfg.
//
// In RTU mode every handle shares one serial handler. In TCP mode every
// handle opens its own connection.
//
// Parameters:
//   - cfg: Meter configuration (mode, serial settings or TCP address, slave id, timeout)
//
// Returns:
//   - TransportFactory: Opens one handle per call
func NewModbusFactory(cfg config.MeterConfig) TransportFactory {
	if cfg.Mode == "tcp" {
		return func() (Transport, error) {
			return openLink(newTCPHandler(cfg))
		}
	}

	link := &sharedLink{handler: newRTUHandler(cfg)}
	link.client = modbus.NewClient(link.handler)
	return func() (Transport, error) {
		client, err := link.acquire()
		if err != nil {
			return nil, err
		}
		return &ModbusTransport{client: client, link: link}, nil
	}
}

func openLink(h handler) (Transport, error) {
	link := &sharedLink{handler: h, client: modbus.NewClient(h)}
	client, err := link.acquire()
	if err != nil {
		return nil, err
	}
	return &ModbusTransport{client: client, link: link}, nil
}

func newRTUHandler(cfg config.MeterConfig) *modbus.RTUClientHandler {
	h := modbus.NewRTUClientHandler(cfg.RTUDevice)
	h.BaudRate = cfg.RTUBaud
	h.DataBits = cfg.DataBits
	h.Parity = cfg.Parity
	h.StopBits = cfg.StopBits
	h.SlaveId = byte(cfg.SlaveID)
	h.Timeout = cfg.Timeout
	return h
}

func newTCPHandler(cfg config.MeterConfig) *modbus.TCPClientHandler {
	h := modbus.NewTCPClientHandler(net.JoinHostPort(cfg.TCPHost, strconv.Itoa(cfg.TCPPort)))
	h.SlaveId = byte(cfg.SlaveID)
	h.Timeout = cfg.Timeout
	return h
}
