package adc

import (
	"context"
	"fmt"
	"sync"

	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/conn/spi"
	"periph.io/x/periph/conn/spi/spireg"
	"periph.io/x/periph/host"
)

// MCP3008 reads one single-ended channel of an MCP3008 over SPI.
type MCP3008 struct {
	mu      sync.Mutex
	port    spi.PortCloser
	conn    spi.Conn
	channel uint8
}

// OpenMCP3008 opens the SPI port (e.g. "/dev/spidev0.0", or "" for the
// first available) and selects channel 0-7.
func OpenMCP3008(port string, channel uint8) (*MCP3008, error) {
	if channel > 7 {
		return nil, fmt.Errorf("mcp3008: channel %d out of range", channel)
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph: %w", err)
	}
	p, err := spireg.Open(port)
	if err != nil {
		return nil, fmt.Errorf("open spi port %q: %w", port, err)
	}
	c, err := p.Connect(physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("connect spi: %w", err)
	}
	return &MCP3008{port: p, conn: c, channel: channel}, nil
}

// Convert performs one conversion. The SPI transaction is synchronous, so
// cancellation is only checked before it starts.
func (m *MCP3008) Convert(ctx context.Context) (uint16, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	w := request(m.channel)
	r := make([]byte, len(w))
	if err := m.conn.Tx(w, r); err != nil {
		return 0, fmt.Errorf("mcp3008 tx: %w", err)
	}
	return decode(r), nil
}

// Close releases the SPI port.
func (m *MCP3008) Close() error {
	return m.port.Close()
}

// request builds the start bit, single-ended mode and channel select.
func request(channel uint8) []byte {
	return []byte{0x01, 0x80 | channel<<4, 0x00}
}

// decode extracts the 10-bit result from the last two bytes.
func decode(r []byte) uint16 {
	return uint16(r[1]&0x03)<<8 | uint16(r[2])
}
