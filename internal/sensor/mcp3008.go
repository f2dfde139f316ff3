package sensor

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// InvalidChannel is returned by ReadChannel for a channel outside 0-7.
const InvalidChannel = -1

// MCP3008 is an 8-channel 10-bit SPI ADC.
type MCP3008 struct {
	mu   sync.Mutex
	conn spi.Conn
	port spi.PortCloser
}

// OpenMCP3008 opens an SPI port (empty name picks the first) at speedHz.
func OpenMCP3008(port string, speedHz int64) (*MCP3008, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init host drivers: %w", err)
	}

	p, err := spireg.Open(port)
	if err != nil {
		return nil, fmt.Errorf("open spi port %q: %w", port, err)
	}

	adc, err := NewMCP3008(p, physic.Frequency(speedHz)*physic.Hertz)
	if err != nil {
		p.Close()
		return nil, err
	}
	return adc, nil
}

// NewMCP3008 connects to the ADC on an already opened port.
func NewMCP3008(p spi.PortCloser, speed physic.Frequency) (*MCP3008, error) {
	c, err := p.Connect(speed, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("connect spi: %w", err)
	}
	return &MCP3008{conn: c, port: p}, nil
}

// ReadChannel returns the raw count of a single-ended channel, or
// InvalidChannel when ch is outside 0-7.
func (m *MCP3008) ReadChannel(ch int) (int, error) {
	if ch < 0 || ch > 7 {
		return InvalidChannel, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// start bit, single-ended + channel in the high nibble, padding
	w := []byte{1, byte(8+ch) << 4, 0}
	r := make([]byte, 3)
	if err := m.conn.Tx(w, r); err != nil {
		return 0, fmt.Errorf("spi transfer: %w", err)
	}
	return int(r[1]&3)<<8 + int(r[2]), nil
}

// Close releases the SPI port.
func (m *MCP3008) Close() error {
	return m.port.Close()
}

// GasChannel reads an MQ-2 gas sensor wired to one ADC channel.
type GasChannel struct {
	ADC     *MCP3008
	Channel int
}

// ReadGas returns the gas level on the 0-1000 scale.
func (g GasChannel) ReadGas() (float64, error) {
	count, err := g.ADC.ReadChannel(g.Channel)
	if err != nil {
		return 0, err
	}
	return VoltageToLevel(CountToVoltage(count)), nil
}
