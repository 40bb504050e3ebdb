package plugins

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// frameSize is one LMS7002M SPI transaction: a 16-bit command word (write
// flag and 15-bit address) followed by a 16-bit data word, MSB first.
const frameSize = 4

// RegisterPort moves 16-bit register words to and from the chip.
type RegisterPort interface {
	WriteRegister(addr uint16, value uint16) error
	ReadRegister(addr uint16) (uint16, error)
	Close() error
}

// SPIDevice represents an SPI device using periph.io
type SPIDevice struct {
	conn   spi.Conn
	port   spi.PortCloser
	device string
	speed  physic.Frequency
}

// NewSPIDevice opens and initializes an SPI device using periph.io
func NewSPIDevice(device string, speed uint32) (*SPIDevice, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph.io: %w", err)
	}

	port, err := spireg.Open(device)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI device %s: %w", device, err)
	}

	// LMS7002M samples on the rising edge with SEN held low for the frame
	conn, err := port.Connect(physic.Frequency(speed)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to connect to SPI device: %w", err)
	}

	return &SPIDevice{
		conn:   conn,
		port:   port,
		device: device,
		speed:  physic.Frequency(speed) * physic.Hertz,
	}, nil
}

// Close closes the SPI device
func (s *SPIDevice) Close() error {
	if s.port != nil {
		return s.port.Close()
	}
	return nil
}

// Transfer performs a full-duplex SPI transfer
func (s *SPIDevice) Transfer(tx []byte, rx []byte) error {
	if len(tx) != len(rx) {
		return fmt.Errorf("tx and rx buffers must be the same length")
	}

	if s.conn == nil {
		return fmt.Errorf("SPI device not open")
	}

	if err := s.conn.Tx(tx, rx); err != nil {
		return fmt.Errorf("SPI transfer failed: %w", err)
	}

	return nil
}

// WriteRegister writes a 16-bit word to an LMS7002M register
func (s *SPIDevice) WriteRegister(addr uint16, value uint16) error {
	tx := encodeFrame(true, addr, value)
	rx := make([]byte, frameSize)

	if err := s.Transfer(tx, rx); err != nil {
		return fmt.Errorf("failed to write register 0x%04X: %w", addr, err)
	}
	return nil
}

// ReadRegister reads a 16-bit word from an LMS7002M register
func (s *SPIDevice) ReadRegister(addr uint16) (uint16, error) {
	tx := encodeFrame(false, addr, 0)
	rx := make([]byte, frameSize)

	if err := s.Transfer(tx, rx); err != nil {
		return 0, fmt.Errorf("failed to read register 0x%04X: %w", addr, err)
	}

	// Data is clocked out during the second half of the frame
	return decodeData(rx), nil
}

// RegisterWrite is one address/value pair of a burst.
type RegisterWrite struct {
	Addr  uint16
	Value uint16
}

// BurstWrite writes several registers in one chip-select cycle
func (s *SPIDevice) BurstWrite(writes []RegisterWrite) error {
	if len(writes) == 0 {
		return fmt.Errorf("no values to write")
	}

	tx := make([]byte, 0, len(writes)*frameSize)
	for _, w := range writes {
		tx = append(tx, encodeFrame(true, w.Addr, w.Value)...)
	}
	rx := make([]byte, len(tx))

	if err := s.Transfer(tx, rx); err != nil {
		return fmt.Errorf("failed to burst write %d registers starting at 0x%04X: %w", len(writes), writes[0].Addr, err)
	}
	return nil
}

// DeviceInfo provides information about the SPI device
func (s *SPIDevice) DeviceInfo() string {
	if s.conn == nil {
		return fmt.Sprintf("Device: %s (closed)", s.device)
	}
	return fmt.Sprintf("Device: %s, Speed: %s", s.device, s.speed)
}

func encodeFrame(write bool, addr uint16, value uint16) []byte {
	cmd := addr & 0x7FFF
	if write {
		cmd |= 0x8000
	} else {
		value = 0
	}
	return []byte{byte(cmd >> 8), byte(cmd), byte(value >> 8), byte(value)}
}

func decodeData(frame []byte) uint16 {
	return uint16(frame[2])<<8 | uint16(frame[3])
}
