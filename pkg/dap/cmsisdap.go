package dap

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/OpenTraceADI/pkg/adi"
)

// hostWaitRetries bounds host side retries of a transfer the probe gave
// up on with WAIT. The probe itself retries per DAP_TransferConfigure.
const hostWaitRetries = 8

// CMSISDAPAdapter drives the SWD port of a CMSIS-DAP probe. It implements
// Probe.
type CMSISDAPAdapter struct {
	link     link
	protocol *CMSISDAPProtocol

	info      ProbeInfo
	speedHz   int
	connected bool

	mu sync.Mutex
}

// DefaultClockHz is the SWCLK frequency used when Config.ClockHz is zero.
const DefaultClockHz = 1_000_000

// Config selects a CMSIS-DAP probe and its SWD clock. A zero VID opens
// the first known CMSIS-DAP probe.
type Config struct {
	VID     uint16
	PID     uint16
	Serial  string // empty matches any probe
	ClockHz int
}

// NewCMSISDAPAdapter opens a CMSIS-DAP probe over USB, switches it to SWD
// and leaves the wire in the idle state after a line reset.
func NewCMSISDAPAdapter(cfg Config) (*CMSISDAPAdapter, error) {
	transport, err := OpenUSB(USBSelector{VID: cfg.VID, PID: cfg.PID, Serial: cfg.Serial})
	if err != nil {
		return nil, fmt.Errorf("failed to open USB device: %w", err)
	}
	clock := cfg.ClockHz
	if clock == 0 {
		clock = DefaultClockHz
	}
	a, err := newCMSISDAPAdapter(transport, clock)
	if err != nil {
		transport.Close()
		return nil, err
	}
	log.WithFields(log.Fields{
		"probe":  a.info.Model,
		"serial": a.info.SerialNumber,
	}).Debug("dap: CMSIS-DAP probe connected")
	return a, nil
}

func newCMSISDAPAdapter(l link, speedHz int) (*CMSISDAPAdapter, error) {
	a := &CMSISDAPAdapter{
		link:     l,
		protocol: NewCMSISDAPProtocol(l.PacketSize()),
		speedHz:  speedHz,
	}

	if err := a.queryInfo(); err != nil {
		return nil, fmt.Errorf("failed to query device info: %w", err)
	}
	if err := a.connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to SWD: %w", err)
	}
	if err := a.SetSpeed(a.speedHz); err != nil {
		return nil, fmt.Errorf("failed to set default speed: %w", err)
	}
	if err := a.LineReset(); err != nil {
		return nil, fmt.Errorf("failed to switch to SWD: %w", err)
	}
	return a, nil
}

// queryInfo retrieves device information from the probe
func (a *CMSISDAPAdapter) queryInfo() error {
	str := func(id byte) (string, error) {
		resp, err := a.link.WriteRead(a.protocol.EncodeInfo(id))
		if err != nil {
			return "", err
		}
		return a.protocol.DecodeInfo(resp)
	}

	vendor, err := str(InfoVendorID)
	if err != nil {
		return err
	}
	// Optional strings; probes may report them empty.
	product, _ := str(InfoProductID)
	serial, _ := str(InfoSerialNum)
	firmware, _ := str(InfoFirmwareVer)

	a.info = ProbeInfo{
		Name:         "CMSIS-DAP Probe",
		Vendor:       vendor,
		Model:        product,
		SerialNumber: serial,
		Firmware:     firmware,
		MinFrequency: 1000,
		MaxFrequency: 10_000_000,
		SupportsSRST: true,
	}
	return nil
}

// connect selects the SWD port and programs transfer retry behavior.
func (a *CMSISDAPAdapter) connect() error {
	resp, err := a.link.WriteRead(a.protocol.EncodeConnect(PortSWD))
	if err != nil {
		return err
	}
	port, err := a.protocol.DecodeConnect(resp)
	if err != nil {
		return err
	}
	if port != PortSWD {
		return fmt.Errorf("failed to connect to SWD (got port %d)", port)
	}
	a.connected = true

	if err := a.command(CmdSWDConfigure, a.protocol.EncodeSWDConfigure(0)); err != nil {
		return err
	}
	return a.command(CmdTransferConfigure, a.protocol.EncodeTransferConfigure(2, 0x100, 0))
}

func (a *CMSISDAPAdapter) command(id byte, cmd []byte) error {
	resp, err := a.link.WriteRead(cmd)
	if err != nil {
		return err
	}
	return a.protocol.DecodeStatus(id, resp)
}

// swdSwitchSequence is a line reset, the JTAG-to-SWD select code 0xE79E,
// a second line reset and idle cycles.
var swdSwitchSequence = []byte{
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0x9e, 0xe7,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0x00, 0x00,
}

// LineReset switches a dormant or JTAG-mode DP to SWD and resets the line.
// The next access must be a DPIDR read.
func (a *CMSISDAPAdapter) LineReset() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	cmd, err := a.protocol.EncodeSWJSequence(len(swdSwitchSequence)*8, swdSwitchSequence)
	if err != nil {
		return err
	}
	return a.command(CmdSWJSequence, cmd)
}

// Info returns probe capabilities
func (a *CMSISDAPAdapter) Info() (ProbeInfo, error) {
	return a.info, nil
}

// Read performs one DP or AP register read.
func (a *CMSISDAPAdapter) Read(addr uint16) (uint32, error) {
	return a.transfer(addr, true, 0)
}

// Write performs one DP or AP register write.
func (a *CMSISDAPAdapter) Write(addr uint16, value uint32) error {
	_, err := a.transfer(addr, false, value)
	return err
}

func (a *CMSISDAPAdapter) transfer(addr uint16, read bool, value uint32) (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	xfer := []Transfer{{Request: requestByte(addr, read), Data: value}}
	cmd := a.protocol.EncodeTransfer(0, xfer)
	for attempt := 0; ; attempt++ {
		resp, err := a.link.WriteRead(cmd)
		if err != nil {
			return 0, fmt.Errorf("dap: transfer 0x%03x: %v: %w", addr, err, adi.ErrNoResponse)
		}
		res, err := a.protocol.DecodeTransfer(resp, xfer)
		if err != nil {
			return 0, fmt.Errorf("dap: transfer 0x%03x: %v: %w", addr, err, adi.ErrProtocol)
		}

		if res.Ack&AckProtocol != 0 {
			return 0, fmt.Errorf("dap: transfer 0x%03x: parity error: %w", addr, adi.ErrProtocol)
		}
		switch res.Ack & AckMask {
		case AckOK:
			if !read {
				return 0, nil
			}
			if len(res.Data) == 0 {
				return 0, fmt.Errorf("dap: transfer 0x%03x: missing read data: %w", addr, adi.ErrProtocol)
			}
			return res.Data[0], nil
		case AckWait:
			if attempt < hostWaitRetries {
				continue
			}
			return 0, fmt.Errorf("dap: transfer 0x%03x: %w", addr, adi.ErrTimeout)
		case AckFault:
			return 0, fmt.Errorf("dap: transfer 0x%03x: %w", addr, adi.ErrFault)
		default:
			log.Debugf("dap: transfer 0x%03x ack 0x%x", addr, res.Ack)
			return 0, fmt.Errorf("dap: transfer 0x%03x: %w", addr, adi.ErrNoResponse)
		}
	}
}

// SetReset drives nRESET. Asserting pulls the line low.
func (a *CMSISDAPAdapter) SetReset(assert bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out byte = PinNRESET
	if assert {
		out = 0
	}
	resp, err := a.link.WriteRead(a.protocol.EncodeSWJPins(out, PinNRESET, 0))
	if err != nil {
		return fmt.Errorf("drive nRESET: %w", err)
	}
	_, err = a.protocol.DecodeSWJPins(resp)
	return err
}

// ResetAsserted samples nRESET without driving it.
func (a *CMSISDAPAdapter) ResetAsserted() (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	resp, err := a.link.WriteRead(a.protocol.EncodeSWJPins(0, 0, 0))
	if err != nil {
		return false, fmt.Errorf("sample nRESET: %w", err)
	}
	pins, err := a.protocol.DecodeSWJPins(resp)
	if err != nil {
		return false, err
	}
	return pins&PinNRESET == 0, nil
}

// SetSpeed sets the SWCLK frequency
func (a *CMSISDAPAdapter) SetSpeed(hz int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if hz < a.info.MinFrequency || hz > a.info.MaxFrequency {
		return fmt.Errorf("frequency %d Hz out of range [%d, %d]",
			hz, a.info.MinFrequency, a.info.MaxFrequency)
	}

	if err := a.command(CmdSWJClock, a.protocol.EncodeSetClock(uint32(hz))); err != nil {
		return fmt.Errorf("set speed failed: %w", err)
	}
	a.speedHz = hz
	return nil
}

// Close disconnects and releases resources
func (a *CMSISDAPAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.connected {
		if _, err := a.link.WriteRead(a.protocol.EncodeDisconnect()); err != nil {
			log.Debugf("dap: disconnect: %v", err)
		}
		a.connected = false
	}
	return a.link.Close()
}
