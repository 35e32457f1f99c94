package dap

import (
	"encoding/binary"
	"fmt"
)

// CMSIS-DAP Command IDs
const (
	CmdInfo              = 0x00
	CmdHostStatus        = 0x01
	CmdConnect           = 0x02
	CmdDisconnect        = 0x03
	CmdTransferConfigure = 0x04
	CmdTransfer          = 0x05
	CmdWriteABORT        = 0x08
	CmdResetTarget       = 0x0A
	CmdSWJPins           = 0x10
	CmdSWJClock          = 0x11
	CmdSWJSequence       = 0x12
	CmdSWDConfigure      = 0x13
)

// DAP_Info Info IDs
const (
	InfoVendorID     = 0x01
	InfoProductID    = 0x02
	InfoSerialNum    = 0x03
	InfoFirmwareVer  = 0x04
	InfoCapabilities = 0xF0
	InfoPacketCount  = 0xFE
	InfoPacketSize   = 0xFF
)

// Connection ports
const (
	PortDefault = 0
	PortSWD     = 1
	PortJTAG    = 2
)

// Status codes
const (
	StatusOK    = 0x00
	StatusError = 0xFF
)

// DAP_Transfer request bits
const (
	TransferAPnDP = 1 << 0
	TransferRnW   = 1 << 1
)

// DAP_Transfer response acknowledges. Bit 3 flags an SWD protocol
// (parity) error.
const (
	AckOK       = 0x01
	AckWait     = 0x02
	AckFault    = 0x04
	AckNoAck    = 0x07
	AckMask     = 0x07
	AckProtocol = 0x08
)

// DAP_SWJ_Pins bits
const (
	PinSWCLK  = 1 << 0
	PinSWDIO  = 1 << 1
	PinTDI    = 1 << 2
	PinTDO    = 1 << 3
	PinNTRST  = 1 << 5
	PinNRESET = 1 << 7
)

// Transfer is one DP/AP access inside a DAP_Transfer command.
type Transfer struct {
	Request byte
	Data    uint32 // written value, ignored for reads
}

// Read reports whether the transfer is a register read.
func (t Transfer) Read() bool {
	return t.Request&TransferRnW != 0
}

// TransferResult is the decoded DAP_Transfer response.
type TransferResult struct {
	Count uint8 // transfers executed
	Ack   uint8 // acknowledge of the last transfer
	Data  []uint32
}

// CMSISDAPProtocol handles encoding/decoding of CMSIS-DAP commands
type CMSISDAPProtocol struct {
	PacketSize int
}

// NewCMSISDAPProtocol creates a new protocol handler
func NewCMSISDAPProtocol(packetSize int) *CMSISDAPProtocol {
	return &CMSISDAPProtocol{
		PacketSize: packetSize,
	}
}

// EncodeInfo builds a DAP_Info command
func (p *CMSISDAPProtocol) EncodeInfo(infoID byte) []byte {
	return []byte{CmdInfo, infoID}
}

// DecodeInfo parses a DAP_Info response
func (p *CMSISDAPProtocol) DecodeInfo(resp []byte) (string, error) {
	if len(resp) < 2 {
		return "", fmt.Errorf("response too short")
	}
	if resp[0] != CmdInfo {
		return "", fmt.Errorf("invalid command ID: 0x%02X", resp[0])
	}

	length := int(resp[1])
	if len(resp) < 2+length {
		return "", fmt.Errorf("incomplete info string")
	}

	return string(resp[2 : 2+length]), nil
}

// EncodeConnect builds a DAP_Connect command
func (p *CMSISDAPProtocol) EncodeConnect(port byte) []byte {
	return []byte{CmdConnect, port}
}

// DecodeConnect parses a DAP_Connect response
func (p *CMSISDAPProtocol) DecodeConnect(resp []byte) (byte, error) {
	if len(resp) < 2 {
		return 0, fmt.Errorf("response too short")
	}
	if resp[0] != CmdConnect {
		return 0, fmt.Errorf("invalid command ID")
	}
	if resp[1] == 0 {
		return 0, fmt.Errorf("connection failed")
	}
	return resp[1], nil
}

// EncodeDisconnect builds a DAP_Disconnect command
func (p *CMSISDAPProtocol) EncodeDisconnect() []byte {
	return []byte{CmdDisconnect}
}

// DecodeStatus parses the common [cmd, status] response shape.
func (p *CMSISDAPProtocol) DecodeStatus(cmd byte, resp []byte) error {
	if len(resp) < 2 {
		return fmt.Errorf("response too short")
	}
	if resp[0] != cmd {
		return fmt.Errorf("invalid command ID: 0x%02X", resp[0])
	}
	if resp[1] != StatusOK {
		return fmt.Errorf("command 0x%02X failed", cmd)
	}
	return nil
}

// EncodeTransferConfigure builds a DAP_TransferConfigure command
func (p *CMSISDAPProtocol) EncodeTransferConfigure(idleCycles byte, waitRetry, matchRetry uint16) []byte {
	cmd := make([]byte, 6)
	cmd[0] = CmdTransferConfigure
	cmd[1] = idleCycles
	binary.LittleEndian.PutUint16(cmd[2:], waitRetry)
	binary.LittleEndian.PutUint16(cmd[4:], matchRetry)
	return cmd
}

// EncodeSWDConfigure builds a DAP_SWD_Configure command. cfg bits 1:0
// hold the turnaround period minus one, bit 2 forces a data phase.
func (p *CMSISDAPProtocol) EncodeSWDConfigure(cfg byte) []byte {
	return []byte{CmdSWDConfigure, cfg}
}

// EncodeTransfer builds a DAP_Transfer command for one DAP index.
func (p *CMSISDAPProtocol) EncodeTransfer(dapIndex byte, transfers []Transfer) []byte {
	size := 3
	for _, t := range transfers {
		size++
		if !t.Read() {
			size += 4
		}
	}

	cmd := make([]byte, size)
	cmd[0] = CmdTransfer
	cmd[1] = dapIndex
	cmd[2] = byte(len(transfers))

	offset := 3
	for _, t := range transfers {
		cmd[offset] = t.Request
		offset++
		if !t.Read() {
			binary.LittleEndian.PutUint32(cmd[offset:], t.Data)
			offset += 4
		}
	}
	return cmd
}

// DecodeTransfer parses a DAP_Transfer response. Read data is returned
// only for the transfers the probe actually executed.
func (p *CMSISDAPProtocol) DecodeTransfer(resp []byte, transfers []Transfer) (TransferResult, error) {
	if len(resp) < 3 {
		return TransferResult{}, fmt.Errorf("response too short")
	}
	if resp[0] != CmdTransfer {
		return TransferResult{}, fmt.Errorf("invalid command ID: 0x%02X", resp[0])
	}

	res := TransferResult{Count: resp[1], Ack: resp[2]}
	if int(res.Count) > len(transfers) {
		return res, fmt.Errorf("probe executed %d of %d transfers", res.Count, len(transfers))
	}

	offset := 3
	for _, t := range transfers[:res.Count] {
		if !t.Read() {
			continue
		}
		if offset+4 > len(resp) {
			return res, fmt.Errorf("incomplete transfer data")
		}
		res.Data = append(res.Data, binary.LittleEndian.Uint32(resp[offset:]))
		offset += 4
	}
	return res, nil
}

// EncodeWriteABORT builds a DAP_WriteABORT command
func (p *CMSISDAPProtocol) EncodeWriteABORT(dapIndex byte, value uint32) []byte {
	cmd := make([]byte, 6)
	cmd[0] = CmdWriteABORT
	cmd[1] = dapIndex
	binary.LittleEndian.PutUint32(cmd[2:], value)
	return cmd
}

// EncodeSWJSequence builds a DAP_SWJ_Sequence command clocking bits out
// of SWDIO/TMS, LSB first. A count of 256 is encoded as 0.
func (p *CMSISDAPProtocol) EncodeSWJSequence(bits int, data []byte) ([]byte, error) {
	if bits <= 0 || bits > 256 {
		return nil, fmt.Errorf("dap: sequence length %d out of range", bits)
	}
	n := (bits + 7) / 8
	if len(data) < n {
		return nil, fmt.Errorf("dap: sequence buffer too short, need %d bytes", n)
	}
	cmd := make([]byte, 2+n)
	cmd[0] = CmdSWJSequence
	cmd[1] = byte(bits)
	copy(cmd[2:], data[:n])
	return cmd, nil
}

// EncodeSWJPins builds a DAP_SWJ_Pins command
func (p *CMSISDAPProtocol) EncodeSWJPins(output, selectMask byte, waitUs uint32) []byte {
	cmd := make([]byte, 7)
	cmd[0] = CmdSWJPins
	cmd[1] = output
	cmd[2] = selectMask
	binary.LittleEndian.PutUint32(cmd[3:], waitUs)
	return cmd
}

// DecodeSWJPins returns the pin input byte
func (p *CMSISDAPProtocol) DecodeSWJPins(resp []byte) (byte, error) {
	if len(resp) < 2 {
		return 0, fmt.Errorf("response too short")
	}
	if resp[0] != CmdSWJPins {
		return 0, fmt.Errorf("invalid command ID")
	}
	return resp[1], nil
}

// EncodeSetClock builds a DAP_SWJ_Clock command
func (p *CMSISDAPProtocol) EncodeSetClock(hz uint32) []byte {
	cmd := make([]byte, 5)
	cmd[0] = CmdSWJClock
	binary.LittleEndian.PutUint32(cmd[1:], hz)
	return cmd
}

// EncodeResetTarget builds a DAP_ResetTarget command
func (p *CMSISDAPProtocol) EncodeResetTarget() []byte {
	return []byte{CmdResetTarget}
}
