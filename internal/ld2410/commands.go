package ld2410

import "encoding/binary"

// Command frame delimiters per the LD2410 serial protocol.
var (
	cmdHeader = []byte{0xFD, 0xFC, 0xFB, 0xFA}
	cmdTail   = []byte{0x04, 0x03, 0x02, 0x01}
)

// Command words.
const (
	CmdEnableConfig uint16 = 0x00FF
	CmdEndConfig    uint16 = 0x00FE
)

// CommandFrame builds a config command frame: header, little-endian payload
// length, little-endian command word, value bytes, tail.
func CommandFrame(word uint16, value []byte) []byte {
	frame := make([]byte, 0, len(cmdHeader)+2+2+len(value)+len(cmdTail))
	frame = append(frame, cmdHeader...)
	frame = binary.LittleEndian.AppendUint16(frame, uint16(2+len(value)))
	frame = binary.LittleEndian.AppendUint16(frame, word)
	frame = append(frame, value...)
	frame = append(frame, cmdTail...)
	return frame
}

// EnableConfigFrame opens a configuration session on the sensor.
func EnableConfigFrame() []byte {
	return CommandFrame(CmdEnableConfig, []byte{0x01, 0x00})
}

// EndConfigFrame closes the configuration session, returning the sensor to
// continuous reporting.
func EndConfigFrame() []byte {
	return CommandFrame(CmdEndConfig, nil)
}
