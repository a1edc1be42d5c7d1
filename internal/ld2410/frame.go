// Package ld2410 implements the wire format of the HLK-LD2410 presence
// sensor: the minimal 7-byte report frames it streams continuously, and the
// command frames used to configure it.
package ld2410

import (
	"errors"
	"fmt"
	"time"
)

// Report frame delimiters and length.
const (
	FrameHeader = 0xF8
	FrameTail   = 0xFE
	FrameLength = 7
)

// Target state bits in byte 1 of a report frame.
const (
	stateMoving     = 0x01
	stateStationary = 0x02
)

var (
	ErrShortFrame   = errors.New("frame shorter than 7 bytes")
	ErrBadDelimiter = errors.New("frame has bad header or tail byte")
)

// Report is one decoded sensor report.
type Report struct {
	MovingTarget     bool
	StationaryTarget bool
	DistanceCm       int
	SignalStrength   int
	Raw              []byte
	Timestamp        time.Time
}

// TargetPresent reports whether the sensor sees any target at all.
func (r Report) TargetPresent() bool {
	return r.MovingTarget || r.StationaryTarget
}

func (r Report) String() string {
	return fmt.Sprintf("moving=%t stationary=%t distance=%dcm signal=%d",
		r.MovingTarget, r.StationaryTarget, r.DistanceCm, r.SignalStrength)
}

// ParseFrame decodes a single 7-byte report frame. The distance byte is in
// decimeters on the wire, so it is scaled to centimeters here.
func ParseFrame(data []byte) (Report, error) {
	if len(data) < FrameLength {
		return Report{}, ErrShortFrame
	}
	if data[0] != FrameHeader || data[len(data)-1] != FrameTail {
		return Report{}, ErrBadDelimiter
	}

	state := data[1]
	raw := make([]byte, len(data))
	copy(raw, data)

	return Report{
		MovingTarget:     state&stateMoving != 0,
		StationaryTarget: state&stateStationary != 0,
		DistanceCm:       int(data[3]) * 10,
		SignalStrength:   int(data[4]),
		Raw:              raw,
		Timestamp:        time.Now(),
	}, nil
}

// ScanFrames is a bufio.SplitFunc that extracts report frames from the serial
// byte stream. Garbage between frames is skipped, and a header byte that is
// not followed by a tail in position 7 is treated as payload noise so the
// scanner resynchronizes on the next real frame.
func ScanFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] != FrameHeader {
			continue
		}
		if i+FrameLength > len(data) {
			if atEOF {
				return len(data), nil, nil
			}
			// Drop leading garbage and wait for the rest of the frame.
			return i, nil, nil
		}
		if data[i+FrameLength-1] != FrameTail {
			// False header inside another frame's payload.
			continue
		}
		return i + FrameLength, data[i : i+FrameLength], nil
	}

	if atEOF {
		return len(data), nil, nil
	}
	return len(data), nil, nil
}
