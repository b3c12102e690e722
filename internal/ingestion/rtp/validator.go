package rtp

import (
	"errors"
	"fmt"

	"github.com/pion/rtp"
)

var (
	ErrInvalidRTPVersion  = errors.New("invalid RTP version")
	ErrInvalidPayloadType = errors.New("invalid payload type")
	ErrEmptyPayload       = errors.New("empty payload")
)

// Validator rejects packets that cannot belong to the VP8 stream being
// inspected.
type Validator struct {
	payloadType uint8
}

// NewValidator accepts packets carrying payloadType, the dynamic type the
// sender negotiated for VP8.
func NewValidator(payloadType uint8) *Validator {
	return &Validator{payloadType: payloadType}
}

func (v *Validator) ValidatePacket(packet *rtp.Packet) error {
	if packet.Version != 2 {
		return fmt.Errorf("%w: %d", ErrInvalidRTPVersion, packet.Version)
	}
	if packet.PayloadType != v.payloadType {
		return fmt.Errorf("%w: got %d, want %d", ErrInvalidPayloadType, packet.PayloadType, v.payloadType)
	}
	if len(packet.Payload) == 0 {
		return ErrEmptyPayload
	}
	return nil
}
