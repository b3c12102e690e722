package rtp

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
)

func TestValidator_ValidatePacket(t *testing.T) {
	v := NewValidator(96)

	tests := []struct {
		name    string
		packet  *rtp.Packet
		wantErr error
	}{
		{
			name:   "valid",
			packet: vp8Packet(1, 1, 0, interframe(8)),
		},
		{
			name:    "wrong version",
			packet:  &rtp.Packet{Header: rtp.Header{Version: 1, PayloadType: 96}, Payload: []byte{1}},
			wantErr: ErrInvalidRTPVersion,
		},
		{
			name:    "wrong payload type",
			packet:  &rtp.Packet{Header: rtp.Header{Version: 2, PayloadType: 100}, Payload: []byte{1}},
			wantErr: ErrInvalidPayloadType,
		},
		{
			name:    "empty payload",
			packet:  &rtp.Packet{Header: rtp.Header{Version: 2, PayloadType: 96}},
			wantErr: ErrEmptyPayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidatePacket(tt.packet)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
