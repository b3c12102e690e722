package rtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLossTracker(t *testing.T) {
	tests := []struct {
		name          string
		seqs          []uint16
		wantGaps      []int
		wantLost      uint64
		wantReordered uint64
	}{
		{
			name:     "in order",
			seqs:     []uint16{10, 11, 12, 13},
			wantGaps: []int{0, 0, 0, 0},
		},
		{
			name:     "gap",
			seqs:     []uint16{10, 11, 15},
			wantGaps: []int{0, 0, 3},
			wantLost: 3,
		},
		{
			name:          "late packet recovers loss",
			seqs:          []uint16{10, 12, 11},
			wantGaps:      []int{0, 1, 0},
			wantReordered: 1,
		},
		{
			name:     "wraparound",
			seqs:     []uint16{65534, 65535, 0, 1},
			wantGaps: []int{0, 0, 0, 0},
		},
		{
			name:     "gap across wraparound",
			seqs:     []uint16{65534, 1},
			wantGaps: []int{0, 2},
			wantLost: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lt := NewLossTracker()
			for i, seq := range tt.seqs {
				assert.Equal(t, tt.wantGaps[i], lt.Process(seq), "seq %d", seq)
			}
			assert.Equal(t, tt.wantLost, lt.Lost())
			assert.Equal(t, tt.wantReordered, lt.Reordered())
		})
	}
}

func TestLossTracker_Restart(t *testing.T) {
	lt := NewLossTracker()
	lt.Process(100)
	lt.Process(101)
	assert.Equal(t, 0, lt.Process(20000))
	assert.Equal(t, uint64(1), lt.Resets())
	assert.Equal(t, uint64(0), lt.Lost())

	lt.Process(20002)
	assert.Equal(t, uint64(1), lt.Lost())
}

func TestLossTracker_RestartKeepsEarlierLoss(t *testing.T) {
	lt := NewLossTracker()
	lt.Process(100)
	lt.Process(105)
	require.Equal(t, uint64(4), lt.Lost())

	lt.Process(30000)
	assert.Equal(t, uint64(1), lt.Resets())
	assert.Equal(t, uint64(4), lt.Lost())

	lt.Process(30003)
	assert.Equal(t, uint64(6), lt.Lost())
}

func TestLossTracker_Empty(t *testing.T) {
	assert.Equal(t, uint64(0), NewLossTracker().Lost())
}
