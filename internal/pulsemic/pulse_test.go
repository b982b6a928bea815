package pulsemic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/antoniostano/coachroom/internal/capture"
)

func TestSlicerEmitsOneChunkPerTimeSlice(t *testing.T) {
	s := newSlicer(16000, 250*time.Millisecond)
	require.Equal(t, 8000, s.size)

	now := time.Now()
	require.Empty(t, s.Push(make([]byte, 640), now))

	chunks := s.Push(make([]byte, 16000), now)
	require.Len(t, chunks, 2)
	require.Equal(t, 1, chunks[0].Seq)
	require.Equal(t, 2, chunks[1].Seq)
	require.Len(t, chunks[0].PCM, 8000)
	require.Equal(t, 16000, chunks[1].SampleRate)

	tail, ok := s.Flush(now)
	require.True(t, ok)
	require.Equal(t, 3, tail.Seq)
	require.Len(t, tail.PCM, 640)

	_, ok = s.Flush(now)
	require.False(t, ok)
}

func TestSlicerDefaultsAndAlignment(t *testing.T) {
	s := newSlicer(16000, 0)
	require.Equal(t, 8000, s.size)

	odd := newSlicer(11025, 10*time.Millisecond)
	require.Zero(t, odd.size%2)
}

func TestStereoIsRejected(t *testing.T) {
	_, err := Platform{}.RequestAudioStream(t.Context(), capture.Constraints{Channels: 2})
	require.ErrorIs(t, err, capture.ErrDeviceUnavailable)
}
