/*
Copyright © 2024 SUSE LLC
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at
    http://www.apache.org/licenses/LICENSE-2.0
Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package wire_test

import (
	"encoding/binary"
	"strings"
	"testing"
	"unsafe"

	"github.com/frametrace/frametrace-agent/pkg/frame"
	"github.com/frametrace/frametrace-agent/pkg/telemetry"
	"github.com/frametrace/frametrace-agent/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutSizes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, wire.HeaderSize, binary.Size(wire.Header{}))
	assert.Equal(t, wire.SlotSize, binary.Size(wire.FrameSlot{}))
	assert.Equal(t, 296, binary.Size(telemetry.Gpu{}))
	assert.Equal(t, int(unsafe.Sizeof(telemetry.Gpu{})), binary.Size(telemetry.Gpu{}))
	assert.Equal(t, int(unsafe.Sizeof(telemetry.Cpu{})), binary.Size(telemetry.Cpu{}))
	assert.Equal(t, int(unsafe.Sizeof(wire.PresentEvent{})), binary.Size(wire.PresentEvent{}))

	var h wire.Header
	assert.Zero(t, unsafe.Offsetof(h.NumFramesWritten)%8)
	assert.Zero(t, unsafe.Offsetof(h.NumFramesRead)%8)
	assert.Zero(t, unsafe.Offsetof(h.DrainSeq)%4)
}

func TestFromRecordTruncatesDisplayed(t *testing.T) {
	t.Parallel()

	rec := &frame.Record{Application: "game.exe"}
	rec.ProcessID = 200
	rec.PresentStartTime = 1234
	rec.SwapChainAddress = 0xdead
	rec.PresentMode = frame.PresentModeComposedFlip
	for i := range wire.MaxDisplayed + 4 {
		rec.Displayed = append(rec.Displayed, frame.Displayed{
			Type:       frame.FrameTypeApplication,
			ScreenTime: uint64(1000 + i),
		})
	}

	ev := wire.FromRecord(rec, 11, 22)
	assert.Equal(t, uint32(wire.MaxDisplayed), ev.DisplayedCount)
	assert.Equal(t, rec.Displayed[:wire.MaxDisplayed], ev.Displayed())
	assert.Equal(t, uint32(200), ev.ProcessID)
	assert.Equal(t, uint64(1234), ev.PresentStartTime)
	assert.Equal(t, uint64(0xdead), ev.SwapChainAddress)
	assert.Equal(t, frame.PresentModeComposedFlip, ev.PresentMode)
	assert.Equal(t, uint64(11), ev.LastPresentQPC)
	assert.Equal(t, uint64(22), ev.LastDisplayedQPC)
	assert.Equal(t, "game.exe", ev.ApplicationName())
}

func TestFromRecordShortDisplayed(t *testing.T) {
	t.Parallel()

	rec := &frame.Record{Displayed: []frame.Displayed{{Type: frame.FrameTypeRepeated, ScreenTime: 5}}}
	ev := wire.FromRecord(rec, 0, 0)
	assert.Equal(t, uint32(1), ev.DisplayedCount)
	assert.Equal(t, rec.Displayed, ev.Displayed())
	assert.Zero(t, ev.DisplayedScreenTime[1])
}

func TestFromRecordTruncatesApplication(t *testing.T) {
	t.Parallel()

	rec := &frame.Record{Application: strings.Repeat("a", 400)}
	ev := wire.FromRecord(rec, 0, 0)
	assert.Len(t, ev.ApplicationName(), wire.MaxApplication-1)
	assert.Zero(t, ev.Application[wire.MaxApplication-1])
}

func TestEncodeDecode(t *testing.T) {
	t.Parallel()

	rec := &frame.Record{Application: "bench"}
	rec.ProcessID = 42
	rec.SyncInterval = -1
	rec.SupportsTearing = true
	rec.Displayed = []frame.Displayed{{Type: frame.FrameTypeIntelXeFG, ScreenTime: 77}}

	in := wire.FrameSlot{
		Present: wire.FromRecord(rec, 1, 2),
		Gpu:     telemetry.Gpu{QPC: 9, PowerW: 150.5, PSUType: [telemetry.MaxPSUs]telemetry.PSUType{telemetry.PSU8Pin}, PowerLimited: true},
		Cpu:     telemetry.Cpu{QPC: 8, Utilization: 12.5},
		GpuCaps: 1 << telemetry.GpuPower,
		CpuCaps: 1 << telemetry.CpuUtilization,
	}
	buf := make([]byte, wire.SlotSize)
	require.NoError(t, wire.Encode(buf, &in))

	var out wire.FrameSlot
	require.NoError(t, wire.Decode(buf, &out))
	assert.Equal(t, in, out)
	assert.Equal(t, int32(-1), out.Present.SyncInterval)
	assert.Equal(t, "bench", out.Present.ApplicationName())
}

func TestEncodeShortBuffer(t *testing.T) {
	t.Parallel()

	var slot wire.FrameSlot
	require.ErrorIs(t, wire.Encode(make([]byte, wire.SlotSize-1), &slot), wire.ErrShortBuffer)
	require.ErrorIs(t, wire.Decode(nil, &slot), wire.ErrShortBuffer)
}

func TestHeaderCheck(t *testing.T) {
	t.Parallel()

	h := wire.Header{Magic: wire.Magic, Version: wire.Version, HeaderSize: wire.HeaderSize, SlotSize: wire.SlotSize}
	require.NoError(t, h.Check())

	bad := h
	bad.Magic = 0
	require.ErrorIs(t, bad.Check(), wire.ErrBadMagic)

	bad = h
	bad.Version++
	require.ErrorIs(t, bad.Check(), wire.ErrVersion)

	bad = h
	bad.SlotSize--
	require.ErrorIs(t, bad.Check(), wire.ErrLayoutMismatch)
}

func TestHeaderPlayback(t *testing.T) {
	t.Parallel()

	var h wire.Header
	p := wire.PlaybackFlags{Playback: true, Backpressured: true}
	h.SetPlayback(p)
	assert.Equal(t, uint8(1), h.IsPlaybackBackpressured)
	assert.Equal(t, uint8(0), h.IsPlaybackPaced)
	assert.Equal(t, p, h.Playback())
}

func TestPlaybackCursorModes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		flags        wire.PlaybackFlags
		backpressure bool
		shared       bool
	}{
		{"live", wire.PlaybackFlags{}, false, false},
		{"live backpressured", wire.PlaybackFlags{Backpressured: true}, false, false},
		{"playback", wire.PlaybackFlags{Playback: true}, false, false},
		{"playback backpressured", wire.PlaybackFlags{Playback: true, Backpressured: true}, true, true},
		{"reset oldest", wire.PlaybackFlags{ResetOldest: true}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.backpressure, tt.flags.Backpressure())
			assert.Equal(t, tt.shared, tt.flags.SharedCursor())
		})
	}
}
