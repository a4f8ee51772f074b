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

// Package wire defines the byte layout of a shared memory segment: a fixed
// header followed by a ring of fixed-size frame slots. Every type here is
// pointer-free and free of implicit padding, so its in-memory layout and its
// encoding/binary layout are the same bytes. Producer and consumer must agree
// on Version; any change to a field's type, order or size bumps it.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unsafe"

	"github.com/frametrace/frametrace-agent/pkg/frame"
	"github.com/frametrace/frametrace-agent/pkg/telemetry"
)

const (
	// Magic identifies a frametrace segment ("FTRC").
	Magic   uint32 = 0x43525446
	Version uint32 = 1

	HeaderSize = 512
	SlotSize   = 1120

	// MaxDisplayed is the number of display events a slot can carry.
	MaxDisplayed = 16
	// MaxApplication is the size of the NUL terminated application name.
	MaxApplication = 260
)

var (
	ErrBadMagic       = errors.New("not a frametrace segment")
	ErrVersion        = errors.New("segment layout version mismatch")
	ErrShortBuffer    = errors.New("buffer too small for slot")
	ErrLayoutMismatch = errors.New("segment layout mismatch")
)

// Compile-time layout checks.
var (
	_ [unsafe.Sizeof(Header{}) - HeaderSize]struct{}
	_ [HeaderSize - unsafe.Sizeof(Header{})]struct{}
	_ [unsafe.Sizeof(FrameSlot{}) - SlotSize]struct{}
	_ [SlotSize - unsafe.Sizeof(FrameSlot{})]struct{}
)

// Header sits at offset zero of a segment. The producer maps it in place
// and updates the counters with sync/atomic; consumers read them the same
// way.
type Header struct {
	Magic      uint32
	Version    uint32
	HeaderSize uint32
	SlotSize   uint32

	BufSize          uint64
	MaxEntries       uint64
	StartQPC         uint64
	QPCFrequency     uint64
	LastDisplayedQPC uint64
	NumFramesWritten uint64
	// NumFramesRead is the consumer cursor. It is only advanced by a
	// consumer when the segment is backpressured, and by the producer when
	// the segment resets the oldest entry on overflow.
	NumFramesRead uint64
	GpuCaps       uint64
	CpuCaps       uint64

	RefCount uint32
	// DrainSeq is bumped whenever space frees up or the segment closes. A
	// backpressured producer sleeps on it.
	DrainSeq      uint32
	ProcessActive uint32
	Empty         uint32
	Degraded      uint32

	IsPlayback              uint8
	IsPlaybackPaced         uint8
	IsPlaybackRetimed       uint8
	IsPlaybackBackpressured uint8
	IsPlaybackResetOldest   uint8
	_                       [3]byte

	_ [396]byte
}

// PlaybackFlags configures how a segment behaves when fed from a recording
// instead of live capture.
type PlaybackFlags struct {
	Playback      bool `json:"playback" yaml:"playback"`
	Paced         bool `json:"paced" yaml:"paced"`
	Retimed       bool `json:"retimed" yaml:"retimed"`
	Backpressured bool `json:"backpressured" yaml:"backpressured"`
	ResetOldest   bool `json:"resetOldest" yaml:"resetOldest"`
}

// Backpressure reports whether the producer holds frames back until
// consumers release slots. Only playback streams can be held back; a live
// stream with Backpressured set overwrites like any other.
func (p PlaybackFlags) Backpressure() bool {
	return p.Playback && p.Backpressured
}

// SharedCursor reports whether the producer honors the read cursor in the
// header, either by waiting on it or by advancing it past dropped frames.
func (p PlaybackFlags) SharedCursor() bool {
	return p.Backpressure() || p.ResetOldest
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// SetPlayback stores the flags into the header.
func (h *Header) SetPlayback(p PlaybackFlags) {
	h.IsPlayback = boolByte(p.Playback)
	h.IsPlaybackPaced = boolByte(p.Paced)
	h.IsPlaybackRetimed = boolByte(p.Retimed)
	h.IsPlaybackBackpressured = boolByte(p.Backpressured)
	h.IsPlaybackResetOldest = boolByte(p.ResetOldest)
}

// Playback reads the flags back from the header.
func (h *Header) Playback() PlaybackFlags {
	return PlaybackFlags{
		Playback:      h.IsPlayback != 0,
		Paced:         h.IsPlaybackPaced != 0,
		Retimed:       h.IsPlaybackRetimed != 0,
		Backpressured: h.IsPlaybackBackpressured != 0,
		ResetOldest:   h.IsPlaybackResetOldest != 0,
	}
}

// Check verifies that a mapped header was written by a compatible producer.
func (h *Header) Check() error {
	if h.Magic != Magic {
		return fmt.Errorf("%w: magic %#x", ErrBadMagic, h.Magic)
	}
	if h.Version != Version {
		return fmt.Errorf("%w: segment has %d, reader has %d", ErrVersion, h.Version, Version)
	}
	if h.HeaderSize != HeaderSize || h.SlotSize != SlotSize {
		return fmt.Errorf("%w: header %d slot %d", ErrLayoutMismatch, h.HeaderSize, h.SlotSize)
	}
	return nil
}

// PresentEvent is the slot form of a frame.Record.
type PresentEvent struct {
	frame.Timing
	frame.Tracking

	DisplayedScreenTime [MaxDisplayed]uint64
	// LastPresentQPC and LastDisplayedQPC correlate the frame with the
	// previous present and the latest display of the same process.
	LastPresentQPC   uint64
	LastDisplayedQPC uint64

	frame.Properties

	DisplayedFrameType [MaxDisplayed]frame.FrameType
	DisplayedCount     uint32
	Application        [MaxApplication]byte
	_                  [4]byte
}

// FrameSlot is one entry of the ring.
type FrameSlot struct {
	Present PresentEvent
	Gpu     telemetry.Gpu
	Cpu     telemetry.Cpu
	GpuCaps uint64
	CpuCaps uint64
}

// FromRecord copies rec into a slot form. Display events past MaxDisplayed
// are dropped and the application name is truncated to fit.
func FromRecord(rec *frame.Record, lastPresentQPC, lastDisplayedQPC uint64) PresentEvent {
	ev := PresentEvent{
		Timing:           rec.Timing,
		Tracking:         rec.Tracking,
		Properties:       rec.Properties,
		LastPresentQPC:   lastPresentQPC,
		LastDisplayedQPC: lastDisplayedQPC,
	}
	n := min(len(rec.Displayed), MaxDisplayed)
	for i, d := range rec.Displayed[:n] {
		ev.DisplayedScreenTime[i] = d.ScreenTime
		ev.DisplayedFrameType[i] = d.Type
	}
	ev.DisplayedCount = uint32(n)
	copy(ev.Application[:MaxApplication-1], rec.Application)
	return ev
}

// Displayed returns the recorded display events.
func (p *PresentEvent) Displayed() []frame.Displayed {
	n := min(int(p.DisplayedCount), MaxDisplayed)
	out := make([]frame.Displayed, n)
	for i := range out {
		out[i] = frame.Displayed{Type: p.DisplayedFrameType[i], ScreenTime: p.DisplayedScreenTime[i]}
	}
	return out
}

// ApplicationName returns the application name up to its NUL terminator.
func (p *PresentEvent) ApplicationName() string {
	for i, c := range p.Application {
		if c == 0 {
			return string(p.Application[:i])
		}
	}
	return string(p.Application[:])
}

// Encode writes slot into dst, which must hold at least SlotSize bytes.
func Encode(dst []byte, slot *FrameSlot) error {
	if len(dst) < SlotSize {
		return fmt.Errorf("%w: %d < %d", ErrShortBuffer, len(dst), SlotSize)
	}
	_, err := binary.Encode(dst[:SlotSize], binary.NativeEndian, slot)
	return err
}

// Decode reads a slot previously written by Encode.
func Decode(src []byte, slot *FrameSlot) error {
	if len(src) < SlotSize {
		return fmt.Errorf("%w: %d < %d", ErrShortBuffer, len(src), SlotSize)
	}
	_, err := binary.Decode(src[:SlotSize], binary.NativeEndian, slot)
	return err
}
