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

package segment

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/frametrace/frametrace-agent/pkg/wire"
)

// View is a consumer's mapping of a segment. A View is not safe for
// concurrent use.
type View struct {
	name       string
	mapping    *mapping
	header     *wire.Header
	slots      []byte
	maxEntries uint64
	playback   wire.PlaybackFlags
	// cursor is the next frame to read when the read position is private
	// to this consumer.
	cursor uint64
}

// Open maps an existing segment created by a producer.
func Open(dir, name string) (*View, error) {
	m, err := openMapping(dir, name)
	if err != nil {
		return nil, fmt.Errorf("opening segment %s: %w", name, err)
	}

	h := (*wire.Header)(unsafe.Pointer(&m.data[0]))
	if atomic.LoadUint32(&h.Magic) == 0 {
		_ = m.release()
		return nil, fmt.Errorf("opening segment %s: %w", name, ErrNotPublished)
	}
	if err := h.Check(); err != nil {
		_ = m.release()
		return nil, fmt.Errorf("opening segment %s: %w", name, err)
	}
	if h.BufSize > uint64(len(m.data)) || h.MaxEntries == 0 ||
		wire.HeaderSize+h.MaxEntries*wire.SlotSize > h.BufSize {
		_ = m.release()
		return nil, fmt.Errorf("opening segment %s: %w", name, wire.ErrLayoutMismatch)
	}

	v := &View{
		name:       name,
		mapping:    m,
		header:     h,
		slots:      m.data[wire.HeaderSize:h.BufSize],
		maxEntries: h.MaxEntries,
		playback:   h.Playback(),
	}
	written := atomic.LoadUint64(&h.NumFramesWritten)
	v.cursor = written - min(written, v.maxEntries-1)
	return v, nil
}

func (v *View) Name() string { return v.name }

func (v *View) Playback() wire.PlaybackFlags { return v.playback }

func (v *View) MaxEntries() uint64 { return v.maxEntries }

// ProcessActive reports whether the producer still considers the target
// process alive.
func (v *View) ProcessActive() bool {
	return atomic.LoadUint32(&v.header.ProcessActive) != 0
}

func (v *View) RefCount() uint32 {
	return atomic.LoadUint32(&v.header.RefCount)
}

func (v *View) FramesWritten() uint64 {
	return atomic.LoadUint64(&v.header.NumFramesWritten)
}

// StartQPC returns the stream time origin, or zero before the first frame.
func (v *View) StartQPC() uint64 {
	if atomic.LoadUint32(&v.header.Empty) != 0 {
		return 0
	}
	return atomic.LoadUint64(&v.header.StartQPC)
}

func (v *View) QPCFrequency() uint64 {
	return atomic.LoadUint64(&v.header.QPCFrequency)
}

func (v *View) LastDisplayedQPC() uint64 {
	return atomic.LoadUint64(&v.header.LastDisplayedQPC)
}

// CapBits returns the capability bits of the most recent telemetry.
func (v *View) CapBits() (gpu, cpu uint64) {
	return atomic.LoadUint64(&v.header.GpuCaps), atomic.LoadUint64(&v.header.CpuCaps)
}

func (v *View) Degraded() bool {
	return atomic.LoadUint32(&v.header.Degraded) != 0
}

// shared reports whether the read cursor lives in the header.
func (v *View) shared() bool {
	return v.playback.SharedCursor()
}

func (v *View) readCursor() uint64 {
	if v.shared() {
		return atomic.LoadUint64(&v.header.NumFramesRead)
	}
	return v.cursor
}

func (v *View) setCursor(from, to uint64) {
	if !v.shared() {
		v.cursor = to
		return
	}
	atomic.CompareAndSwapUint64(&v.header.NumFramesRead, from, to)
	if v.playback.Backpressure() {
		atomic.AddUint32(&v.header.DrainSeq, 1)
		wake(&v.header.DrainSeq)
	}
}

// Pending returns the number of frames written but not yet dequeued.
func (v *View) Pending() uint64 {
	written := atomic.LoadUint64(&v.header.NumFramesWritten)
	cursor := v.readCursor()
	if cursor >= written {
		return 0
	}
	return min(written-cursor, v.maxEntries)
}

// Dequeue copies the next unread frame into slot. It returns ErrNoData when
// caught up, ErrProcessGone when caught up and the producer has gone, and
// ErrDataLoss when frames were overwritten. After ErrDataLoss the cursor has
// moved past the lost frames and Dequeue can be called again.
func (v *View) Dequeue(slot *wire.FrameSlot) error {
	for {
		written := atomic.LoadUint64(&v.header.NumFramesWritten)
		cursor := v.readCursor()

		if cursor >= written {
			if !v.ProcessActive() {
				return ErrProcessGone
			}
			return ErrNoData
		}
		if written-cursor >= v.maxEntries && !v.shared() {
			v.setCursor(cursor, written-v.maxEntries+1)
			return ErrDataLoss
		}

		err := v.read(cursor, slot)
		if err == ErrDataLoss && v.playback.ResetOldest {
			// The producer dropped this frame while it was being copied
			// and already moved the cursor past it.
			continue
		}
		if err != nil && err != ErrDataLoss {
			return err
		}
		v.setCursor(cursor, cursor+1)
		return err
	}
}

// Latest copies the most recently written frame into slot without moving
// the read cursor.
func (v *View) Latest(slot *wire.FrameSlot) error {
	written := atomic.LoadUint64(&v.header.NumFramesWritten)
	if written == 0 {
		return ErrNoData
	}
	return v.read(written-1, slot)
}

func (v *View) read(seq uint64, slot *wire.FrameSlot) error {
	offset := (seq % v.maxEntries) * wire.SlotSize
	if err := wire.Decode(v.slots[offset:offset+wire.SlotSize], slot); err != nil {
		return err
	}
	if v.overwritten(seq) {
		return ErrDataLoss
	}
	return nil
}

// overwritten reports whether the producer may have started reusing the
// slot of frame seq while it was being copied.
func (v *View) overwritten(seq uint64) bool {
	switch {
	case v.playback.Backpressure():
		// The producer never writes into an unreleased slot.
		return false
	case v.playback.ResetOldest:
		// The producer moves the read cursor past a frame before reusing
		// its slot.
		return atomic.LoadUint64(&v.header.NumFramesRead) > seq
	default:
		// NumFramesWritten is bumped after a slot is filled, so frame seq
		// is intact until frame seq+maxEntries is started.
		return atomic.LoadUint64(&v.header.NumFramesWritten) >= seq+v.maxEntries
	}
}

// Close releases the view. The segment itself belongs to the producer and
// is left in place.
func (v *View) Close() error {
	v.header = nil
	return v.mapping.release()
}
