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

// Package segment implements the named shared memory channel that carries
// frames from the producer to consumer processes. A Segment is the producer
// side; a View is the consumer side.
//
// Layout: a wire.Header at offset zero followed by a ring of wire.FrameSlot
// entries. The header counters are the only state shared between processes.
package segment

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/Masterminds/log-go"
	"github.com/dustin/go-humanize"
	"github.com/frametrace/frametrace-agent/pkg/wire"
)

const (
	// DefaultSize is the segment size used when none is configured.
	DefaultSize uint64 = 65536 * 60
	// MinEntries is the smallest ring a segment is created with.
	MinEntries = 2
	// MinSize is the smallest usable segment; smaller requests are rounded up.
	MinSize uint64 = wire.HeaderSize + MinEntries*wire.SlotSize
	// MaxSize is the largest size that can be mapped into the address space.
	MaxSize uint64 = min(1<<40, math.MaxInt)
)

var (
	ErrInvalidSize  = errors.New("invalid segment size")
	ErrInvalidName  = errors.New("invalid segment name")
	ErrClosed       = errors.New("segment closed")
	ErrNotAcquired  = errors.New("segment reference count is already zero")
	ErrNoData       = errors.New("no frame data available")
	ErrDataLoss     = errors.New("frames were overwritten before being read")
	ErrProcessGone  = errors.New("target process is no longer active")
	ErrNotPublished = errors.New("segment header not initialized")
	ErrFull         = errors.New("segment is full")
)

// Config describes a segment to create.
type Config struct {
	// Name is the externally addressable name consumers open.
	Name string
	// Dir is the directory backing named mappings on unix. Empty selects
	// DefaultDir. It is ignored on Windows.
	Dir  string
	Size uint64

	Playback     wire.PlaybackFlags
	QPCFrequency uint64
}

// Segment is the producer side of a shared memory channel. Writes take a
// read lock so that Close can wait for in-flight writes before unmapping.
type Segment struct {
	name       string
	size       uint64
	maxEntries uint64
	playback   wire.PlaybackFlags

	mutex   sync.RWMutex
	mapping *mapping
	header  *wire.Header
	slots   []byte
	closed  bool

	closing  atomic.Bool
	killed   atomic.Bool
	timeouts atomic.Uint64
}

// Create reserves and initializes a named segment of cfg.Size bytes, rounded
// up to MinSize. A zero size or one larger than MaxSize is rejected, and no
// mapping is left behind on failure.
func Create(cfg Config) (*Segment, error) {
	if cfg.Size == 0 || cfg.Size > MaxSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidSize, cfg.Size)
	}
	size := max(cfg.Size, MinSize)

	m, err := createMapping(cfg.Dir, cfg.Name, size)
	if err != nil {
		return nil, fmt.Errorf("creating segment %s: %w", cfg.Name, err)
	}

	s := &Segment{
		name:       cfg.Name,
		size:       size,
		maxEntries: (size - wire.HeaderSize) / wire.SlotSize,
		playback:   cfg.Playback,
		mapping:    m,
		header:     (*wire.Header)(unsafe.Pointer(&m.data[0])),
		slots:      m.data[wire.HeaderSize:],
	}

	h := s.header
	h.Version = wire.Version
	h.HeaderSize = wire.HeaderSize
	h.SlotSize = wire.SlotSize
	h.BufSize = size
	h.MaxEntries = s.maxEntries
	h.QPCFrequency = cfg.QPCFrequency
	h.SetPlayback(cfg.Playback)
	atomic.StoreUint32(&h.RefCount, 1)
	atomic.StoreUint32(&h.ProcessActive, 1)
	atomic.StoreUint32(&h.Empty, 1)
	atomic.StoreUint32(&h.Magic, wire.Magic)

	log.Debugf("created segment %s: %s, %d entries", s.name, humanize.IBytes(size), s.maxEntries)
	return s, nil
}

func (s *Segment) Name() string { return s.name }

// Size returns the mapped size in bytes.
func (s *Segment) Size() uint64 { return s.size }

// MaxEntries returns the ring capacity in frames.
func (s *Segment) MaxEntries() uint64 { return s.maxEntries }

func (s *Segment) Playback() wire.PlaybackFlags { return s.playback }

// RefCount returns the number of attached subscribers.
func (s *Segment) RefCount() uint32 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.closed {
		return 0
	}
	return atomic.LoadUint32(&s.header.RefCount)
}

// Acquire records one more subscriber and returns the new count.
func (s *Segment) Acquire() (uint32, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	return atomic.AddUint32(&s.header.RefCount, 1), nil
}

// Release drops one subscriber and returns the remaining count. The caller
// closes the segment when it reaches zero.
func (s *Segment) Release() (uint32, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	for {
		n := atomic.LoadUint32(&s.header.RefCount)
		if n == 0 {
			return 0, ErrNotAcquired
		}
		if atomic.CompareAndSwapUint32(&s.header.RefCount, n, n-1) {
			return n - 1, nil
		}
	}
}

// IsEmpty reports whether no frame has been written yet.
func (s *Segment) IsEmpty() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return !s.closed && atomic.LoadUint32(&s.header.Empty) != 0
}

// IsFull reports whether every slot holds a frame the consumer has not
// released yet.
func (s *Segment) IsFull() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return !s.closed && s.full()
}

func (s *Segment) full() bool {
	written := atomic.LoadUint64(&s.header.NumFramesWritten)
	read := atomic.LoadUint64(&s.header.NumFramesRead)
	return written-read >= s.maxEntries
}

// FramesWritten returns the total number of frames written.
func (s *Segment) FramesWritten() uint64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.closed {
		return 0
	}
	return atomic.LoadUint64(&s.header.NumFramesWritten)
}

// RecordFirstFrameTime sets the stream time origin if nothing has been
// written yet. It reports whether the origin was set by this call.
func (s *Segment) RecordFirstFrameTime(qpc uint64) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.closed || !atomic.CompareAndSwapUint32(&s.header.Empty, 1, 0) {
		return false
	}
	atomic.StoreUint64(&s.header.StartQPC, qpc)
	return true
}

// StartQPC returns the stream time origin.
func (s *Segment) StartQPC() uint64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.closed {
		return 0
	}
	return atomic.LoadUint64(&s.header.StartQPC)
}

// WaitWritable blocks until a slot is free, the segment closes, or timeout
// elapses. It reports whether a slot is free. The producer sleeps on the
// header DrainSeq word, which consumers bump as they release frames.
func (s *Segment) WaitWritable(timeout time.Duration) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.closed {
		return false
	}

	deadline := time.Now().Add(timeout)
	for {
		seq := atomic.LoadUint32(&s.header.DrainSeq)
		if !s.full() {
			return true
		}
		if s.closing.Load() {
			return false
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		waitChange(&s.header.DrainSeq, seq, remaining)
	}
}

// WriteTelemetryCapBits publishes the capability bits of the latest samples.
func (s *Segment) WriteTelemetryCapBits(gpu, cpu uint64) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.closed {
		return ErrClosed
	}
	atomic.StoreUint64(&s.header.GpuCaps, gpu)
	atomic.StoreUint64(&s.header.CpuCaps, cpu)
	return nil
}

// WriteFrame copies slot into the next ring entry. When the ring is full the
// oldest entry is overwritten; in reset-oldest mode the read cursor is moved
// past it so consumers skip it instead of reporting data loss. A
// backpressured segment never overwrites an unreleased entry and returns
// ErrFull instead.
func (s *Segment) WriteFrame(slot *wire.FrameSlot) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.closed {
		return ErrClosed
	}

	h := s.header
	written := atomic.LoadUint64(&h.NumFramesWritten)
	if s.playback.Backpressure() && s.full() {
		return ErrFull
	}
	if s.playback.ResetOldest {
		for {
			read := atomic.LoadUint64(&h.NumFramesRead)
			if written-read < s.maxEntries {
				break
			}
			if atomic.CompareAndSwapUint64(&h.NumFramesRead, read, written-s.maxEntries+1) {
				break
			}
		}
	}

	offset := (written % s.maxEntries) * wire.SlotSize
	if err := wire.Encode(s.slots[offset:offset+wire.SlotSize], slot); err != nil {
		return fmt.Errorf("encoding frame into %s: %w", s.name, err)
	}
	if slot.Present.DisplayedCount > 0 {
		last := slot.Present.DisplayedScreenTime[min(slot.Present.DisplayedCount, wire.MaxDisplayed)-1]
		atomic.StoreUint64(&h.LastDisplayedQPC, last)
	}
	atomic.StoreUint64(&h.NumFramesWritten, written+1)
	return nil
}

// MarkDegraded flags the stream as having dropped a frame under
// backpressure. It reports true only for the first call.
func (s *Segment) MarkDegraded() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return !s.closed && atomic.CompareAndSwapUint32(&s.header.Degraded, 0, 1)
}

// RecordTimeout counts a write abandoned because consumers did not drain in
// time, and returns the new total.
func (s *Segment) RecordTimeout() uint64 {
	return s.timeouts.Add(1)
}

// Timeouts returns the number of abandoned backpressured writes.
func (s *Segment) Timeouts() uint64 {
	return s.timeouts.Load()
}

// Degraded reports whether MarkDegraded has been called.
func (s *Segment) Degraded() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return !s.closed && atomic.LoadUint32(&s.header.Degraded) != 0
}

// NotifyProcessKilled tells consumers the source of this segment is gone.
// Only the first call has an effect; it reports whether this call was it.
func (s *Segment) NotifyProcessKilled() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.closed || !s.killed.CompareAndSwap(false, true) {
		return false
	}
	atomic.StoreUint32(&s.header.ProcessActive, 0)
	s.bumpDrainSeq()
	log.Debugf("segment %s: notified consumers of process exit", s.name)
	return true
}

func (s *Segment) bumpDrainSeq() {
	atomic.AddUint32(&s.header.DrainSeq, 1)
	wake(&s.header.DrainSeq)
}

// Close notifies consumers, wakes a blocked writer, then unmaps and removes
// the segment. It is safe to call more than once.
func (s *Segment) Close() error {
	s.NotifyProcessKilled()

	s.mutex.RLock()
	if !s.closed && s.closing.CompareAndSwap(false, true) {
		s.bumpDrainSeq()
	}
	s.mutex.RUnlock()

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.header = nil
	s.slots = nil

	err := s.mapping.unmap()
	if rmErr := s.mapping.remove(); err == nil {
		err = rmErr
	}
	if err != nil {
		return fmt.Errorf("closing segment %s: %w", s.name, err)
	}
	log.Debugf("destroyed segment %s", s.name)
	return nil
}
