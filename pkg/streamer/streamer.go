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

// Package streamer distributes frames and telemetry from the capture
// pipeline to consumer processes. It maps target processes to shared memory
// segments, tracks which clients subscribed to which targets, and copies
// each frame into the segments that want it.
package streamer

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Masterminds/log-go"
	"github.com/frametrace/frametrace-agent/pkg/frame"
	"github.com/frametrace/frametrace-agent/pkg/segment"
	"github.com/frametrace/frametrace-agent/pkg/telemetry"
	"github.com/frametrace/frametrace-agent/pkg/wire"
	"github.com/hashicorp/go-multierror"
)

// DefaultBackpressureTimeout bounds how long a backpressured write waits
// for a consumer to free a slot.
const DefaultBackpressureTimeout = 500 * time.Millisecond

// Segment is the producer side of a shared memory channel.
type Segment interface {
	Name() string
	Playback() wire.PlaybackFlags
	Acquire() (uint32, error)
	Release() (uint32, error)
	RefCount() uint32
	IsEmpty() bool
	IsFull() bool
	RecordFirstFrameTime(qpc uint64) bool
	WaitWritable(timeout time.Duration) bool
	WriteTelemetryCapBits(gpu, cpu uint64) error
	WriteFrame(slot *wire.FrameSlot) error
	MarkDegraded() bool
	Degraded() bool
	RecordTimeout() uint64
	Timeouts() uint64
	FramesWritten() uint64
	NotifyProcessKilled() bool
	Close() error
}

// Allocator creates a segment.
type Allocator func(cfg segment.Config) (Segment, error)

func createSegment(cfg segment.Config) (Segment, error) {
	seg, err := segment.Create(cfg)
	if err != nil {
		return nil, err
	}
	return seg, nil
}

type Options struct {
	// Prefix is prepended to the target id to name a segment.
	Prefix string
	// Dir holds the segments on unix.
	Dir string
	// SegmentSize overrides the size taken from the environment.
	SegmentSize uint64
	// BackpressureTimeout bounds a backpressured write.
	BackpressureTimeout time.Duration
	QPCFrequency        uint64
	Allocate            Allocator
}

// Streamer owns every stream of a producer. Registry changes and segment
// lookups happen under one lock, which is never held while frame data is
// being copied.
type Streamer struct {
	opts Options

	mutex    sync.Mutex
	registry *registry

	startQPC atomic.Uint64
	timedOut atomic.Bool

	correlator *correlator
}

// New creates a Streamer. Zero-valued options take their defaults.
func New(opts Options) *Streamer {
	if opts.Prefix == "" {
		opts.Prefix = segment.DefaultPrefix
	}
	if opts.BackpressureTimeout <= 0 {
		opts.BackpressureTimeout = DefaultBackpressureTimeout
	}
	if opts.Allocate == nil {
		opts.Allocate = createSegment
	}
	return &Streamer{
		opts:       opts,
		registry:   newRegistry(),
		correlator: newCorrelator(),
	}
}

// MapFileName returns the segment name for target, whether or not it is
// being streamed.
func (s *Streamer) MapFileName(target TargetKey) string {
	return s.opts.Prefix + target.nameID()
}

// StartStreaming subscribes client to target and returns the name of the
// segment to open. The segment is created on the first subscription to
// target and shared by later ones. Backpressure is only available to
// playback streams.
func (s *Streamer) StartStreaming(client ClientID, target TargetKey, playback wire.PlaybackFlags) (string, error) {
	if !target.Valid() {
		return "", fmt.Errorf("%w: %s", ErrInvalidPid, target)
	}
	if playback.Backpressured && !playback.Playback {
		return "", fmt.Errorf("%w: backpressure requires playback", ErrInvalidPlayback)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	seg, err := s.registry.attach(client, target, func() (Segment, error) {
		return s.newSegment(target, playback)
	})
	if err != nil {
		return "", err
	}
	return seg.Name(), nil
}

func (s *Streamer) newSegment(target TargetKey, playback wire.PlaybackFlags) (Segment, error) {
	size := s.opts.SegmentSize
	if size == 0 {
		var err error
		if size, err = SegmentSizeFromEnv(); err != nil {
			return nil, fmt.Errorf("%w for %s: %w", ErrUnableToCreateSegment, target, err)
		}
	}

	name := s.MapFileName(target)
	seg, err := s.opts.Allocate(segment.Config{
		Name:         name,
		Dir:          s.opts.Dir,
		Size:         size,
		Playback:     playback,
		QPCFrequency: s.opts.QPCFrequency,
	})
	if err != nil {
		return nil, fmt.Errorf("%w for %s: %w", ErrUnableToCreateSegment, target, err)
	}
	log.Infof("started streaming %s to %s", target, name)
	return seg, nil
}

// StopStreaming removes the subscriptions of id. If id is a client, all of
// its subscriptions are removed; otherwise, if id is a streamed process,
// every subscription to it is removed and its segment destroyed.
func (s *Streamer) StopStreaming(id uint32) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.registry.hasClient(ClientID(id)) {
		return s.registry.detachClient(ClientID(id))
	}
	target := Specific(id)
	if s.registry.segment(target) != nil {
		s.correlator.forget(id)
		return s.registry.detachTarget(target)
	}
	return fmt.Errorf("%w: %d", ErrNotTracked, id)
}

// StopStreamingFor removes exactly one subscription.
func (s *Streamer) StopStreamingFor(client ClientID, target TargetKey) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.registry.detach(client, target)
}

// StopClient removes every subscription held by client.
func (s *Streamer) StopClient(client ClientID) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.registry.hasClient(client) {
		return fmt.Errorf("%w: client %d", ErrNotTracked, client)
	}
	return s.registry.detachClient(client)
}

// StopTarget removes every subscription to target and destroys its segment.
func (s *Streamer) StopTarget(target TargetKey) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if pid, ok := target.PID(); ok {
		s.correlator.forget(pid)
	}
	return s.registry.detachTarget(target)
}

// StopAllStreams destroys every segment. It is called on producer shutdown.
func (s *Streamer) StopAllStreams() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.correlator.reset()
	return s.registry.destroyAll()
}

// SetStartQPC sets the time origin used by playback segments.
func (s *Streamer) SetStartQPC(qpc uint64) {
	s.startQPC.Store(qpc)
}

// IsTimedOut reports whether any backpressured write has been dropped.
func (s *Streamer) IsTimedOut() bool {
	return s.timedOut.Load()
}

// NumActiveStreams returns the number of live segments.
func (s *Streamer) NumActiveStreams() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.registry.streams)
}

// Targets returns the streamed targets.
func (s *Streamer) Targets() []TargetKey {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.registry.targets()
}

// Clients returns the clients holding at least one subscription.
func (s *Streamer) Clients() []ClientID {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	clients := make([]ClientID, 0, len(s.registry.clients))
	for client := range s.registry.clients {
		clients = append(clients, client)
	}
	slices.Sort(clients)
	return clients
}

// lookup returns the segments a frame of pid is written to.
func (s *Streamer) lookup(pid uint32) []Segment {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var segs []Segment
	if seg := s.registry.segment(Specific(pid)); seg != nil {
		segs = append(segs, seg)
	}
	if seg := s.registry.segment(AllProcesses()); seg != nil {
		segs = append(segs, seg)
	}
	return segs
}

// ProcessPresentEvent copies rec and the telemetry samples into the segment
// of the presenting process and into the stream-all segment, when either is
// being streamed. Each segment is written independently; the returned error
// combines the per-segment failures. A nil rec is a programming error.
func (s *Streamer) ProcessPresentEvent(rec *frame.Record, gpu *telemetry.GpuSample, cpu *telemetry.CpuSample,
	gpuCaps telemetry.GpuCaps, cpuCaps telemetry.CpuCaps,
) error {
	if rec == nil {
		panic("streamer: nil frame record")
	}

	lastPresent, lastDisplayed := s.correlator.observe(rec)

	segs := s.lookup(rec.ProcessID)
	if len(segs) == 0 {
		return nil
	}

	slot := wire.FrameSlot{
		Present: wire.FromRecord(rec, lastPresent, lastDisplayed),
		GpuCaps: gpuCaps.Uint64(),
		CpuCaps: cpuCaps.Uint64(),
	}
	if gpu != nil {
		slot.Gpu = gpu.Payload
	}
	if cpu != nil {
		slot.Cpu = cpu.Payload
	}

	var errs *multierror.Error
	for _, seg := range segs {
		if err := s.write(seg, &slot, true); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// WriteFrameData writes a slot whose telemetry is already merged to the
// segment of target alone. It never waits for consumers: when a
// backpressured segment is full the frame is dropped, the segment marked
// degraded, and an error wrapping segment.ErrFull returned. slot is not
// modified.
func (s *Streamer) WriteFrameData(target TargetKey, slot *wire.FrameSlot, gpuCaps telemetry.GpuCaps, cpuCaps telemetry.CpuCaps) error {
	if slot == nil {
		panic("streamer: nil frame slot")
	}

	s.mutex.Lock()
	seg := s.registry.segment(target)
	s.mutex.Unlock()
	if seg == nil {
		return fmt.Errorf("%w: target %s", ErrNotTracked, target)
	}

	merged := *slot
	merged.GpuCaps = gpuCaps.Uint64()
	merged.CpuCaps = cpuCaps.Uint64()
	return s.write(seg, &merged, false)
}

func (s *Streamer) write(seg Segment, slot *wire.FrameSlot, backpressure bool) error {
	playback := seg.Playback()
	if seg.IsEmpty() {
		origin := slot.Present.PresentStartTime
		if playback.Playback {
			origin = s.startQPC.Load()
		}
		seg.RecordFirstFrameTime(origin)
	}

	if backpressure && playback.Backpressure() && seg.IsFull() {
		if !seg.WaitWritable(s.opts.BackpressureTimeout) {
			if seg.RefCount() == 0 {
				// Closed while waiting.
				return nil
			}
			seg.RecordTimeout()
			if seg.MarkDegraded() {
				log.Errorf("segment %s: consumer did not drain within %s, dropping frames", seg.Name(), s.opts.BackpressureTimeout)
			}
			s.timedOut.Store(true)
			return fmt.Errorf("%w: %s", ErrWriteTimedOut, seg.Name())
		}
	}

	err := seg.WriteTelemetryCapBits(slot.GpuCaps, slot.CpuCaps)
	if err == nil {
		err = seg.WriteFrame(slot)
	}
	if errors.Is(err, segment.ErrClosed) {
		// The stream was stopped after the lookup.
		return nil
	}
	if errors.Is(err, segment.ErrFull) {
		if seg.MarkDegraded() {
			log.Errorf("segment %s: consumer has not released any slot, dropping frames", seg.Name())
		}
		return fmt.Errorf("%w: %s", err, seg.Name())
	}
	return err
}
