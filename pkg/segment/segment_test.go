//go:build unix

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

package segment_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/frametrace/frametrace-agent/pkg/segment"
	"github.com/frametrace/frametrace-agent/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoSlots is the smallest size accepted without rounding.
const twoSlots = wire.HeaderSize + 2*wire.SlotSize

func newSegment(t *testing.T, size uint64, playback wire.PlaybackFlags) (*segment.Segment, string) {
	t.Helper()
	dir := t.TempDir()
	seg, err := segment.Create(segment.Config{
		Name:         "frametrace-test-200",
		Dir:          dir,
		Size:         size,
		Playback:     playback,
		QPCFrequency: 10_000_000,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = seg.Close() })
	return seg, dir
}

func openView(t *testing.T, dir string) *segment.View {
	t.Helper()
	v, err := segment.Open(dir, "frametrace-test-200")
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })
	return v
}

func writeFrames(t *testing.T, seg *segment.Segment, first, count uint32) {
	t.Helper()
	for id := first; id < first+count; id++ {
		var slot wire.FrameSlot
		slot.Present.FrameID = id
		require.NoError(t, seg.WriteFrame(&slot))
	}
}

func dequeueID(t *testing.T, v *segment.View) uint32 {
	t.Helper()
	var slot wire.FrameSlot
	require.NoError(t, v.Dequeue(&slot))
	return slot.Present.FrameID
}

func TestCreateRejectsInvalidSize(t *testing.T) {
	t.Parallel()

	for _, size := range []uint64{0, segment.MaxSize + 1, ^uint64(0)} {
		dir := t.TempDir()
		seg, err := segment.Create(segment.Config{Name: "frametrace-test-1", Dir: dir, Size: size})
		require.ErrorIs(t, err, segment.ErrInvalidSize, "size %d", size)
		assert.Nil(t, seg)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries, "no segment may be left behind")
	}
}

func TestCreateRejectsInvalidName(t *testing.T) {
	t.Parallel()

	_, err := segment.Create(segment.Config{Name: "a/b", Dir: t.TempDir(), Size: segment.DefaultSize})
	require.ErrorIs(t, err, segment.ErrInvalidName)
}

func TestCreateRoundsUpToMinimum(t *testing.T) {
	t.Parallel()

	seg, dir := newSegment(t, 1, wire.PlaybackFlags{})
	assert.Equal(t, segment.MinSize, seg.Size())
	assert.Equal(t, uint64(segment.MinEntries), seg.MaxEntries())

	info, err := os.Stat(filepath.Join(dir, seg.Name()))
	require.NoError(t, err)
	assert.Equal(t, int64(segment.MinSize), info.Size())
}

func TestCreateDefaultSize(t *testing.T) {
	t.Parallel()

	seg, dir := newSegment(t, segment.DefaultSize, wire.PlaybackFlags{Playback: true, Paced: true})
	assert.Equal(t, (segment.DefaultSize-wire.HeaderSize)/wire.SlotSize, seg.MaxEntries())

	v := openView(t, dir)
	assert.Equal(t, seg.MaxEntries(), v.MaxEntries())
	assert.Equal(t, wire.PlaybackFlags{Playback: true, Paced: true}, v.Playback())
	assert.Equal(t, uint64(10_000_000), v.QPCFrequency())
	assert.True(t, v.ProcessActive())
}

func TestRefCount(t *testing.T) {
	t.Parallel()

	seg, _ := newSegment(t, twoSlots, wire.PlaybackFlags{})
	assert.Equal(t, uint32(1), seg.RefCount())

	n, err := seg.Acquire()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), n)

	n, err = seg.Release()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), n)

	n, err = seg.Release()
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = seg.Release()
	require.ErrorIs(t, err, segment.ErrNotAcquired)
}

func TestFirstFrameTime(t *testing.T) {
	t.Parallel()

	seg, dir := newSegment(t, twoSlots, wire.PlaybackFlags{})
	v := openView(t, dir)
	assert.True(t, seg.IsEmpty())
	assert.Zero(t, v.StartQPC())

	assert.True(t, seg.RecordFirstFrameTime(100))
	assert.False(t, seg.RecordFirstFrameTime(200))
	assert.False(t, seg.IsEmpty())
	assert.Equal(t, uint64(100), seg.StartQPC())
	assert.Equal(t, uint64(100), v.StartQPC())
}

func TestWriteAndDequeue(t *testing.T) {
	t.Parallel()

	seg, dir := newSegment(t, segment.DefaultSize, wire.PlaybackFlags{})
	v := openView(t, dir)

	var empty wire.FrameSlot
	require.ErrorIs(t, v.Latest(&empty), segment.ErrNoData)
	require.ErrorIs(t, v.Dequeue(&empty), segment.ErrNoData)

	require.NoError(t, seg.WriteTelemetryCapBits(0b101, 0b1))
	slot := wire.FrameSlot{}
	slot.Present.FrameID = 7
	slot.Present.DisplayedCount = 2
	slot.Present.DisplayedScreenTime[1] = 555
	require.NoError(t, seg.WriteFrame(&slot))
	writeFrames(t, seg, 8, 2)

	assert.Equal(t, uint64(3), seg.FramesWritten())
	assert.Equal(t, uint64(3), v.Pending())
	assert.Equal(t, uint64(555), v.LastDisplayedQPC())
	gpu, cpu := v.CapBits()
	assert.Equal(t, uint64(0b101), gpu)
	assert.Equal(t, uint64(0b1), cpu)

	var latest wire.FrameSlot
	require.NoError(t, v.Latest(&latest))
	assert.Equal(t, uint32(9), latest.Present.FrameID)

	assert.Equal(t, uint32(7), dequeueID(t, v))
	assert.Equal(t, uint32(8), dequeueID(t, v))
	assert.Equal(t, uint32(9), dequeueID(t, v))
	require.ErrorIs(t, v.Dequeue(&empty), segment.ErrNoData)
	assert.False(t, seg.IsFull(), "live consumers do not hold slots")
}

func TestOverwriteOldestReportsDataLoss(t *testing.T) {
	t.Parallel()

	seg, dir := newSegment(t, twoSlots, wire.PlaybackFlags{})
	v := openView(t, dir)

	writeFrames(t, seg, 0, 5)

	var slot wire.FrameSlot
	require.ErrorIs(t, v.Dequeue(&slot), segment.ErrDataLoss)
	assert.Equal(t, uint32(4), dequeueID(t, v))
	require.ErrorIs(t, v.Dequeue(&slot), segment.ErrNoData)
}

func TestResetOldestSkipsWithoutDataLoss(t *testing.T) {
	t.Parallel()

	seg, dir := newSegment(t, twoSlots, wire.PlaybackFlags{Playback: true, ResetOldest: true})
	v := openView(t, dir)

	writeFrames(t, seg, 0, 3)
	assert.Equal(t, uint64(2), v.Pending())

	assert.Equal(t, uint32(1), dequeueID(t, v))
	assert.Equal(t, uint32(2), dequeueID(t, v))

	var slot wire.FrameSlot
	require.ErrorIs(t, v.Dequeue(&slot), segment.ErrNoData)
}

func TestBackpressuredWithoutPlaybackIsLive(t *testing.T) {
	t.Parallel()

	seg, dir := newSegment(t, twoSlots, wire.PlaybackFlags{Backpressured: true})
	v := openView(t, dir)
	writeFrames(t, seg, 0, 5)
	assert.Equal(t, uint64(5), seg.FramesWritten())

	var slot wire.FrameSlot
	require.ErrorIs(t, v.Dequeue(&slot), segment.ErrDataLoss)
	assert.Equal(t, uint32(4), dequeueID(t, v))
	assert.ErrorIs(t, v.Dequeue(&slot), segment.ErrNoData)
}

func TestBackpressuredWriteNeverOverwrites(t *testing.T) {
	t.Parallel()

	for _, playback := range []wire.PlaybackFlags{
		{Playback: true, Backpressured: true},
		{Playback: true, Backpressured: true, ResetOldest: true},
	} {
		seg, dir := newSegment(t, twoSlots, playback)
		v := openView(t, dir)
		writeFrames(t, seg, 0, 2)

		var slot wire.FrameSlot
		slot.Present.FrameID = 99
		require.ErrorIs(t, seg.WriteFrame(&slot), segment.ErrFull, "%+v", playback)
		assert.Equal(t, uint64(2), seg.FramesWritten())

		assert.Equal(t, uint32(0), dequeueID(t, v))
		require.NoError(t, seg.WriteFrame(&slot))
		assert.Equal(t, uint32(1), dequeueID(t, v))
		assert.Equal(t, uint32(99), dequeueID(t, v))
		assert.ErrorIs(t, v.Dequeue(&slot), segment.ErrNoData)
	}
}

func TestRecordTimeout(t *testing.T) {
	t.Parallel()

	seg, _ := newSegment(t, twoSlots, wire.PlaybackFlags{Playback: true, Backpressured: true})
	assert.Zero(t, seg.Timeouts())
	assert.Equal(t, uint64(1), seg.RecordTimeout())
	assert.Equal(t, uint64(2), seg.RecordTimeout())
	assert.Equal(t, uint64(2), seg.Timeouts())
}

func TestWaitWritableTimesOut(t *testing.T) {
	t.Parallel()

	seg, _ := newSegment(t, twoSlots, wire.PlaybackFlags{Playback: true, Backpressured: true})
	assert.True(t, seg.WaitWritable(time.Second))

	writeFrames(t, seg, 0, 2)
	require.True(t, seg.IsFull())

	start := time.Now()
	assert.False(t, seg.WaitWritable(30*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestWaitWritableWokenByDrain(t *testing.T) {
	t.Parallel()

	seg, dir := newSegment(t, twoSlots, wire.PlaybackFlags{Playback: true, Backpressured: true})
	v := openView(t, dir)
	writeFrames(t, seg, 0, 2)
	require.True(t, seg.IsFull())

	var wg sync.WaitGroup
	var drainErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(20 * time.Millisecond)
		var slot wire.FrameSlot
		drainErr = v.Dequeue(&slot)
	}()
	// The view is unmapped by cleanup, which runs after deferred calls.
	defer wg.Wait()

	start := time.Now()
	require.True(t, seg.WaitWritable(5*time.Second))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.False(t, seg.IsFull())
	wg.Wait()
	assert.NoError(t, drainErr)
}

func TestBackpressuredConsumerSeesEveryFrame(t *testing.T) {
	t.Parallel()

	seg, dir := newSegment(t, twoSlots, wire.PlaybackFlags{Playback: true, Backpressured: true})
	v := openView(t, dir)

	const frames = 50
	stop := make(chan struct{})
	done := make(chan []uint32, 1)
	go func() {
		var got []uint32
		var slot wire.FrameSlot
		for len(got) < frames {
			select {
			case <-stop:
				done <- got
				return
			default:
			}
			if err := v.Dequeue(&slot); err != nil {
				time.Sleep(time.Millisecond)
				continue
			}
			got = append(got, slot.Present.FrameID)
		}
		done <- got
	}()
	var got []uint32
	defer func() {
		// Stop the reader before cleanup unmaps the view.
		close(stop)
		if got == nil {
			<-done
		}
	}()

	for id := uint32(0); id < frames; id++ {
		require.True(t, seg.WaitWritable(5*time.Second))
		var slot wire.FrameSlot
		slot.Present.FrameID = id
		require.NoError(t, seg.WriteFrame(&slot))
	}

	got = <-done
	require.Len(t, got, frames)
	for i, id := range got {
		assert.Equal(t, uint32(i), id)
	}
}

func TestCloseWakesWaitingWriter(t *testing.T) {
	t.Parallel()

	seg, _ := newSegment(t, twoSlots, wire.PlaybackFlags{Playback: true, Backpressured: true})
	writeFrames(t, seg, 0, 2)

	result := make(chan bool)
	go func() { result <- seg.WaitWritable(10 * time.Second) }()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, seg.Close())

	select {
	case ok := <-result:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("writer was not woken by Close")
	}
}

func TestMarkDegradedOnce(t *testing.T) {
	t.Parallel()

	seg, dir := newSegment(t, twoSlots, wire.PlaybackFlags{})
	v := openView(t, dir)

	assert.False(t, seg.Degraded())
	assert.True(t, seg.MarkDegraded())
	assert.False(t, seg.MarkDegraded())
	assert.True(t, seg.Degraded())
	assert.True(t, v.Degraded())
}

func TestCloseNotifiesAndRemoves(t *testing.T) {
	t.Parallel()

	seg, dir := newSegment(t, twoSlots, wire.PlaybackFlags{})
	v := openView(t, dir)
	writeFrames(t, seg, 0, 1)

	require.NoError(t, seg.Close())
	require.NoError(t, seg.Close(), "Close is idempotent")
	assert.False(t, seg.NotifyProcessKilled())

	_, err := os.Stat(filepath.Join(dir, seg.Name()))
	assert.True(t, os.IsNotExist(err))

	assert.False(t, v.ProcessActive())
	assert.Equal(t, uint32(0), dequeueID(t, v))
	var slot wire.FrameSlot
	require.ErrorIs(t, v.Dequeue(&slot), segment.ErrProcessGone)

	require.ErrorIs(t, seg.WriteFrame(&slot), segment.ErrClosed)
	_, err = seg.Acquire()
	require.ErrorIs(t, err, segment.ErrClosed)
	assert.Zero(t, seg.RefCount())
}

func TestViewCloseLeavesSegment(t *testing.T) {
	t.Parallel()

	seg, dir := newSegment(t, twoSlots, wire.PlaybackFlags{})
	writeFrames(t, seg, 0, 1)

	v, err := segment.Open(dir, seg.Name())
	require.NoError(t, err)
	require.NoError(t, v.Close())

	_, err = os.Stat(filepath.Join(dir, seg.Name()))
	require.NoError(t, err)
	again := openView(t, dir)
	assert.Equal(t, uint64(1), again.FramesWritten())
}

func TestNotifyProcessKilledOnce(t *testing.T) {
	t.Parallel()

	seg, _ := newSegment(t, twoSlots, wire.PlaybackFlags{})
	assert.True(t, seg.NotifyProcessKilled())
	assert.False(t, seg.NotifyProcessKilled())
}

func TestOpenMissing(t *testing.T) {
	t.Parallel()

	_, err := segment.Open(t.TempDir(), "frametrace-test-404")
	require.ErrorIs(t, err, os.ErrNotExist)
}
