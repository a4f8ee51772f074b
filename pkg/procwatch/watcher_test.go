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

package procwatch_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/frametrace/frametrace-agent/pkg/procwatch"
	"github.com/frametrace/frametrace-agent/pkg/streamer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStreams struct {
	mutex   sync.Mutex
	targets []streamer.TargetKey
	clients []streamer.ClientID
	stopped []uint32
}

func (f *fakeStreams) Targets() []streamer.TargetKey {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.targets
}

func (f *fakeStreams) Clients() []streamer.ClientID {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.clients
}

func (f *fakeStreams) StopStreaming(id uint32) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	for _, s := range f.stopped {
		if s == id {
			return streamer.ErrNotTracked
		}
	}
	f.stopped = append(f.stopped, id)
	return nil
}

func (f *fakeStreams) stoppedIDs() []uint32 {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]uint32(nil), f.stopped...)
}

func TestScanStopsDeadProcesses(t *testing.T) {
	t.Parallel()

	streams := &fakeStreams{
		targets: []streamer.TargetKey{streamer.AllProcesses(), streamer.Specific(200), streamer.Specific(300)},
		clients: []streamer.ClientID{100, 300},
	}
	dead := map[uint32]bool{300: true, 100: true}
	w := procwatch.New(streams, 0).WithAliveFunc(func(pid uint32) bool { return !dead[pid] })

	stopped := w.Scan()
	assert.Equal(t, []uint32{300, 100}, stopped)
	assert.Equal(t, []uint32{300, 100}, streams.stoppedIDs())
}

func TestRun(t *testing.T) {
	t.Parallel()

	streams := &fakeStreams{targets: []streamer.TargetKey{streamer.Specific(200)}}
	w := procwatch.New(streams, time.Millisecond).WithAliveFunc(func(uint32) bool { return false })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(streams.stoppedIDs()) == 1
	}, 5*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestAliveSelf(t *testing.T) {
	t.Parallel()

	assert.True(t, procwatch.Alive(uint32(os.Getpid())))
}
