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

// Package procwatch stops streams whose target or client process has exited.
package procwatch

import (
	"context"
	"errors"
	"time"

	"github.com/Masterminds/log-go"
	"github.com/frametrace/frametrace-agent/pkg/streamer"
)

// DefaultInterval is the default time between liveness scans.
const DefaultInterval = time.Second

// Streams is the part of the streamer the watcher needs.
type Streams interface {
	Targets() []streamer.TargetKey
	Clients() []streamer.ClientID
	StopStreaming(id uint32) error
}

// Watcher periodically checks that every streamed process and every
// subscribed client is alive.
type Watcher struct {
	streams  Streams
	interval time.Duration
	alive    func(pid uint32) bool
}

func New(streams Streams, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Watcher{streams: streams, interval: interval, alive: Alive}
}

// WithAliveFunc replaces the liveness check.
func (w *Watcher) WithAliveFunc(alive func(pid uint32) bool) *Watcher {
	w.alive = alive
	return w
}

// Run scans until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debugf("process watcher context cancelled: %s", ctx.Err())
			return nil
		case <-ticker.C:
			w.Scan()
		}
	}
}

// Scan stops streaming for every dead target and client. It returns the
// ids that were stopped.
func (w *Watcher) Scan() []uint32 {
	var dead []uint32
	for _, target := range w.streams.Targets() {
		pid, ok := target.PID()
		if ok && !w.alive(pid) {
			dead = append(dead, pid)
		}
	}
	for _, client := range w.streams.Clients() {
		if !w.alive(uint32(client)) {
			dead = append(dead, uint32(client))
		}
	}

	var stopped []uint32
	for _, pid := range dead {
		err := w.streams.StopStreaming(pid)
		switch {
		case err == nil:
			log.Infof("process %d exited, stopped its streams", pid)
			stopped = append(stopped, pid)
		case errors.Is(err, streamer.ErrNotTracked):
			// Already removed along with another dead process.
		default:
			log.Errorf("stopping streams of exited process %d: %s", pid, err)
		}
	}
	return stopped
}
