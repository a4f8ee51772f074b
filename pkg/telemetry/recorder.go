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

package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/Masterminds/log-go"
	"github.com/frametrace/frametrace-agent/pkg/capbits"
	"github.com/frametrace/frametrace-agent/pkg/history"
)

// Source produces one telemetry sample per call. Vendor adapters implement
// it over their native control libraries.
type Source[P Payload, F capbits.Field] interface {
	Poll(ctx context.Context) (Sample[P, F], error)
}

// Recorder polls a Source on a fixed interval and keeps the most recent
// samples so a frame can be matched with the sample closest to it in time.
type Recorder[P Payload, F capbits.Field] struct {
	name    string
	source  Source[P, F]
	mutex   sync.Mutex
	history *history.Buffer[Sample[P, F]]
}

// NewRecorder creates a Recorder retaining up to capacity samples. A
// non-positive capacity selects history.DefaultCapacity.
func NewRecorder[P Payload, F capbits.Field](name string, source Source[P, F], capacity int) *Recorder[P, F] {
	return &Recorder[P, F]{
		name:    name,
		source:  source,
		history: history.New[Sample[P, F]](capacity),
	}
}

// Record stores a sample obtained outside of Run.
func (r *Recorder[P, F]) Record(sample Sample[P, F]) {
	r.mutex.Lock()
	r.history.Push(sample)
	r.mutex.Unlock()
}

// Closest returns the retained sample nearest to qpc.
func (r *Recorder[P, F]) Closest(qpc uint64) (Sample[P, F], bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.history.Nearest(qpc)
}

// Latest returns the most recently recorded sample.
func (r *Recorder[P, F]) Latest() (Sample[P, F], bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.history.Newest()
}

// Run polls the source every interval until ctx is cancelled. Poll failures
// are logged and the loop continues.
func (r *Recorder[P, F]) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debugf("%s telemetry recorder stopped: %s", r.name, ctx.Err())
			return nil
		case <-ticker.C:
			sample, err := r.source.Poll(ctx)
			if err != nil {
				log.Errorf("%s telemetry poll failed: %s", r.name, err)
				continue
			}
			r.Record(sample)
		}
	}
}
