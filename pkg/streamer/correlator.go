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

package streamer

import (
	"sync"

	"github.com/frametrace/frametrace-agent/pkg/frame"
)

// maxCorrelated bounds the number of processes remembered between frames.
const maxCorrelated = 4096

type lastFrame struct {
	present   uint64
	displayed uint64
}

// correlator remembers, per process, the previous present and the latest
// display time so each slot can carry them.
type correlator struct {
	mutex sync.Mutex
	last  map[uint32]lastFrame
}

func newCorrelator() *correlator {
	return &correlator{last: make(map[uint32]lastFrame)}
}

// observe returns the previous present start and the latest display of the
// process of rec, then records rec.
func (c *correlator) observe(rec *frame.Record) (lastPresent, lastDisplayed uint64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	prev, ok := c.last[rec.ProcessID]
	if !ok && len(c.last) >= maxCorrelated {
		clear(c.last)
	}
	next := lastFrame{present: rec.PresentStartTime, displayed: prev.displayed}
	if screen := rec.LastScreenTime(); screen != 0 {
		next.displayed = screen
	}
	c.last[rec.ProcessID] = next
	return prev.present, prev.displayed
}

func (c *correlator) forget(pid uint32) {
	c.mutex.Lock()
	delete(c.last, pid)
	c.mutex.Unlock()
}

func (c *correlator) reset() {
	c.mutex.Lock()
	clear(c.last)
	c.mutex.Unlock()
}
