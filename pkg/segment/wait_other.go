//go:build !linux

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
	"sync/atomic"
	"time"
)

const pollInterval = time.Millisecond

// waitChange polls *addr until it no longer holds val or timeout elapses.
func waitChange(addr *uint32, val uint32, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for atomic.LoadUint32(addr) == val {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		time.Sleep(min(pollInterval, remaining))
	}
}

func wake(*uint32) {}
