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
	"maps"
	"slices"

	"github.com/frametrace/frametrace-agent/pkg/wire"
)

// StreamStats describes one live stream.
type StreamStats struct {
	Target        TargetKey          `json:"target" yaml:"target"`
	Segment       string             `json:"segment" yaml:"segment"`
	RefCount      uint32             `json:"refCount" yaml:"refCount"`
	Clients       []ClientID         `json:"clients" yaml:"clients"`
	FramesWritten uint64             `json:"framesWritten" yaml:"framesWritten"`
	Degraded      bool               `json:"degraded" yaml:"degraded"`
	Timeouts      uint64             `json:"timeouts" yaml:"timeouts"`
	Playback      wire.PlaybackFlags `json:"playback" yaml:"playback"`
}

// Stats returns a snapshot of every stream, ordered by target.
func (s *Streamer) Stats() []StreamStats {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	targets := s.registry.targets()
	stats := make([]StreamStats, 0, len(targets))
	for _, target := range targets {
		st := s.registry.streams[target]
		stats = append(stats, StreamStats{
			Target:        target,
			Segment:       st.segment.Name(),
			RefCount:      st.segment.RefCount(),
			Clients:       slices.Sorted(maps.Keys(st.clients)),
			FramesWritten: st.segment.FramesWritten(),
			Degraded:      st.segment.Degraded(),
			Timeouts:      st.segment.Timeouts(),
			Playback:      st.segment.Playback(),
		})
	}
	return stats
}
