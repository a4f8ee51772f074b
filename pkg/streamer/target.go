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
	"strconv"
	"strings"
)

// ClientID identifies a subscribing consumer, usually by its process id.
type ClientID uint32

// allPID is the id carried in the name of the stream-all segment. Process
// id 0 is the idle process and never presents.
const allPID = 0

// TargetKey identifies what a segment streams: one process, or every
// process at once.
type TargetKey struct {
	pid uint32
	all bool
}

// Specific selects the frames of a single process.
func Specific(pid uint32) TargetKey {
	return TargetKey{pid: pid}
}

// AllProcesses selects the stream-all channel, which receives every frame.
func AllProcesses() TargetKey {
	return TargetKey{all: true}
}

// IsAll reports whether k is the stream-all channel.
func (k TargetKey) IsAll() bool { return k.all }

// PID returns the process id of a specific target.
func (k TargetKey) PID() (uint32, bool) {
	return k.pid, !k.all
}

// Valid reports whether k can be streamed. Process id 0 is reserved for the
// stream-all channel.
func (k TargetKey) Valid() bool {
	return k.all || k.pid != allPID
}

// nameID is the decimal id used in the segment name.
func (k TargetKey) nameID() string {
	if k.all {
		return strconv.Itoa(allPID)
	}
	return strconv.FormatUint(uint64(k.pid), 10)
}

func (k TargetKey) String() string {
	if k.all {
		return "all"
	}
	return strconv.FormatUint(uint64(k.pid), 10)
}

// ParseTarget parses the String form of a TargetKey.
func ParseTarget(s string) (TargetKey, error) {
	if strings.EqualFold(s, "all") {
		return AllProcesses(), nil
	}
	pid, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return TargetKey{}, err
	}
	return Specific(uint32(pid)), nil
}

// MarshalText implements encoding.TextMarshaler.
func (k TargetKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *TargetKey) UnmarshalText(text []byte) error {
	parsed, err := ParseTarget(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
