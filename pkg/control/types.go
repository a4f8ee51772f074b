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

// Package control carries start and stop requests from streaming clients to
// the producer as JSON messages over a local unix socket.
package control

import (
	"fmt"

	"github.com/frametrace/frametrace-agent/pkg/status"
	"github.com/frametrace/frametrace-agent/pkg/streamer"
	"github.com/frametrace/frametrace-agent/pkg/wire"
)

// Op names a control operation.
type Op string

const (
	OpStart    Op = "start"
	OpStop     Op = "stop"
	OpStopPair Op = "stop_pair"
	OpStopAll  Op = "stop_all"
	OpStats    Op = "stats"
)

// Request is one control message. Which fields are used depends on Op.
type Request struct {
	Op       Op                 `json:"op"`
	Client   streamer.ClientID  `json:"client,omitempty"`
	Target   streamer.TargetKey `json:"target"`
	ID       uint32             `json:"id,omitempty"`
	Playback wire.PlaybackFlags `json:"playback"`
}

// Response answers a Request.
type Response struct {
	Status  status.Status          `json:"status"`
	Segment string                 `json:"segment,omitempty"`
	Error   string                 `json:"error,omitempty"`
	Streams []streamer.StreamStats `json:"streams,omitempty"`
}

// StatusError is returned by the Client when the producer reports anything
// but success.
type StatusError struct {
	Status  status.Status
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return e.Status.String()
	}
	return fmt.Sprintf("%s: %s", e.Status, e.Message)
}
