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

// Package status defines the result codes reported to streaming clients.
package status

import "fmt"

type Status int

const (
	Success Status = iota
	Failure
	SessionNotOpen
	ServiceError
	InvalidEtlFile
	DataLoss
	NoData
	InvalidPid
	AlreadyTracking
	UnableToCreateSegment
	InvalidAdapterID
	OutOfRange
	InsufficientBuffer
	PipeError
)

var names = map[Status]string{
	Success:               "Success",
	Failure:               "Failure",
	SessionNotOpen:        "SessionNotOpen",
	ServiceError:          "ServiceError",
	InvalidEtlFile:        "InvalidEtlFile",
	DataLoss:              "DataLoss",
	NoData:                "NoData",
	InvalidPid:            "InvalidPid",
	AlreadyTracking:       "AlreadyTracking",
	UnableToCreateSegment: "UnableToCreateSegment",
	InvalidAdapterID:      "InvalidAdapterId",
	OutOfRange:            "OutOfRange",
	InsufficientBuffer:    "InsufficientBuffer",
	PipeError:             "PipeError",
}

func (s Status) String() string {
	if name, ok := names[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	for status, name := range names {
		if name == string(text) {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", text)
}
