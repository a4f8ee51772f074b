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
	"errors"

	"github.com/frametrace/frametrace-agent/pkg/segment"
	"github.com/frametrace/frametrace-agent/pkg/status"
)

var (
	ErrAlreadyTracking       = errors.New("client is already streaming this target")
	ErrNotTracked            = errors.New("not streaming")
	ErrInvalidPid            = errors.New("invalid process id")
	ErrUnableToCreateSegment = errors.New("unable to create shared memory segment")
	ErrWriteTimedOut         = errors.New("timed out waiting for consumer to drain")
	ErrInvalidPlayback       = errors.New("invalid playback flags")
)

// StatusOf maps an error returned by this package or by a segment view to
// the status reported to clients.
func StatusOf(err error) status.Status {
	switch {
	case err == nil:
		return status.Success
	case errors.Is(err, ErrAlreadyTracking):
		return status.AlreadyTracking
	case errors.Is(err, ErrUnableToCreateSegment):
		return status.UnableToCreateSegment
	case errors.Is(err, ErrInvalidPid):
		return status.InvalidPid
	case errors.Is(err, ErrInvalidPlayback):
		return status.OutOfRange
	case errors.Is(err, ErrWriteTimedOut), errors.Is(err, segment.ErrFull), errors.Is(err, segment.ErrDataLoss):
		return status.DataLoss
	case errors.Is(err, segment.ErrNoData):
		return status.NoData
	}
	return status.Failure
}
