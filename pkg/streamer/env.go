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
	"fmt"
	"os"
	"strconv"

	"github.com/Masterminds/log-go"
	"github.com/frametrace/frametrace-agent/pkg/segment"
)

// SizeEnv overrides the segment size in bytes.
const SizeEnv = "FRAMETRACE_NSM_SIZE"

// SegmentSizeFromEnv returns the segment size from SizeEnv, or
// segment.DefaultSize when it is unset or not a number. A value that does
// not fit in 64 bits is an error rather than silently replaced; zero is
// returned as is and rejected when the segment is created.
func SegmentSizeFromEnv() (uint64, error) {
	value, ok := os.LookupEnv(SizeEnv)
	if !ok || value == "" {
		return segment.DefaultSize, nil
	}
	size, err := strconv.ParseUint(value, 10, 64)
	if errors.Is(err, strconv.ErrRange) {
		return 0, fmt.Errorf("%s=%q: %w", SizeEnv, value, err)
	}
	if err != nil {
		log.Warnf("ignoring %s=%q: %s", SizeEnv, value, err)
		return segment.DefaultSize, nil
	}
	return size, nil
}
