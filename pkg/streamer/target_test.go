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

package streamer_test

import (
	"encoding/json"
	"testing"

	"github.com/frametrace/frametrace-agent/pkg/streamer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetKey(t *testing.T) {
	t.Parallel()

	assert.True(t, streamer.AllProcesses().IsAll())
	assert.True(t, streamer.AllProcesses().Valid())
	assert.False(t, streamer.Specific(0).Valid())
	assert.NotEqual(t, streamer.Specific(0), streamer.AllProcesses())

	pid, ok := streamer.Specific(42).PID()
	assert.True(t, ok)
	assert.Equal(t, uint32(42), pid)
	_, ok = streamer.AllProcesses().PID()
	assert.False(t, ok)
}

func TestTargetKeyText(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal([]streamer.TargetKey{streamer.Specific(7), streamer.AllProcesses()})
	require.NoError(t, err)
	assert.JSONEq(t, `["7","all"]`, string(data))

	var keys []streamer.TargetKey
	require.NoError(t, json.Unmarshal(data, &keys))
	assert.Equal(t, []streamer.TargetKey{streamer.Specific(7), streamer.AllProcesses()}, keys)

	_, err = streamer.ParseTarget("-1")
	require.Error(t, err)
}
