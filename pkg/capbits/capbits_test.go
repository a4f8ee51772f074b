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

package capbits_test

import (
	"testing"

	"github.com/frametrace/frametrace-agent/pkg/capbits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type color uint8

const (
	red color = iota
	green
	blue
	last color = 63
)

func (c color) String() string {
	switch c {
	case red:
		return "red"
	case green:
		return "green"
	case blue:
		return "blue"
	case last:
		return "last"
	}
	return "unknown"
}

func TestBitsSetAndTest(t *testing.T) {
	t.Parallel()

	var b capbits.Bits[color]
	assert.False(t, b.Test(red))
	assert.Zero(t, b.Count())

	b.Set(green)
	b.Set(last)
	assert.True(t, b.Test(green))
	assert.True(t, b.Test(last))
	assert.False(t, b.Test(red))
	assert.False(t, b.Test(blue))
	assert.Equal(t, 2, b.Count())
	assert.Equal(t, uint64(1<<1|1<<63), b.Uint64())

	b.Clear(green)
	assert.False(t, b.Test(green))
	assert.Equal(t, 1, b.Count())
}

func TestBitsSetIsIdempotent(t *testing.T) {
	t.Parallel()

	b := capbits.Of(blue)
	b.Set(blue)
	assert.Equal(t, 1, b.Count())
}

func TestBitsRoundTripThroughWord(t *testing.T) {
	t.Parallel()

	b := capbits.Of(red, blue)
	restored := capbits.FromUint64[color](b.Uint64())
	assert.Equal(t, b, restored)
	assert.Equal(t, []color{red, blue}, restored.Fields())
	assert.Equal(t, "[red blue]", restored.String())
}

func TestBitsOutOfRangePanics(t *testing.T) {
	t.Parallel()

	var b capbits.Bits[color]
	require.Panics(t, func() { b.Set(color(64)) })
}
