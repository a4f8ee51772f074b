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

// Package capbits implements a fixed-width set of flags, one per optional
// field of a telemetry payload. A set bit means the field was obtained during
// the sampling cycle; an unset bit means the field value is meaningless.
package capbits

import (
	"fmt"
	"math/bits"
	"strings"
)

// Width is the number of fields a Bits value can describe. It matches the
// 64-bit word carried in each shared memory slot.
const Width = 64

// Field is an enumeration of the optional fields of one payload type.
type Field interface {
	~uint8
	fmt.Stringer
}

// Bits is a set of fields of type F. The zero value is the empty set.
type Bits[F Field] uint64

// Of returns a set containing the given fields.
func Of[F Field](fields ...F) Bits[F] {
	var b Bits[F]
	for _, f := range fields {
		b.Set(f)
	}
	return b
}

// FromUint64 reinterprets a raw word read from a slot.
func FromUint64[F Field](v uint64) Bits[F] {
	return Bits[F](v)
}

func mask[F Field](f F) uint64 {
	if uint(f) >= Width {
		panic(fmt.Sprintf("capbits: field %d (%s) out of range", uint8(f), f))
	}
	return 1 << uint(f)
}

// Set marks f as populated.
func (b *Bits[F]) Set(f F) {
	*b |= Bits[F](mask(f))
}

// Clear marks f as not populated.
func (b *Bits[F]) Clear(f F) {
	*b &^= Bits[F](mask(f))
}

// Test reports whether f is populated.
func (b Bits[F]) Test(f F) bool {
	return uint64(b)&mask(f) != 0
}

// Count returns the number of populated fields.
func (b Bits[F]) Count() int {
	return bits.OnesCount64(uint64(b))
}

// Uint64 returns the raw word as stored in a slot.
func (b Bits[F]) Uint64() uint64 {
	return uint64(b)
}

// Fields lists the populated fields in ascending order.
func (b Bits[F]) Fields() []F {
	fields := make([]F, 0, b.Count())
	for v := uint64(b); v != 0; v &= v - 1 {
		fields = append(fields, F(bits.TrailingZeros64(v)))
	}
	return fields
}

func (b Bits[F]) String() string {
	fields := b.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.String()
	}
	return "[" + strings.Join(names, " ") + "]"
}
