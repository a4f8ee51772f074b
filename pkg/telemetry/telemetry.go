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

// Package telemetry defines the GPU and CPU telemetry payloads, the field
// enumerations used by their capability bits, and a recorder that keeps a
// short history of samples for correlation with frames.
package telemetry

import "github.com/frametrace/frametrace-agent/pkg/capbits"

// MaxFans and MaxPSUs bound the per-device arrays in a Gpu payload.
const (
	MaxFans = 5
	MaxPSUs = 5
)

// PSUType identifies the connector a power supply reading came from.
type PSUType uint8

const (
	PSUNone PSUType = iota
	PSUPcie
	PSU6Pin
	PSU8Pin
)

func (p PSUType) String() string {
	switch p {
	case PSUNone:
		return "none"
	case PSUPcie:
		return "pcie"
	case PSU6Pin:
		return "6pin"
	case PSU8Pin:
		return "8pin"
	}
	return "unknown"
}

// PSU is a single power supply reading.
type PSU struct {
	Power   float64
	Voltage float64
}

// Gpu is a GPU telemetry payload. The layout is fixed-size and pointer-free
// so it can be copied into a shared memory slot as is.
type Gpu struct {
	QPC       uint64
	TimeStamp float64

	PowerW                     float64
	SustainedPowerLimitW       float64
	VoltageV                   float64
	FrequencyMHz               float64
	TemperatureC               float64
	Utilization                float64
	RenderComputeUtilization   float64
	MediaUtilization           float64
	VRAMPowerW                 float64
	VRAMVoltageV               float64
	VRAMFrequencyMHz           float64
	VRAMEffectiveFrequencyGbps float64
	VRAMTemperatureC           float64

	FanSpeedRPM [MaxFans]float64
	PSU         [MaxPSUs]PSU

	MemTotalSizeB        uint64
	MemUsedB             uint64
	MemMaxBandwidthBps   uint64
	MemWriteBandwidthBps float64
	MemReadBandwidthBps  float64

	PSUType [MaxPSUs]PSUType

	PowerLimited           bool
	TemperatureLimited     bool
	CurrentLimited         bool
	VoltageLimited         bool
	UtilizationLimited     bool
	VRAMPowerLimited       bool
	VRAMTemperatureLimited bool
	VRAMCurrentLimited     bool
	VRAMVoltageLimited     bool
	VRAMUtilizationLimited bool

	_ [1]byte
}

// Timestamp implements history.Timestamped.
func (g Gpu) Timestamp() uint64 { return g.QPC }

// Cpu is a CPU telemetry payload.
type Cpu struct {
	QPC          uint64
	Utilization  float64
	PowerW       float64
	PowerLimitW  float64
	TemperatureC float64
	FrequencyMHz float64
}

// Timestamp implements history.Timestamped.
func (c Cpu) Timestamp() uint64 { return c.QPC }

// Payload is a telemetry payload stamped with a QPC value.
type Payload interface {
	Gpu | Cpu
	Timestamp() uint64
}

// Sample pairs a payload with the bits naming which of its fields were
// obtained during the cycle.
type Sample[P Payload, F capbits.Field] struct {
	Payload P
	Caps    capbits.Bits[F]
}

// Timestamp implements history.Timestamped.
func (s Sample[P, F]) Timestamp() uint64 { return s.Payload.Timestamp() }

type (
	GpuSample = Sample[Gpu, GpuField]
	CpuSample = Sample[Cpu, CpuField]
	GpuCaps   = capbits.Bits[GpuField]
	CpuCaps   = capbits.Bits[CpuField]
)
