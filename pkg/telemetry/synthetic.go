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

package telemetry

import (
	"context"
	"math"
	"sync/atomic"

	"github.com/frametrace/frametrace-agent/pkg/capbits"
)

// Clock returns the current QPC value.
type Clock func() uint64

// SyntheticGpu generates plausible GPU readings from a clock. It stands in
// for a vendor adapter when no hardware library is available.
type SyntheticGpu struct {
	Clock Clock
	Fans  int
	ticks atomic.Uint64
}

func (s *SyntheticGpu) Poll(_ context.Context) (GpuSample, error) {
	n := float64(s.ticks.Add(1))
	g := Gpu{
		QPC:          s.Clock(),
		PowerW:       120 + 30*math.Sin(n/10),
		FrequencyMHz: 1800,
		TemperatureC: 65 + 5*math.Sin(n/50),
		Utilization:  50 + 40*math.Sin(n/7),
	}
	caps := capbits.Of(GpuPower, GpuFrequency, GpuTemperature, GpuUtilization)
	for i := 0; i < s.Fans && i < MaxFans; i++ {
		g.FanSpeedRPM[i] = 1500 + 100*float64(i)
		caps.Set(FanSpeedField(i))
	}
	return GpuSample{Payload: g, Caps: caps}, nil
}

// SyntheticCpu generates plausible CPU readings from a clock.
type SyntheticCpu struct {
	Clock Clock
	ticks atomic.Uint64
}

func (s *SyntheticCpu) Poll(_ context.Context) (CpuSample, error) {
	n := float64(s.ticks.Add(1))
	c := Cpu{
		QPC:          s.Clock(),
		Utilization:  30 + 20*math.Sin(n/5),
		FrequencyMHz: 3600,
	}
	return CpuSample{Payload: c, Caps: capbits.Of(CpuUtilization, CpuFrequency)}, nil
}
