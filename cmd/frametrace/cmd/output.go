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

package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/frametrace/frametrace-agent/pkg/capbits"
	"github.com/frametrace/frametrace-agent/pkg/telemetry"
	"github.com/frametrace/frametrace-agent/pkg/wire"
)

// printer writes one document per value, as JSON lines or a YAML stream.
type printer interface {
	print(v any) error
}

type jsonPrinter struct{ enc *json.Encoder }

func (p jsonPrinter) print(v any) error { return p.enc.Encode(v) }

type yamlPrinter struct{ enc *yaml.Encoder }

func (p yamlPrinter) print(v any) error { return p.enc.Encode(v) }

func newPrinter(w io.Writer, format string) (printer, error) {
	switch format {
	case "json":
		return jsonPrinter{json.NewEncoder(w)}, nil
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		return yamlPrinter{enc}, nil
	}
	return nil, fmt.Errorf("unknown output format %q", format)
}

type frameSummary struct {
	FrameID           uint32   `json:"frameId" yaml:"frameId"`
	ProcessID         uint32   `json:"processId" yaml:"processId"`
	Application       string   `json:"application,omitempty" yaml:"application,omitempty"`
	PresentMode       string   `json:"presentMode" yaml:"presentMode"`
	FrameType         string   `json:"frameType" yaml:"frameType"`
	MsBetweenPresents float64  `json:"msBetweenPresents" yaml:"msBetweenPresents"`
	MsInPresent       float64  `json:"msInPresent" yaml:"msInPresent"`
	MsUntilDisplayed  *float64 `json:"msUntilDisplayed,omitempty" yaml:"msUntilDisplayed,omitempty"`
	Displayed         int      `json:"displayed" yaml:"displayed"`
	GpuPowerW         *float64 `json:"gpuPowerW,omitempty" yaml:"gpuPowerW,omitempty"`
	GpuUtilization    *float64 `json:"gpuUtilization,omitempty" yaml:"gpuUtilization,omitempty"`
	CpuUtilization    *float64 `json:"cpuUtilization,omitempty" yaml:"cpuUtilization,omitempty"`
	GpuCaps           []string `json:"gpuCaps,omitempty" yaml:"gpuCaps,omitempty"`
	CpuCaps           []string `json:"cpuCaps,omitempty" yaml:"cpuCaps,omitempty"`
}

// summarize converts a slot to the values a person looks at. Durations are
// converted from QPC ticks using freq.
func summarize(slot *wire.FrameSlot, freq uint64) frameSummary {
	ms := func(ticks uint64) float64 {
		if freq == 0 {
			return 0
		}
		return float64(ticks) * 1000 / float64(freq)
	}
	p := &slot.Present
	s := frameSummary{
		FrameID:     p.FrameID,
		ProcessID:   p.ProcessID,
		Application: p.ApplicationName(),
		PresentMode: p.PresentMode.String(),
		FrameType:   p.FrameType.String(),
		MsInPresent: ms(p.TimeInPresent),
		Displayed:   int(p.DisplayedCount),
	}
	if p.LastPresentQPC != 0 && p.PresentStartTime > p.LastPresentQPC {
		s.MsBetweenPresents = ms(p.PresentStartTime - p.LastPresentQPC)
	}
	if displayed := p.Displayed(); len(displayed) > 0 && displayed[0].ScreenTime > p.PresentStartTime {
		v := ms(displayed[0].ScreenTime - p.PresentStartTime)
		s.MsUntilDisplayed = &v
	}

	gpu, cpu := slot.Gpu, slot.Cpu
	gpuCaps := capbits.FromUint64[telemetry.GpuField](slot.GpuCaps)
	cpuCaps := capbits.FromUint64[telemetry.CpuField](slot.CpuCaps)
	if gpuCaps.Test(telemetry.GpuPower) {
		s.GpuPowerW = &gpu.PowerW
	}
	if gpuCaps.Test(telemetry.GpuUtilization) {
		s.GpuUtilization = &gpu.Utilization
	}
	if cpuCaps.Test(telemetry.CpuUtilization) {
		s.CpuUtilization = &cpu.Utilization
	}
	for _, f := range gpuCaps.Fields() {
		s.GpuCaps = append(s.GpuCaps, f.String())
	}
	for _, f := range cpuCaps.Fields() {
		s.CpuCaps = append(s.CpuCaps, f.String())
	}
	return s
}
