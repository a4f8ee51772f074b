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

// GpuField names an optional field of a Gpu payload.
type GpuField uint8

const (
	GpuTimeStamp GpuField = iota
	GpuPower
	GpuSustainedPowerLimit
	GpuVoltage
	GpuFrequency
	GpuTemperature
	GpuUtilization
	GpuRenderComputeUtilization
	GpuMediaUtilization
	VRAMPower
	VRAMVoltage
	VRAMFrequency
	VRAMEffectiveFrequency
	VRAMTemperature
	FanSpeed0
	FanSpeed1
	FanSpeed2
	FanSpeed3
	FanSpeed4
	PSUInfo0
	PSUInfo1
	PSUInfo2
	PSUInfo3
	PSUInfo4
	GpuMemSize
	GpuMemUsed
	GpuMemMaxBandwidth
	GpuMemWriteBandwidth
	GpuMemReadBandwidth
	GpuPowerLimited
	GpuTemperatureLimited
	GpuCurrentLimited
	GpuVoltageLimited
	GpuUtilizationLimited
	VRAMPowerLimited
	VRAMTemperatureLimited
	VRAMCurrentLimited
	VRAMVoltageLimited
	VRAMUtilizationLimited

	// NumGpuFields is the number of GpuField values.
	NumGpuFields
)

var gpuFieldNames = [NumGpuFields]string{
	"time_stamp",
	"gpu_power",
	"gpu_sustained_power_limit",
	"gpu_voltage",
	"gpu_frequency",
	"gpu_temperature",
	"gpu_utilization",
	"gpu_render_compute_utilization",
	"gpu_media_utilization",
	"vram_power",
	"vram_voltage",
	"vram_frequency",
	"vram_effective_frequency",
	"vram_temperature",
	"fan_speed_0",
	"fan_speed_1",
	"fan_speed_2",
	"fan_speed_3",
	"fan_speed_4",
	"psu_info_0",
	"psu_info_1",
	"psu_info_2",
	"psu_info_3",
	"psu_info_4",
	"gpu_mem_size",
	"gpu_mem_used",
	"gpu_mem_max_bandwidth",
	"gpu_mem_write_bandwidth",
	"gpu_mem_read_bandwidth",
	"gpu_power_limited",
	"gpu_temperature_limited",
	"gpu_current_limited",
	"gpu_voltage_limited",
	"gpu_utilization_limited",
	"vram_power_limited",
	"vram_temperature_limited",
	"vram_current_limited",
	"vram_voltage_limited",
	"vram_utilization_limited",
}

func (f GpuField) String() string {
	if f < NumGpuFields {
		return gpuFieldNames[f]
	}
	return "unknown"
}

// FanSpeedField returns the field for fan i.
func FanSpeedField(i int) GpuField { return FanSpeed0 + GpuField(i) }

// PSUInfoField returns the field for power supply i.
func PSUInfoField(i int) GpuField { return PSUInfo0 + GpuField(i) }

// CpuField names an optional field of a Cpu payload.
type CpuField uint8

const (
	CpuUtilization CpuField = iota
	CpuPower
	CpuPowerLimit
	CpuTemperature
	CpuFrequency

	NumCpuFields
)

var cpuFieldNames = [NumCpuFields]string{
	"cpu_utilization",
	"cpu_power",
	"cpu_power_limit",
	"cpu_temperature",
	"cpu_frequency",
}

func (f CpuField) String() string {
	if f < NumCpuFields {
		return cpuFieldNames[f]
	}
	return "unknown"
}
