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

// Package frame describes a single present event as the capture pipeline
// hands it to the streamer.
package frame

// Timing holds the QPC timestamps and durations collected along the
// presentation pipeline. Durations are QPC deltas.
type Timing struct {
	PresentStartTime uint64
	TimeInPresent    uint64
	GPUStartTime     uint64
	ReadyTime        uint64
	GPUDuration      uint64
	GPUVideoDuration uint64
	InputTime        uint64
	MouseClickTime   uint64

	// Application work propagated through generated frames.
	AppPropagatedPresentStartTime uint64
	AppPropagatedTimeInPresent    uint64
	AppPropagatedGPUStartTime     uint64
	AppPropagatedReadyTime        uint64
	AppPropagatedGPUDuration      uint64
	AppPropagatedGPUVideoDuration uint64

	// Reported by an instrumented application.
	AppSleepStartTime        uint64
	AppSleepEndTime          uint64
	AppSimStartTime          uint64
	AppSimEndTime            uint64
	AppRenderSubmitStartTime uint64
	AppRenderSubmitEndTime   uint64
	AppPresentStartTime      uint64
	AppPresentEndTime        uint64
	AppInputTime             uint64

	// Reported by PC latency events.
	PclInputPingTime uint64
	PclSimStartTime  uint64

	FlipDelay uint64
}

// Tracking holds the keys the capture pipeline used to follow the present
// through its internal tables.
type Tracking struct {
	SwapChainAddress            uint64
	CompositionSurfaceLUID      uint64
	Win32KPresentCount          uint64
	Win32KBindID                uint64
	DxgkPresentHistoryToken     uint64
	DxgkPresentHistoryTokenData uint64
	DxgkContext                 uint64
	Hwnd                        uint64
	QueueSubmitSequence         uint32
	RingIndex                   uint32
}

// Properties holds identity and the properties deduced while watching the
// present move through the pipeline.
type Properties struct {
	ProcessID      uint32
	ThreadID       uint32
	SyncInterval   int32
	PresentFlags   uint32
	DestWidth      uint32
	DestHeight     uint32
	DriverThreadID uint32
	FrameID        uint32
	FlipToken      uint32

	Runtime      Runtime
	PresentMode  PresentMode
	FinalState   PresentResult
	InputType    InputDeviceType
	AppInputType InputDeviceType
	FrameType    FrameType

	SupportsTearing           bool
	WaitForFlipEvent          bool
	WaitForMPOFlipEvent       bool
	SeenDxgkPresent           bool
	SeenWin32KEvents          bool
	SeenInFrameEvent          bool
	GpuFrameCompleted         bool
	IsCompleted               bool
	IsLost                    bool
	PresentInDwmWaitingStruct bool
}

// Displayed is one occasion on which the frame reached the screen.
type Displayed struct {
	Type       FrameType
	ScreenTime uint64
}

// Record is a present event. It is built once per event by the capture
// pipeline and is not modified after being handed to the streamer.
type Record struct {
	Timing
	Tracking
	Properties

	// Displayed lists every time the frame was shown, in order. Only a
	// bounded prefix survives the copy into shared memory.
	Displayed []Displayed

	Application string
}

// LastScreenTime returns the screen time of the final display of the frame,
// or zero if it was never displayed.
func (r *Record) LastScreenTime() uint64 {
	if len(r.Displayed) == 0 {
		return 0
	}
	return r.Displayed[len(r.Displayed)-1].ScreenTime
}
