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

package frame

import "strconv"

type Runtime uint8

const (
	RuntimeOther Runtime = iota
	RuntimeDXGI
	RuntimeD3D9
)

func (r Runtime) String() string {
	switch r {
	case RuntimeOther:
		return "Other"
	case RuntimeDXGI:
		return "DXGI"
	case RuntimeD3D9:
		return "D3D9"
	}
	return "Runtime(" + strconv.Itoa(int(r)) + ")"
}

type PresentMode uint8

const (
	PresentModeUnknown                         PresentMode = 0
	PresentModeHardwareLegacyFlip              PresentMode = 1
	PresentModeHardwareLegacyCopy              PresentMode = 2
	PresentModeHardwareIndependentFlip         PresentMode = 3
	PresentModeComposedFlip                    PresentMode = 4
	PresentModeComposedCopyGPUGDI              PresentMode = 5
	PresentModeComposedCopyCPUGDI              PresentMode = 6
	PresentModeHardwareComposedIndependentFlip PresentMode = 8
)

func (m PresentMode) String() string {
	switch m {
	case PresentModeUnknown:
		return "Unknown"
	case PresentModeHardwareLegacyFlip:
		return "Hardware: Legacy Flip"
	case PresentModeHardwareLegacyCopy:
		return "Hardware: Legacy Copy to front buffer"
	case PresentModeHardwareIndependentFlip:
		return "Hardware: Independent Flip"
	case PresentModeComposedFlip:
		return "Composed: Flip"
	case PresentModeComposedCopyGPUGDI:
		return "Composed: Copy with GPU GDI"
	case PresentModeComposedCopyCPUGDI:
		return "Composed: Copy with CPU GDI"
	case PresentModeHardwareComposedIndependentFlip:
		return "Hardware Composed: Independent Flip"
	}
	return "PresentMode(" + strconv.Itoa(int(m)) + ")"
}

type PresentResult uint8

const (
	PresentResultUnknown PresentResult = iota
	PresentResultPresented
	PresentResultDiscarded
)

func (r PresentResult) String() string {
	switch r {
	case PresentResultUnknown:
		return "Unknown"
	case PresentResultPresented:
		return "Presented"
	case PresentResultDiscarded:
		return "Discarded"
	}
	return "PresentResult(" + strconv.Itoa(int(r)) + ")"
}

type InputDeviceType uint8

const (
	InputNone InputDeviceType = iota
	InputUnknown
	InputMouse
	InputKeyboard
)

func (i InputDeviceType) String() string {
	switch i {
	case InputNone:
		return "None"
	case InputUnknown:
		return "Unknown"
	case InputMouse:
		return "Mouse"
	case InputKeyboard:
		return "Keyboard"
	}
	return "InputDeviceType(" + strconv.Itoa(int(i)) + ")"
}

// FrameType distinguishes application frames from frames synthesized by
// frame generation.
type FrameType uint8

const (
	FrameTypeNotSet      FrameType = 0
	FrameTypeUnspecified FrameType = 1
	FrameTypeApplication FrameType = 2
	FrameTypeRepeated    FrameType = 3
	FrameTypeIntelXeFG   FrameType = 50
	FrameTypeAMDAFMF     FrameType = 100
)

func (t FrameType) String() string {
	switch t {
	case FrameTypeNotSet:
		return "NotSet"
	case FrameTypeUnspecified:
		return "Unspecified"
	case FrameTypeApplication:
		return "Application"
	case FrameTypeRepeated:
		return "Repeated"
	case FrameTypeIntelXeFG:
		return "Intel XeFG"
	case FrameTypeAMDAFMF:
		return "AMD AFMF"
	}
	return "FrameType(" + strconv.Itoa(int(t)) + ")"
}

// Generated reports whether the frame was produced by frame generation
// rather than rendered by the application.
func (t FrameType) Generated() bool {
	return t == FrameTypeIntelXeFG || t == FrameTypeAMDAFMF
}
