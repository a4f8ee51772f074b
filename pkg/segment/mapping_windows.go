//go:build windows

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

package segment

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/frametrace/frametrace-agent/pkg/wire"
	"golang.org/x/sys/windows"
)

// DefaultPrefix is prepended to the target id to form a segment name.
const DefaultPrefix = `Global\frametrace_nsm_`

// DefaultDir is unused on Windows; mappings live in the object namespace.
func DefaultDir() string { return "" }

type mapping struct {
	data   []byte
	handle windows.Handle
	addr   uintptr
}

func createMapping(_, name string, size uint64) (*mapping, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidName, err)
	}

	handle, err := windows.CreateFileMapping(windows.InvalidHandle, nil, windows.PAGE_READWRITE,
		uint32(size>>32), uint32(size), namePtr)
	if err != nil {
		if handle != 0 {
			_ = windows.CloseHandle(handle)
		}
		return nil, err
	}
	return mapView(handle, uintptr(size))
}

func openMapping(_, name string) (*mapping, error) {
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidName, err)
	}

	// Opening an existing section through CreateFileMapping reports
	// ERROR_ALREADY_EXISTS with a valid handle; anything else means the
	// producer has not created it.
	handle, err := windows.CreateFileMapping(windows.InvalidHandle, nil, windows.PAGE_READWRITE,
		0, uint32(MinSize), namePtr)
	if !errors.Is(err, windows.ERROR_ALREADY_EXISTS) {
		if handle != 0 {
			_ = windows.CloseHandle(handle)
		}
		if err == nil {
			err = windows.ERROR_FILE_NOT_FOUND
		}
		return nil, err
	}

	head, err := mapView(handle, wire.HeaderSize)
	if err != nil {
		return nil, err
	}
	size := (*wire.Header)(unsafe.Pointer(&head.data[0])).BufSize
	_ = windows.UnmapViewOfFile(head.addr)
	if size < MinSize {
		_ = windows.CloseHandle(handle)
		return nil, fmt.Errorf("%w: %s", ErrNotPublished, name)
	}
	return mapView(handle, uintptr(size))
}

func mapView(handle windows.Handle, size uintptr) (*mapping, error) {
	addr, err := windows.MapViewOfFile(handle, windows.FILE_MAP_READ|windows.FILE_MAP_WRITE, 0, 0, size)
	if err != nil {
		_ = windows.CloseHandle(handle)
		return nil, err
	}
	return &mapping{
		data:   unsafe.Slice((*byte)(unsafe.Pointer(addr)), size),
		handle: handle,
		addr:   addr,
	}, nil
}

func (m *mapping) unmap() error {
	if m.data == nil {
		return nil
	}
	m.data = nil
	return windows.UnmapViewOfFile(m.addr)
}

// release drops a consumer's view and its handle to the section, so the
// section can be destroyed once the producer closes its own handle.
func (m *mapping) release() error {
	err := m.unmap()
	if closeErr := m.remove(); err == nil {
		err = closeErr
	}
	return err
}

// remove closes the section handle; Windows destroys the section once the
// last handle to it is closed.
func (m *mapping) remove() error {
	if m.handle == 0 {
		return nil
	}
	err := windows.CloseHandle(m.handle)
	m.handle = 0
	return err
}
