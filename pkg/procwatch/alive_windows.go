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

package procwatch

import (
	"errors"

	"golang.org/x/sys/windows"
)

// stillActive is the exit code reported for a running process.
const stillActive = 259

// Alive reports whether a process with the given id is running.
func Alive(pid uint32) bool {
	hProc, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		// Processes we may not query are still alive.
		return errors.Is(err, windows.ERROR_ACCESS_DENIED)
	}
	defer func() {
		_ = windows.CloseHandle(hProc)
	}()

	var code uint32
	if err := windows.GetExitCodeProcess(hProc, &code); err != nil {
		return true
	}
	return code == stillActive
}
