//go:build unix

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
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sys/unix"
)

// DefaultPrefix is prepended to the target id to form a segment name.
const DefaultPrefix = "frametrace-nsm-"

// DefaultDir returns the directory named segments live in. On Linux this is
// the POSIX shared memory filesystem.
func DefaultDir() string {
	if runtime.GOOS == "linux" {
		return "/dev/shm"
	}
	return os.TempDir()
}

type mapping struct {
	data []byte
	path string
}

func segmentPath(dir, name string) (string, error) {
	if name == "" || strings.ContainsRune(name, '/') || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if dir == "" {
		dir = DefaultDir()
	}
	return filepath.Join(dir, name), nil
}

func createMapping(dir, name string, size uint64) (*mapping, error) {
	path, err := segmentPath(dir, name)
	if err != nil {
		return nil, err
	}

	// A stale file from a previous run may still be mapped by an old
	// consumer; unlinking it leaves that mapping intact.
	_ = unix.Unlink(path)

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL|unix.O_CLOEXEC, 0o660)
	if err != nil {
		return nil, err
	}
	defer unix.Close(fd)

	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		_ = unix.Unlink(path)
		return nil, fmt.Errorf("sizing %s: %w", path, err)
	}
	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Unlink(path)
		return nil, fmt.Errorf("mapping %s: %w", path, err)
	}
	return &mapping{data: data, path: path}, nil
}

func openMapping(dir, name string) (*mapping, error) {
	path, err := segmentPath(dir, name)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	defer unix.Close(fd)

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, err
	}
	if st.Size < int64(MinSize) {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrNotPublished, path, st.Size)
	}
	data, err := unix.Mmap(fd, 0, int(st.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mapping %s: %w", path, err)
	}
	return &mapping{data: data, path: path}, nil
}

func (m *mapping) unmap() error {
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	return err
}

// release drops a consumer's mapping. The name stays with the producer.
func (m *mapping) release() error {
	return m.unmap()
}

func (m *mapping) remove() error {
	if err := unix.Unlink(m.path); err != nil && err != unix.ENOENT {
		return err
	}
	return nil
}
