// Package shmem publishes byte blobs under a name in shared memory and maps
// them back, read-only or read-write, in any process on the host.
package shmem

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// DefaultDir is where POSIX shared memory objects live on Linux.
const DefaultDir = "/dev/shm"

// Mode selects how a region is mapped.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

var ErrInvalidName = errors.New("invalid shared memory name")

// Store names regions inside Dir. The zero value uses DefaultDir.
type Store struct {
	Dir string
}

func (s Store) path(name string) (string, error) {
	name = strings.TrimPrefix(name, "/")
	if name == "" || strings.Contains(name, "/") || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	dir := s.Dir
	if dir == "" {
		dir = DefaultDir
	}
	return filepath.Join(dir, name), nil
}

// Put creates or replaces region name with a copy of data.
func (s Store) Put(name string, data []byte) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_TRUNC|unix.O_CLOEXEC, 0o600)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer unix.Close(fd)

	for written := 0; written < len(data); {
		n, err := unix.Write(fd, data[written:])
		if err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		if n == 0 {
			return fmt.Errorf("write %s: short write (%d of %d bytes)", path, written, len(data))
		}
		written += n
	}
	return nil
}

// Size returns the length of region name.
func (s Store) Size(name string) (int, error) {
	path, err := s.path(name)
	if err != nil {
		return 0, err
	}
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return int(st.Size), nil
}

// Map maps the first length bytes of region name. It fails if the region
// does not exist or is shorter than length.
func (s Store) Map(name string, length int, mode Mode) (*Region, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	if length <= 0 {
		return nil, fmt.Errorf("map %s: invalid length %d", path, length)
	}

	flags, prot := unix.O_RDONLY, unix.PROT_READ
	if mode == ReadWrite {
		flags, prot = unix.O_RDWR, unix.PROT_READ|unix.PROT_WRITE
	}
	fd, err := unix.Open(path, flags|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer unix.Close(fd)

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if st.Size < int64(length) {
		return nil, fmt.Errorf("map %s: region holds %d bytes, %d requested", path, st.Size, length)
	}

	data, err := unix.Mmap(fd, 0, length, prot, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return &Region{data: data, mode: mode}, nil
}

// Remove deletes region name. Missing regions are not an error.
func (s Store) Remove(name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := unix.Unlink(path); err != nil && !errors.Is(err, unix.ENOENT) {
		return fmt.Errorf("unlink %s: %w", path, err)
	}
	return nil
}

// Region is a mapped shared memory region.
type Region struct {
	data []byte
	mode Mode
}

// Bytes returns the mapping. Writing to it faults unless the region was
// mapped ReadWrite. The slice is invalid after Close.
func (r *Region) Bytes() []byte {
	return r.data
}

func (r *Region) Mode() Mode {
	return r.mode
}

// Close unmaps the region.
func (r *Region) Close() error {
	if r.data == nil {
		return nil
	}
	err := unix.Munmap(r.data)
	r.data = nil
	return err
}
