package emu

import (
	"os"
	"sync"
)

// FileDescriptor is one open file in the simulated program's table.
type FileDescriptor struct {
	HostFile *os.File // nil for the standard streams
	Path     string
	Flags    int
	IsOpen   bool
}

// FDTable manages the simulated program's file descriptors. Numbers
// 0-2 are the standard streams, routed through the engine's injected
// readers/writers rather than host files.
type FDTable struct {
	fds    map[uint32]*FileDescriptor
	nextFD uint32
	mu     sync.Mutex
}

// NewFDTable creates a table with the standard streams open.
func NewFDTable() *FDTable {
	t := &FDTable{
		fds:    make(map[uint32]*FileDescriptor),
		nextFD: 3,
	}
	t.fds[0] = &FileDescriptor{Path: "stdin", IsOpen: true}
	t.fds[1] = &FileDescriptor{Path: "stdout", IsOpen: true}
	t.fds[2] = &FileDescriptor{Path: "stderr", IsOpen: true}
	return t
}

// Open opens a host file and allocates a descriptor number for it.
func (t *FDTable) Open(path string, flags int, mode os.FileMode) (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	hostFile, err := os.OpenFile(path, flags, mode)
	if err != nil {
		return 0, err
	}
	fd := t.nextFD
	t.nextFD++
	t.fds[fd] = &FileDescriptor{HostFile: hostFile, Path: path, Flags: flags, IsOpen: true}
	return fd, nil
}

// Close closes a descriptor. The standard streams are only marked
// closed; their host streams stay untouched.
func (t *FDTable) Close(fd uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, exists := t.fds[fd]
	if !exists || !entry.IsOpen {
		return os.ErrInvalid
	}
	if fd <= 2 {
		entry.IsOpen = false
		return nil
	}
	if entry.HostFile != nil {
		if err := entry.HostFile.Close(); err != nil {
			return err
		}
	}
	entry.HostFile = nil
	entry.IsOpen = false
	return nil
}

// Read reads from an open non-stream descriptor.
func (t *FDTable) Read(fd uint32, buf []byte) (int, error) {
	f, err := t.hostFile(fd)
	if err != nil {
		return 0, err
	}
	return f.Read(buf)
}

// Write writes to an open non-stream descriptor.
func (t *FDTable) Write(fd uint32, buf []byte) (int, error) {
	f, err := t.hostFile(fd)
	if err != nil {
		return 0, err
	}
	return f.Write(buf)
}

func (t *FDTable) hostFile(fd uint32) (*os.File, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, exists := t.fds[fd]
	if !exists || !entry.IsOpen || entry.HostFile == nil {
		return nil, os.ErrInvalid
	}
	return entry.HostFile, nil
}

// CloseAll closes every non-stream descriptor; called on engine reset.
func (t *FDTable) CloseAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for fd, entry := range t.fds {
		if fd > 2 && entry.IsOpen && entry.HostFile != nil {
			_ = entry.HostFile.Close()
		}
		if fd > 2 {
			delete(t.fds, fd)
		}
	}
	t.nextFD = 3
}
