package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// PIDFileName is the daemon's PID file inside the data directory
const PIDFileName = "clipkeep.pid"

// PIDFile manages the PID file for the daemon
type PIDFile struct {
	path string
}

// NewPIDFile creates a PID file manager in dataDir
func NewPIDFile(dataDir string) (*PIDFile, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create PID directory: %w", err)
	}
	return &PIDFile{path: filepath.Join(dataDir, PIDFileName)}, nil
}

// Path returns the file location
func (p *PIDFile) Path() string {
	return p.path
}

// Acquire writes the current PID, failing if another live daemon holds the file
func (p *PIDFile) Acquire() error {
	pid, err := p.Read()
	if err != nil {
		return err
	}
	if pid != 0 && pid != os.Getpid() && IsRunning(pid) {
		return fmt.Errorf("clipkeep is already running (pid %d)", pid)
	}
	return p.Write()
}

// Write writes the current process PID to the PID file
func (p *PIDFile) Write() error {
	pid := os.Getpid()
	return os.WriteFile(p.path, []byte(strconv.Itoa(pid)), 0644)
}

// Read returns the recorded PID, or 0 when there is no PID file
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file: %w", err)
	}
	return pid, nil
}

// Remove removes the PID file
func (p *PIDFile) Remove() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// IsRunning checks if a process with the given PID is running
func IsRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix systems, FindProcess always succeeds, so we need to check if the process actually exists
	err = process.Signal(syscall.Signal(0))
	return err == nil
}

// KillProcess asks the process to exit, forcing it if SIGTERM cannot be sent
func KillProcess(pid int) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		if err := process.Kill(); err != nil {
			return fmt.Errorf("failed to kill process: %w", err)
		}
	}
	return nil
}
