package server

import (
	"github.com/shirou/gopsutil/v3/process"
)

// Processes inspects and controls client processes.
type Processes interface {
	Alive(pid int32) bool
	Name(pid int32) string
	Pause(pid int32) error
	Resume(pid int32) error
}

// SystemProcesses uses the host process table.
type SystemProcesses struct{}

func (SystemProcesses) Alive(pid int32) bool {
	ok, err := process.PidExists(pid)
	return err == nil && ok
}

func (SystemProcesses) Name(pid int32) string {
	p, err := process.NewProcess(pid)
	if err != nil {
		return ""
	}
	name, err := p.Name()
	if err != nil {
		return ""
	}
	return name
}

// Pause stops pid with SIGSTOP.
func (SystemProcesses) Pause(pid int32) error {
	p, err := process.NewProcess(pid)
	if err != nil {
		return err
	}
	return p.Suspend()
}

// Resume continues pid with SIGCONT.
func (SystemProcesses) Resume(pid int32) error {
	p, err := process.NewProcess(pid)
	if err != nil {
		return err
	}
	return p.Resume()
}
