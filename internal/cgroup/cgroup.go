package cgroup

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// Cgroup represents a Linux cgroup scoped to exactly one Context's child
// process for its entire lifetime: a Context places its pid once, right
// after the child is started. The cgroup is not removed when the Context
// exits; Service.Cleanup removes it along with the Service's other cgroups.
// Unlike a cgroup shared across repeated job attempts,
// this one never holds more than one live pid at a time, so it needs no
// leaf-cgroup bookkeeping to keep attempts separate.
type Cgroup struct {
	// ID is the unique identifier of the cgroup.
	ID uuid.UUID
	// Memory is the "memory.high" bytes limit applied to this cgroup. A zeroed
	// value indicates no limit is set.
	Memory uint64
	// Cpus is the "cpu.max" limit applied to this cgroup. A zeroed value
	// indicates no limit is set.
	Cpus float32
	// DiskWriteBps is the "io.max" bytes written per second limit for 8 block
	// devices applied to this cgroup. A zeroed value indicates no limit is set.
	DiskWriteBps uint64
	// DiskReadBps is the "io.max" bytes read per second limit for 8 block
	// devices applied to this cgroup. A zeroed value indicates no limit is set.
	DiskReadBps uint64

	// service is the Service a Cgroup belongs to.
	service Service

	// path is the file path to the Cgroup's own directory.
	path string
}

// CgroupOption is a function that mutates Cgroup instances. Typically used
// with Service.CreateCgroup to configure a new Cgroup.
type CgroupOption func(*Cgroup)

// WithMemory configures a Cgroup to utilize the specified memory bytes limit.
func WithMemory(limit uint64) CgroupOption {
	return func(c *Cgroup) { c.Memory = limit }
}

// WithCpus configures a Cgroup to utilize the specified cpus limit.
func WithCpus(limit float32) CgroupOption {
	return func(c *Cgroup) { c.Cpus = limit }
}

// WithDiskWriteBps configures a Cgroup to utilize the specified bytes per
// second limit for disk (block 8 devices) writes.
func WithDiskWriteBps(limit uint64) CgroupOption {
	return func(c *Cgroup) { c.DiskWriteBps = limit }
}

// WithDiskReadBps configures a Cgroup to utilize the specified bytes per
// second limit for disk (block 8 devices) reads.
func WithDiskReadBps(limit uint64) CgroupOption {
	return func(c *Cgroup) { c.DiskReadBps = limit }
}

// create creates a Context's cgroup directory and enables+applies every
// controller implied by the limits set on c.
func (c Cgroup) create() error {
	if err := os.Mkdir(c.path, fileMode); err != nil {
		return fmt.Errorf("create cgroup: %w", err)
	}

	// determine which controllers should be enabled.
	var set []controller
	if c.Memory > 0 {
		set = append(set, newMemoryController(c, c.Memory))
	}
	if c.Cpus > 0 {
		set = append(set, newCPUController(c, c.Cpus))
	}
	if c.DiskWriteBps > 0 {
		set = append(set, newDiskWriteBpsController(c, c.DiskWriteBps))
	}
	if c.DiskReadBps > 0 {
		set = append(set, newDiskReadBpsController(c, c.DiskReadBps))
	}

	for _, controller := range set {
		if err := controller.enable(); err != nil {
			return fmt.Errorf("enable controller: %w", err)
		}
		if err := controller.apply(); err != nil {
			return fmt.Errorf("apply controller: %w", err)
		}
	}

	return nil
}

// placePID writes pid directly into this cgroup's own cgroup.procs. A
// Context's cgroup never needs to hold more than one pid at a time, so
// there is no per-pid leaf sub-cgroup to route through.
func (c Cgroup) placePID(pid int) error {
	file := filepath.Join(c.path, cgroupProcs)
	if err := os.WriteFile(file, []byte(strconv.Itoa(pid)), fileMode); err != nil {
		return fmt.Errorf("write cgroup pid: %w", err)
	}
	return nil
}

// remove moves any pid still resident in the cgroup back to the root
// cgroup (a cgroup must have no dependent pids in cgroup.procs to be
// removed) and removes the cgroup's directory.
func (c Cgroup) remove() error {
	pids, err := c.readPids()
	if err != nil {
		return err
	}

	if err := c.service.placeInRootCgroup(pids); err != nil {
		return err
	}

	if err := unix.Rmdir(c.path); err != nil {
		return fmt.Errorf("remove cgroup: %w", err)
	}

	return nil
}

// readPids reads the pids currently resident in the cgroup's own
// cgroup.procs file.
func (c Cgroup) readPids() ([]int, error) {
	file := filepath.Join(c.path, cgroupProcs)
	fd, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("open cgroup.procs: %w", err)
	}
	defer fd.Close()

	var pids []int
	scanner := bufio.NewScanner(fd)
	for scanner.Scan() {
		pid, err := strconv.Atoi(scanner.Text())
		if err != nil {
			return nil, fmt.Errorf("scan cgroup.procs pids atoi: %w", err)
		}
		pids = append(pids, pid)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan cgroup.procs pids: %w", err)
	}

	return pids, nil
}

const (
	// cgroupProcs is the name of the file that contains all processes within a
	// cgroup.
	cgroupProcs = "cgroup.procs"
)
