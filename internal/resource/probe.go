package resource

import (
	"fmt"
	"runtime"

	"github.com/prometheus/procfs"
)

// Sample is one memory observation.
type Sample struct {
	// ResidentBytes is this process's resident set size.
	ResidentBytes uint64

	// AvailableBytes is host memory available without swapping.
	AvailableBytes uint64

	// TotalBytes is total host memory.
	TotalBytes uint64

	CPUs int

	// HeadroomKnown is false when host memory could not be read.
	// Headroom checks are skipped rather than guessed.
	HeadroomKnown bool
}

// Probe observes memory pressure.
type Probe interface {
	Sample() (Sample, error)
}

// ProcProbe reads /proc. Where /proc is unavailable it falls back to Go
// runtime statistics and reports unknown headroom.
type ProcProbe struct {
	fs    procfs.FS
	fsErr error
}

var _ Probe = (*ProcProbe)(nil)

// NewProcProbe opens the default /proc mount.
func NewProcProbe() *ProcProbe {
	fs, err := procfs.NewDefaultFS()
	return &ProcProbe{fs: fs, fsErr: err}
}

// Sample returns the current observation.
func (p *ProcProbe) Sample() (Sample, error) {
	s := Sample{CPUs: runtime.NumCPU()}

	if p.fsErr != nil {
		s.ResidentBytes = runtimeResident()
		return s, nil
	}

	mem, err := p.fs.Meminfo()
	if err == nil && mem.MemTotal != nil && mem.MemAvailable != nil {
		s.TotalBytes = *mem.MemTotal * 1024
		s.AvailableBytes = *mem.MemAvailable * 1024
		s.HeadroomKnown = true
	}

	self, err := p.fs.Self()
	if err != nil {
		s.ResidentBytes = runtimeResident()
		return s, nil
	}
	stat, err := self.Stat()
	if err != nil {
		return s, fmt.Errorf("reading process stat: %w", err)
	}
	if rss := stat.ResidentMemory(); rss > 0 {
		s.ResidentBytes = uint64(rss)
	}
	return s, nil
}

// runtimeResident approximates RSS with the memory the Go runtime holds.
func runtimeResident() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.Sys - ms.HeapReleased
}

// StaticProbe returns a fixed sample. Used in tests and for hosts where
// memory checks are switched off.
type StaticProbe Sample

// Sample returns the fixed sample.
func (p StaticProbe) Sample() (Sample, error) {
	return Sample(p), nil
}
