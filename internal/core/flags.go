package core

import "sync/atomic"

// ProcessFlags is the small, read-mostly block of atomic flags any
// subsystem may read (spec §6 "Process-wide state"). They are written
// only by the sequencers.
type ProcessFlags struct {
	starting int32
	running  int32
	stopping int32
}

func (f *ProcessFlags) SetStarting(v bool) { storeFlag(&f.starting, v) }
func (f *ProcessFlags) SetRunning(v bool)  { storeFlag(&f.running, v) }
func (f *ProcessFlags) SetStopping(v bool) { storeFlag(&f.stopping, v) }

func (f *ProcessFlags) Starting() bool { return loadFlag(&f.starting) }
func (f *ProcessFlags) Running() bool  { return loadFlag(&f.running) }
func (f *ProcessFlags) Stopping() bool { return loadFlag(&f.stopping) }

func storeFlag(p *int32, v bool) {
	if v {
		atomic.StoreInt32(p, 1)
	} else {
		atomic.StoreInt32(p, 0)
	}
}

func loadFlag(p *int32) bool {
	return atomic.LoadInt32(p) != 0
}
