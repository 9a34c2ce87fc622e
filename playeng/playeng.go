// Package playeng is the real-time polyphonic playback engine: a
// fixed-capacity pool of playback instances, each wrapping up to
// MaxDecodersPerInstance decoder.State values, processed in fixed-size
// blocks by a small pool of worker goroutines with try-lock, never-block
// synchronization against the control (non-audio) side.
//
// Grounded on opendiapason's src/playeng.h/playeng.c, read in full: the
// instance lifecycle (inactive -> active -> zombie), the bit-packed
// callback status word, playeng_process's try-lock list/signal handling and
// worker join-and-sum, and playeng_signal_block/unblock/instance are all
// direct ports.
package playeng

import (
	"sync"

	"github.com/cbegin/organsampler/decoder"
)

// MaxDecodersPerInstance bounds how many decoder.State values a single
// playback instance may own (one per active layer — e.g. attack + release
// during a crossfade).
const MaxDecodersPerInstance = 2

// Callback status word bit layout: an active mask (bit per decoder slot,
// which ones are still live), a fade-termination mask (deactivate a slot
// once its fade completes), a loop-termination mask (deactivate a slot once
// it starts looping), and a scheduled re-invocation delay.
//
// PackCallbackStatus/SetCallbackActive/SetCallbackFadeTerm/
// SetCallbackLoopTerm/GetCallbackActive/GetCallbackFadeTerm/
// GetCallbackLoopTerm/GetCallbackDelay mirror PLAYENG_PACK_CALLBACK_STATUS
// and its PLAYENG_SET_*/PLAYENG_GET_* companions.
func PackCallbackStatus(delay uint32, activeMask, fadeTermMask, loopTermMask uint8) uint32 {
	return (delay&0xFFFF)<<16 | uint32(activeMask&0xF) | uint32(fadeTermMask&0xF)<<4 | uint32(loopTermMask&0xF)<<8
}

func SetCallbackActive(flags uint32, activeMask uint8) uint32 {
	return flags&^0x00F | uint32(activeMask&0xF)
}

func SetCallbackFadeTerm(flags uint32, fadeTermMask uint8) uint32 {
	return flags&^0x0F0 | uint32(fadeTermMask&0xF)<<4
}

func SetCallbackLoopTerm(flags uint32, loopTermMask uint8) uint32 {
	return flags&^0xF00 | uint32(loopTermMask&0xF)<<8
}

func GetCallbackActive(flags uint32) uint8   { return uint8(flags & 0xF) }
func GetCallbackFadeTerm(flags uint32) uint8 { return uint8((flags >> 4) & 0xF) }
func GetCallbackLoopTerm(flags uint32) uint8 { return uint8((flags >> 8) & 0xF) }
func GetCallbackDelay(flags uint32) uint32   { return (flags >> 16) & 0xFFFF }

// Callback is invoked from a worker goroutine whenever an instance's
// unblocked signal bits are non-zero, or, with no signals, once on the block
// where its scheduled delay counts down to zero (a delay of zero schedules
// nothing). It must return a status word built with PackCallbackStatus,
// whose delay field reloads the countdown.
type Callback func(userdata interface{}, states []*decoder.State, sigmask uint32, oldFlags uint32, samplerTime uint32) uint32

// Instance is one playback slot: up to MaxDecodersPerInstance decoder
// states plus the bookkeeping the engine needs to schedule callbacks and
// eventually reclaim the slot.
type Instance struct {
	states   []*decoder.State
	userdata interface{}
	flags    uint32
	signals  uint32

	// delay counts down once per processed block; the callback is withheld
	// until it reaches zero, implementing the scheduled-callback field the
	// status word's delay bits describe.
	delay uint32

	lockedSignals uint32
	callback      Callback
	next          *Instance
}

// States returns this instance's decoder states, in the order passed to
// Insert.
func (i *Instance) States() []*decoder.State { return i.states }

type threadData struct {
	active *Instance
	zombie *Instance

	buffers     [][]float32
	currentTime uint32

	permittedSignalMask uint32

	// scratch is this thread's preallocated mixdown buffer, reused (and
	// rezeroed in place) across Process calls whenever this thread isn't
	// the one writing straight into the caller's buffers — no allocation
	// happens on the audio thread.
	scratch [][]float32
}

// Engine is the playback engine: a fixed-capacity instance pool, processed
// in fixed-size blocks across a small worker-goroutine pool.
type Engine struct {
	listMu sync.Mutex

	freeInstances      []*Instance // treated as a stack
	insertionLockLevel int
	readyList          *Instance

	signalMu                  sync.Mutex
	lockedPermittedSignalMask uint32

	currentTime   uint32
	nbChannels    int
	nextThreadIdx int
	threads       []*threadData
}

// NewEngine creates a playback engine supporting up to maxPoly concurrently
// live instances, with nbChannels output channels and nbThreads worker
// goroutines (a value below 2 collapses to single-threaded operation, same
// as the original).
func NewEngine(maxPoly, nbChannels, nbThreads int) *Engine {
	if nbThreads < 2 {
		nbThreads = 1
	}
	eng := &Engine{
		freeInstances:             make([]*Instance, 0, maxPoly),
		lockedPermittedSignalMask: ^uint32(0),
		nbChannels:                nbChannels,
		threads:                   make([]*threadData, nbThreads),
	}
	for i := 0; i < maxPoly; i++ {
		eng.freeInstances = append(eng.freeInstances, &Instance{})
	}
	for i := range eng.threads {
		scratch := make([][]float32, nbChannels)
		for c := range scratch {
			scratch[c] = make([]float32, decoder.OutputSamples)
		}
		eng.threads[i] = &threadData{permittedSignalMask: eng.lockedPermittedSignalMask, scratch: scratch}
	}
	return eng
}

// PushBlockInsertion temporarily blocks ready instances from being promoted
// to active by Process, without affecting instances already active. Pair
// with PopBlockInsertion.
func (e *Engine) PushBlockInsertion() {
	e.listMu.Lock()
	e.insertionLockLevel++
	e.listMu.Unlock()
}

// PopBlockInsertion reverses one PushBlockInsertion.
func (e *Engine) PopBlockInsertion() {
	e.listMu.Lock()
	if e.insertionLockLevel == 0 {
		panic("playeng: PopBlockInsertion without matching PushBlockInsertion")
	}
	e.insertionLockLevel--
	e.listMu.Unlock()
}

func (e *Engine) returnInstance(inst *Instance) {
	inst.states = nil
	inst.next = nil
	e.freeInstances = append(e.freeInstances, inst)
}

func (e *Engine) getInstance(states []*decoder.State) *Instance {
	if len(e.freeInstances) == 0 {
		return nil
	}
	n := len(e.freeInstances) - 1
	inst := e.freeInstances[n]
	e.freeInstances = e.freeInstances[:n]
	inst.states = states
	return inst
}

// Insert reserves a playback instance for the given decoder states (1 to
// MaxDecodersPerInstance of them), to be signalled and processed starting
// from the next call to Process. Returns nil if the engine has no free
// polyphony.
func (e *Engine) Insert(states []*decoder.State, sigmask uint32, callback Callback, userdata interface{}) *Instance {
	if len(states) == 0 || len(states) > MaxDecodersPerInstance {
		panic("playeng: instance must own 1..MaxDecodersPerInstance decoder states")
	}
	e.listMu.Lock()
	inst := e.getInstance(states)
	e.listMu.Unlock()
	if inst == nil {
		return nil
	}

	inst.userdata = userdata
	inst.callback = callback
	inst.signals = sigmask
	inst.lockedSignals = 0
	inst.flags = 0
	inst.delay = 0
	inst.next = e.readyList
	e.readyList = inst
	return inst
}

func threadExecute(td *threadData) {
	active := td.active
	var newActive *Instance
	for active != nil {
		flags := active.flags
		activeBits := GetCallbackActive(flags)
		discard := false

		maskedSignals := active.signals & td.permittedSignalMask
		ready := maskedSignals != 0
		// A scheduled callback (the status word's delay field) fires once
		// its countdown reaches zero, even with no signal bits set. A delay
		// of zero means "no scheduled re-invocation, signals only".
		if !ready && active.delay > 0 {
			active.delay--
			if active.delay == 0 {
				ready = true
			}
		}
		if ready {
			flags = active.callback(active.userdata, active.states, maskedSignals, flags, td.currentTime)
			active.flags = flags
			active.delay = GetCallbackDelay(flags)
			activeBits = GetCallbackActive(flags)
			discard = activeBits == 0
			active.signals ^= maskedSignals
		}

		if !discard && activeBits != 0 {
			loopConds := GetCallbackLoopTerm(flags)
			fadeConds := GetCallbackFadeTerm(flags)
			newActiveBits := activeBits
			select_ := uint8(1)
			bits := activeBits
			for i := 0; bits != 0; i, bits = i+1, bits>>1 {
				if bits&1 != 0 {
					flg := active.states[i].Decode(td.buffers)
					if (flg&decoder.IsFading == 0 && fadeConds&select_ != 0) ||
						(flg&decoder.IsLooping != 0 && loopConds&select_ != 0) {
						newActiveBits ^= select_
					}
				}
				select_ <<= 1
			}
			if newActiveBits == 0 {
				discard = true
			} else {
				active.flags = SetCallbackActive(active.flags, newActiveBits)
			}
		}

		next := active.next
		if discard {
			active.next = td.zombie
			td.zombie = active
		} else {
			active.next = newActive
			newActive = active
		}
		active = next
	}
	td.active = newActive
}

// Process renders one block of OutputSamples frames into buffers (one
// slice per channel, each at least decoder.OutputSamples long), running
// every active instance's decode across a pool of worker goroutines and
// summing their contributions into buffers. Never blocks: list and signal
// updates that can't acquire their lock immediately are deferred to a later
// call, exactly as in the original.
func (e *Engine) Process(buffers [][]float32) {
	var otherThreads []*threadData
	var thisThread *threadData

	if e.listMu.TryLock() {
		if e.insertionLockLevel == 0 {
			ready := e.readyList
			for ready != nil {
				tmp := ready.next
				ready.next = e.threads[e.nextThreadIdx].active
				e.threads[e.nextThreadIdx].active = ready
				e.nextThreadIdx = (e.nextThreadIdx + 1) % len(e.threads)
				ready = tmp
			}
			e.readyList = nil
		}
		e.listMu.Unlock()
	}

	if e.signalMu.TryLock() {
		for _, td := range e.threads {
			td.permittedSignalMask = e.lockedPermittedSignalMask
			for a := td.active; a != nil; a = a.next {
				a.signals |= a.lockedSignals
				a.lockedSignals = 0
			}
		}
		e.signalMu.Unlock()
	}

	for _, td := range e.threads {
		if td.active != nil {
			td.currentTime = e.currentTime
			if thisThread == nil {
				thisThread = td
			} else {
				otherThreads = append(otherThreads, td)
			}
		}
	}

	var wg sync.WaitGroup
	for _, td := range otherThreads {
		td.buffers = td.scratch
		for c := range td.buffers {
			for k := range td.buffers[c] {
				td.buffers[c][k] = 0
			}
		}
		wg.Add(1)
		go func(td *threadData) {
			defer wg.Done()
			threadExecute(td)
		}(td)
	}

	if thisThread != nil {
		thisThread.buffers = buffers
		threadExecute(thisThread)
	}

	wg.Wait()
	for _, td := range otherThreads {
		for c := 0; c < e.nbChannels; c++ {
			for k := 0; k < decoder.OutputSamples; k++ {
				buffers[c][k] += td.buffers[c][k]
			}
		}
	}

	if e.listMu.TryLock() {
		for _, td := range e.threads {
			zombie := td.zombie
			for zombie != nil {
				tmp := zombie.next
				e.returnInstance(zombie)
				zombie = tmp
			}
			td.zombie = nil
		}
		e.listMu.Unlock()
	}

	e.currentTime = (e.currentTime + 1) & 0x7FFFFFFF
}

// SignalBlock marks the given signal bits as temporarily ignored: setting
// them on an instance will not trigger its callback nor clear the bits
// until they are unblocked.
func (e *Engine) SignalBlock(sigmask uint32) {
	if sigmask == 0 {
		panic("playeng: trying to block no signals")
	}
	e.signalMu.Lock()
	e.lockedPermittedSignalMask &^= sigmask
	e.signalMu.Unlock()
}

// SignalUnblock reverses SignalBlock for the given bits.
func (e *Engine) SignalUnblock(sigmask uint32) {
	if sigmask == 0 {
		panic("playeng: trying to unblock no signals")
	}
	e.signalMu.Lock()
	e.lockedPermittedSignalMask |= sigmask
	e.signalMu.Unlock()
}

// SignalInstance sets sigmask bits on inst, to be merged into its live
// signal mask (and trigger its callback, if unblocked) at the next Process
// call.
func (e *Engine) SignalInstance(inst *Instance, sigmask uint32) {
	if sigmask == 0 {
		panic("playeng: trying to set no signals")
	}
	e.signalMu.Lock()
	inst.lockedSignals |= sigmask
	e.signalMu.Unlock()
}
