package sampleprep

import (
	"sync"

	"github.com/cbegin/organsampler/wav"
	"github.com/google/uuid"
)

// Job is one pipe's worth of input to the full Ingest->Prefilter->
// EnvelopeAndCorrelation->BuildAlignment->Pack pipeline.
type Job struct {
	ID       uuid.UUID
	Attack   *wav.RawPipe
	Releases []*wav.RawPipe
	Gain     float32
	Bits     Bits
}

// Result is one Job's outcome: either a PreparedPipe or the error that
// stopped it.
type Result struct {
	ID   uuid.UUID
	Pipe *PreparedPipe
	Err  error
}

// LoaderPool runs Jobs submitted via Submit across a fixed pool of worker
// goroutines, each owning its own fastconv.FFTSet/PrefilterSet
// (odfilter.Temporaries are not goroutine-safe), and records the first
// error any worker hits. Grounded on wavldr.c's loader_thread_proc /
// init_thread_state / wavldr_begin_load / wavldr_finish: a fixed worker
// count pulling from a shared work queue, each with its own scratch state,
// and a load_set-wide sticky error under a single lock.
type LoaderPool struct {
	jobs    chan Job
	results chan Result
	wg      sync.WaitGroup

	mu       sync.Mutex
	firstErr error
}

// NewLoaderPool starts nbWorkers goroutines ready to process Jobs; Submit
// may be called concurrently with Results draining.
func NewLoaderPool(nbWorkers int) *LoaderPool {
	if nbWorkers < 1 {
		nbWorkers = 1
	}
	p := &LoaderPool{
		jobs:    make(chan Job),
		results: make(chan Result),
	}
	for i := 0; i < nbWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *LoaderPool) worker() {
	defer p.wg.Done()

	ps, err := NewPrefilterSet()
	if err != nil {
		p.recordErr(err)
		return
	}

	for job := range p.jobs {
		pipe, err := runJob(ps, job)
		if err != nil {
			p.recordErr(err)
		}
		p.results <- Result{ID: job.ID, Pipe: pipe, Err: err}
	}
}

func runJob(ps *PrefilterSet, job Job) (*PreparedPipe, error) {
	raw, err := Ingest(job.Attack, job.Releases)
	if err != nil {
		return nil, err
	}
	filtered := Prefilter(ps, raw)
	corr, err := EnvelopeAndCorrelation(ps.FFT, filtered)
	if err != nil {
		return nil, err
	}
	alignment := BuildAlignment(filtered, corr)
	pipe, _ := Pack(filtered, alignment, job.Gain, job.Bits, 1)
	return pipe, nil
}

// recordErr keeps the first error seen across every worker, matching
// load_set's single sticky error field: later errors are observed (via the
// per-job Result) but don't overwrite the first one callers see from Err.
func (p *LoaderPool) recordErr(err error) {
	p.mu.Lock()
	if p.firstErr == nil {
		p.firstErr = err
	}
	p.mu.Unlock()
}

// Submit enqueues job for processing; blocks if every worker is busy.
func (p *LoaderPool) Submit(job Job) { p.jobs <- job }

// Results returns the channel Results are delivered on, one per submitted
// Job, in completion order.
func (p *LoaderPool) Results() <-chan Result { return p.results }

// Close stops accepting new jobs and waits for in-flight workers to drain,
// then closes Results. Must be called exactly once, after every Submit.
func (p *LoaderPool) Close() {
	close(p.jobs)
	p.wg.Wait()
	close(p.results)
}

// Err returns the first error recorded by any worker, or nil if none have
// failed (yet). Safe to call at any time, including before Close.
func (p *LoaderPool) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.firstErr
}
