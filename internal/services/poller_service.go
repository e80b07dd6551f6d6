// internal/services/poller_service.go
package services

import (
	"context"
	"sync"
	"time"

	"github.com/Corphon/SceneComposer/internal/models"
	"github.com/Corphon/SceneComposer/internal/utils"
)

// StatusSource reads the state of a render job
type StatusSource interface {
	JobStatus(ctx context.Context, jobID string) (*models.JobStatus, error)
}

const defaultFailureMessage = "the render failed without a reason from the render service"

// Poller drives one job's state until it is terminal. Only one job is bound at a time;
// a loop whose binding was superseded never writes.
type Poller struct {
	source   StatusSource
	interval time.Duration

	mu          sync.Mutex
	job         *models.Job
	generation  uint64
	cancel      context.CancelFunc
	done        chan struct{}
	subscribers map[chan models.Job]bool

	logger  *utils.Logger
	metrics *utils.MetricsCollector
}

// NewPoller creates an unbound poller
func NewPoller(source StatusSource, interval time.Duration, metrics *utils.MetricsCollector) *Poller {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	if metrics == nil {
		metrics = utils.GetMetricsCollector()
	}
	return &Poller{
		source:      source,
		interval:    interval,
		subscribers: make(map[chan models.Job]bool),
		logger:      utils.GetLogger(),
		metrics:     metrics,
	}
}

// Bind stops polling the previous job, if any, and starts polling handle
func (p *Poller) Bind(handle models.JobHandle) {
	p.mu.Lock()
	p.generation++
	gen := p.generation
	prevCancel, prevDone := p.cancel, p.done

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.cancel, p.done = cancel, done

	now := time.Now()
	p.job = &models.Job{
		ID:          handle.ID,
		Status:      handle.Status,
		Phase:       models.PhaseSubmitted,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
	p.notifyLocked()
	p.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
		<-prevDone
	}

	p.logger.Info("polling render job", map[string]interface{}{
		"job_id":   handle.ID,
		"status":   handle.Status,
		"interval": p.interval.String(),
	})
	go p.loop(ctx, gen, handle.ID, done)
}

// Restore binds a previously observed job. Terminal jobs are not polled again.
func (p *Poller) Restore(job *models.Job) {
	if job == nil || job.ID == "" {
		return
	}
	if !job.Phase.IsTerminal() {
		p.Bind(models.JobHandle{ID: job.ID, Status: job.Status})
		return
	}
	p.Stop()
	p.mu.Lock()
	p.generation++
	p.job = job.Clone()
	p.notifyLocked()
	p.mu.Unlock()
}

// Reset stops polling and forgets the job
func (p *Poller) Reset() {
	p.Stop()
	p.mu.Lock()
	p.generation++
	p.job = nil
	p.notifyLocked()
	p.mu.Unlock()
}

// Stop ends the current loop and waits for it to exit. The job state is kept.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Wait blocks until the current loop exits or ctx is done
func (p *Poller) Wait(ctx context.Context) error {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the observed job. Phase is none when nothing is bound.
func (p *Poller) State() models.Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

func (p *Poller) stateLocked() models.Job {
	if p.job == nil {
		return models.Job{Phase: models.PhaseNone}
	}
	return *p.job.Clone()
}

// Subscribe returns a channel receiving every state change, starting with the current one
func (p *Poller) Subscribe() chan models.Job {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan models.Job, 10)
	p.subscribers[ch] = true
	ch <- p.stateLocked()
	return ch
}

// Unsubscribe stops delivery to ch and closes it
func (p *Poller) Unsubscribe(ch chan models.Job) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.subscribers[ch] {
		delete(p.subscribers, ch)
		close(ch)
	}
}

// notifyLocked sends the current state to every subscriber without blocking
func (p *Poller) notifyLocked() {
	state := p.stateLocked()
	for ch := range p.subscribers {
		select {
		case ch <- state:
		default:
		}
	}
}

func (p *Poller) loop(ctx context.Context, gen uint64, jobID string, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.tick(ctx, gen, jobID) {
				return
			}
		}
	}
}

// tick polls once and reports whether the loop should stop
func (p *Poller) tick(ctx context.Context, gen uint64, jobID string) bool {
	status, err := p.source.JobStatus(ctx, jobID)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		// a failed poll leaves the state as it was
		p.metrics.RecordPollTick("error")
		p.logger.Debug("job status poll failed", map[string]interface{}{
			"job_id": jobID,
			"error":  err.Error(),
		})
		return false
	}
	return p.apply(gen, jobID, status)
}

func (p *Poller) apply(gen uint64, jobID string, status *models.JobStatus) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.generation != gen || p.job == nil || p.job.ID != jobID || p.job.Phase.IsTerminal() {
		p.metrics.RecordPollTick("stale")
		return true
	}
	p.metrics.RecordPollTick("ok")

	phase := models.PhaseForStatus(status.Status)
	p.job.Status = status.Status
	p.job.Phase = phase
	p.job.UpdatedAt = time.Now()

	switch phase {
	case models.PhaseCompleted:
		p.job.Error = nil
		p.job.ResultURL = copyString(status.URL)
	case models.PhaseFailed:
		msg := defaultFailureMessage
		if status.Error != nil && *status.Error != "" {
			msg = *status.Error
		}
		p.job.Error = &msg
		p.job.ResultURL = nil
	default:
		p.job.Error = nil
	}
	p.notifyLocked()

	if phase.IsTerminal() {
		p.metrics.RecordJobTerminal(string(phase))
		fields := map[string]interface{}{"job_id": jobID, "phase": string(phase)}
		if p.job.Error != nil {
			fields["error"] = *p.job.Error
		}
		p.logger.Info("render job finished", fields)
		return true
	}
	return false
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
