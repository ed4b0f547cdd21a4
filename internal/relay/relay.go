package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"telegram-genai-bot/internal/logging"
	"telegram-genai-bot/internal/metrics"
)

const (
	defaultPollInterval   = 10 * time.Second
	defaultMaxWait        = 10 * time.Minute
	defaultMaxPollErrors  = 5
	defaultEnhanceTimeout = 30 * time.Second
	defaultCleanupTimeout = 15 * time.Second
)

// ErrDelivery is returned when the result could not be sent to the chat.
var ErrDelivery = errors.New("deliver result")

// Config tunes a Relay. Zero values fall back to defaults.
type Config struct {
	Kind           Kind
	PollInterval   time.Duration
	MaxWait        time.Duration
	MaxPollErrors  int
	EnhanceTimeout time.Duration
	CleanupTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Kind == "" {
		c.Kind = KindImage
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.MaxWait <= 0 {
		c.MaxWait = defaultMaxWait
	}
	if c.MaxPollErrors <= 0 {
		c.MaxPollErrors = defaultMaxPollErrors
	}
	if c.EnhanceTimeout <= 0 {
		c.EnhanceTimeout = defaultEnhanceTimeout
	}
	if c.CleanupTimeout <= 0 {
		c.CleanupTimeout = defaultCleanupTimeout
	}
	return c
}

// Relay drives generation requests of one media kind from acceptance to
// delivery. It is safe for concurrent use; every request keeps its own job
// and status message.
type Relay struct {
	cfg       Config
	messenger Messenger
	provider  Provider
	enhancer  Enhancer
	journal   Journal

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// Option configures optional collaborators.
type Option func(*Relay)

// WithEnhancer enables prompt enhancement.
func WithEnhancer(e Enhancer) Option {
	return func(r *Relay) { r.enhancer = e }
}

// WithJournal records finished jobs.
func WithJournal(j Journal) Option {
	return func(r *Relay) { r.journal = j }
}

// New creates a relay for cfg.Kind.
func New(cfg Config, m Messenger, p Provider, opts ...Option) *Relay {
	r := &Relay{cfg: cfg.withDefaults(), messenger: m, provider: p}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dispatch handles req in its own goroutine and returns immediately.
// Once Wait has been called new requests are refused with a shutdown notice.
func (r *Relay) Dispatch(ctx context.Context, req Request) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.refuse(ctx, req)
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				logging.Ctx(ctx).Error().Str("event", "job_panic").Interface("panic", p).Msg("relay panicked")
			}
		}()
		_ = r.Submit(ctx, req)
	}()
}

// Wait stops accepting requests and blocks until every dispatched request
// has finished.
func (r *Relay) Wait() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Relay) refuse(ctx context.Context, req Request) {
	logging.Ctx(ctx).Warn().Str("event", "job_refused").Str("kind", string(r.cfg.Kind)).Msg("request refused during shutdown")
	outCtx, cancel := r.detached(ctx)
	defer cancel()
	if _, err := r.messenger.SendText(outCtx, req.ChatID, UserMessage(r.cfg.Kind, context.Canceled)); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("send shutdown notice failed")
	}
}

// Submit runs req to completion and returns its terminal error, nil when the
// media was delivered. All user-visible effects go through the Messenger.
func (r *Relay) Submit(ctx context.Context, req Request) (err error) {
	kind := string(r.cfg.Kind)
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		if _, sendErr := r.messenger.SendText(ctx, req.ChatID, usageHint(r.cfg.Kind)); sendErr != nil {
			logging.Ctx(ctx).Warn().Err(sendErr).Msg("send usage hint failed")
		}
		return ErrEmptyPrompt
	}

	job := Job{
		RequestID:   uuid.NewString(),
		ChatID:      req.ChatID,
		Kind:        r.cfg.Kind,
		Prompt:      prompt,
		State:       StateSubmitted,
		SubmittedAt: time.Now(),
	}
	logger := logging.Ctx(ctx).With().Str("request_id", job.RequestID).Str("kind", kind).Logger()
	ctx = logger.WithContext(ctx)
	log := &logger
	log.Info().Str("event", "job_accepted").Str("snippet", logging.Snippet(prompt, 30)).Msg("generation request accepted")

	metrics.JobsInFlight.WithLabelValues(kind).Inc()
	defer metrics.JobsInFlight.WithLabelValues(kind).Dec()

	status, statusErr := r.messenger.SendText(ctx, req.ChatID, acceptedText(r.cfg.Kind, r.enhancer != nil))
	hasStatus := statusErr == nil
	if hasStatus {
		defer r.deleteStatus(ctx, status)
	} else {
		log.Warn().Err(statusErr).Msg("send status message failed")
	}

	data, err := r.run(ctx, req, &job, status, hasStatus)

	outCtx, cancel := r.detached(ctx)
	defer cancel()
	if derr := r.deliver(outCtx, &job, data, err); derr != nil {
		err = derr
	}
	r.finish(outCtx, &job, err)
	return err
}

func (r *Relay) run(ctx context.Context, req Request, job *Job, status MessageRef, hasStatus bool) ([]byte, error) {
	log := logging.Ctx(ctx)

	job.UsedPrompt = r.enhance(ctx, job.Prompt)
	if hasStatus {
		if err := r.messenger.EditText(ctx, status, generatingText(r.cfg.Kind, job.UsedPrompt)); err != nil {
			log.Warn().Err(err).Msg("edit status message failed")
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, r.cfg.MaxWait)
	defer cancel()

	id, err := r.provider.Submit(waitCtx, job.UsedPrompt, req.Reference)
	if err != nil {
		if waitCtx.Err() != nil {
			return nil, waitErr(ctx)
		}
		return nil, &SubmissionError{Err: err}
	}
	job.ID = id
	job.State = StatePolling
	log.Info().Str("event", "job_submitted").Str("job_id", id).Msg("job submitted")

	return r.poll(ctx, waitCtx, job)
}

func (r *Relay) poll(ctx, waitCtx context.Context, job *Job) ([]byte, error) {
	log := logging.Ctx(ctx)
	kind := string(r.cfg.Kind)

	timer := time.NewTimer(r.cfg.PollInterval)
	defer timer.Stop()

	failures := 0
	for {
		select {
		case <-waitCtx.Done():
			return nil, waitErr(ctx)
		case <-timer.C:
		}

		job.Polls++
		res, err := r.provider.Poll(waitCtx, job.ID)
		if err == nil && res == nil {
			err = errors.New("empty poll response")
		}
		if err != nil {
			if waitCtx.Err() != nil {
				return nil, waitErr(ctx)
			}
			failures++
			metrics.Polls.WithLabelValues(kind, "error").Inc()
			log.Warn().Err(err).Str("event", "job_poll").Str("job_id", job.ID).Int("failures", failures).Msg("poll failed")
			if failures >= r.cfg.MaxPollErrors {
				return nil, &PollingError{JobID: job.ID, Attempts: failures, Err: err}
			}
			timer.Reset(r.cfg.PollInterval)
			continue
		}
		failures = 0
		metrics.Polls.WithLabelValues(kind, string(res.Status)).Inc()
		log.Debug().Str("event", "job_poll").Str("job_id", job.ID).Str("status", string(res.Status)).Int("poll", job.Polls).Msg("job polled")

		switch res.Status {
		case PollSucceeded:
			if len(res.Data) == 0 {
				return nil, ErrEmptyResult
			}
			return res.Data, nil
		case PollFailed:
			return nil, &ProviderFailure{Reason: res.Reason, Blocked: res.Blocked}
		}
		timer.Reset(r.cfg.PollInterval)
	}
}

// enhance never fails: any error falls back to the original prompt.
func (r *Relay) enhance(ctx context.Context, prompt string) string {
	if r.enhancer == nil {
		return prompt
	}
	ectx, cancel := context.WithTimeout(ctx, r.cfg.EnhanceTimeout)
	defer cancel()

	out, err := r.enhancer.Enhance(ectx, prompt, EnhanceInstruction)
	if err == nil {
		if out = cleanEnhanced(out); out != "" {
			metrics.Enhancements.WithLabelValues("ok").Inc()
			logging.Ctx(ctx).Debug().Str("event", "enhance_ok").Str("snippet", logging.Snippet(out, 60)).Msg("prompt enhanced")
			return out
		}
		err = errors.New("empty response")
	}
	metrics.Enhancements.WithLabelValues("fallback").Inc()
	logging.Ctx(ctx).Warn().Err(err).Str("event", "enhance_failed").Msg("prompt enhancement failed, using original prompt")
	return prompt
}

func (r *Relay) deliver(ctx context.Context, job *Job, data []byte, err error) error {
	log := logging.Ctx(ctx)
	if err == nil {
		caption := captionFor(r.cfg.Kind, job.UsedPrompt)
		var sendErr error
		if r.cfg.Kind == KindVideo {
			sendErr = r.messenger.SendVideo(ctx, job.ChatID, data, caption)
		} else {
			sendErr = r.messenger.SendPhoto(ctx, job.ChatID, data, caption)
		}
		if sendErr == nil {
			return nil
		}
		log.Error().Err(sendErr).Msg("send media failed")
		err = fmt.Errorf("%w: %v", ErrDelivery, sendErr)
		if _, textErr := r.messenger.SendText(ctx, job.ChatID, fmt.Sprintf("❌ The %s was generated but could not be delivered. Please try again.", r.cfg.Kind.noun())); textErr != nil {
			log.Error().Err(textErr).Msg("send failure text failed")
		}
		return err
	}
	if _, textErr := r.messenger.SendText(ctx, job.ChatID, UserMessage(r.cfg.Kind, err)); textErr != nil {
		log.Error().Err(textErr).Msg("send failure text failed")
	}
	return nil
}

func (r *Relay) finish(ctx context.Context, job *Job, err error) {
	if job.State.Terminal() {
		return
	}
	job.FinishedAt = time.Now()
	outcome := string(StateSucceeded)
	job.State = StateSucceeded
	if err != nil {
		job.State = StateFailed
		job.Reason = failureReason(err)
		if errors.Is(err, ErrDelivery) {
			job.Reason = "delivery"
		}
		outcome = job.Reason
	}

	kind := string(r.cfg.Kind)
	elapsed := job.FinishedAt.Sub(job.SubmittedAt)
	metrics.JobsTotal.WithLabelValues(kind, outcome).Inc()
	metrics.JobDuration.WithLabelValues(kind).Observe(elapsed.Seconds())

	ev := logging.Ctx(ctx).Info()
	if err != nil {
		ev = logging.Ctx(ctx).Warn().Err(err)
	}
	ev.Str("event", "job_finished").Str("job_id", job.ID).Str("state", string(job.State)).
		Str("reason", job.Reason).Int("polls", job.Polls).Dur("elapsed", elapsed).Msg("job finished")

	if r.journal != nil {
		if jerr := r.journal.RecordJob(ctx, *job); jerr != nil {
			logging.Ctx(ctx).Warn().Err(jerr).Msg("record job failed")
		}
	}
}

// deleteStatus removes the status message; errors are only logged.
func (r *Relay) deleteStatus(ctx context.Context, ref MessageRef) {
	dctx, cancel := r.detached(ctx)
	defer cancel()
	if err := r.messenger.DeleteMessage(dctx, ref); err != nil {
		logging.Ctx(ctx).Debug().Err(err).Int("message_id", ref.MessageID).Msg("delete status message failed")
	}
}

// detached keeps the logger and values of ctx but survives its cancellation,
// so failure texts and cleanup still reach the chat during shutdown.
func (r *Relay) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), r.cfg.CleanupTimeout)
}

func waitErr(parent context.Context) error {
	if err := parent.Err(); err != nil {
		return err
	}
	return ErrTimeout
}
