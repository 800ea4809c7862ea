// Package worker is the per-task executor (C7): it fetches one task's URL
// end to end over internal/transport, persists progress/state through
// internal/taskstore, and reports terminal/interim events on the
// eventbus. Grounded on the teacher's internal/core engine/state/
// congestion/organizer/verifier files, recombined around taskstore.Task
// instead of storage.DownloadTask.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"project-tachyon/internal/config"
	"project-tachyon/internal/diagnostics"
	"project-tachyon/internal/dlinfo"
	"project-tachyon/internal/eventbus"
	"project-tachyon/internal/notify"
	"project-tachyon/internal/policy"
	"project-tachyon/internal/taskstore"
	"project-tachyon/internal/transport"
)

// partSize is the chunk size used for congestion-aware parallel fetches;
// below this a task always runs single-stream.
const partSize = 8 * 1024 * 1024

// Deps are the collaborators a Handle needs. Every field except Backoff (a
// func) and Notify (an interface) is a concrete pointer rather than a
// narrow interface because worker is the outermost
// ring of the dependency graph: nothing else depends on it, so there is
// no cycle to avoid by narrowing.
type Deps struct {
	Transport  *transport.Client
	Store      *taskstore.Store
	Policy     *policy.Evaluator
	Bus        *eventbus.Bus
	Config     *config.Manager
	Allocator  *diagnostics.Allocator
	Organizer  *diagnostics.Organizer
	Verifier   *Verifier
	Logger     *slog.Logger
	Congestion *CongestionController
	Backoff    BackoffFunc
	Notify     notify.Bridge
	DLInfo     *dlinfo.Store
}

// Handle runs a single task to completion, retry, or cooperative abort.
type Handle struct {
	deps Deps
	task taskstore.Task

	limiter *rate.Limiter

	mu         sync.Mutex
	progress   taskstore.Progress
	lastReport time.Time
	lastBytes  int64

	watchdogSince time.Time
	watchdogBytes int64

	startedAt time.Time
	gauge     bool
}

// NewHandle builds a Handle for task, rate-limited to speedBPS (0 means
// unlimited).
func NewHandle(deps Deps, task taskstore.Task, speedBPS int64) *Handle {
	if deps.Backoff == nil {
		deps.Backoff = ExponentialBackoff
	}
	limit := rate.Inf
	burst := 1 << 20
	if speedBPS > 0 {
		limit = rate.Limit(speedBPS)
		burst = int(speedBPS)
		if burst < 4096 {
			burst = 4096
		}
	}
	progress := task.Progress
	if len(progress.Total) == 0 {
		progress = taskstore.Progress{Processed: []int64{0}, Total: []int64{0}}
	}
	return &Handle{
		deps:     deps,
		task:     task,
		limiter:  rate.NewLimiter(limit, burst),
		progress: progress,
	}
}

// SetSpeed adjusts the live rate limit without restarting the transfer.
func (h *Handle) SetSpeed(speedBPS int64) {
	if speedBPS <= 0 {
		h.limiter.SetLimit(rate.Inf)
		return
	}
	h.limiter.SetLimit(rate.Limit(speedBPS))
	h.limiter.SetBurst(int(speedBPS))
}

var errCancelled = errors.New("worker: cancelled")

// Run executes task per §4.7's contract. A nil error covers both success
// and cooperative cancellation (persisted progress, no terminal event);
// a non-nil error carries a taskstore.Reason that Run has already
// persisted via UpdateState: a Retrying transition for retryable reasons,
// a Failed transition otherwise.
func (h *Handle) Run(ctx context.Context) error {
	h.startedAt = time.Now()
	if h.deps.Notify != nil {
		h.gauge = h.deps.Notify.RegisterTask(h.taskInfo())
	}

	headers := make(map[string]string, len(h.task.Headers))
	for k, v := range h.task.Headers {
		headers[k] = v
	}

	if !h.deps.Policy.Evaluate(h.task.Bundle, h.task.BundleType, string(h.task.Action), h.task.URL) {
		return h.terminal(taskstore.Failed, taskstore.ReasonRequestError, fmt.Errorf("worker: url denied by domain policy"))
	}

	ctx = transport.WithRedirectInterceptor(ctx, h.redirectInterceptor())

	probe, err := h.deps.Transport.Probe(ctx, h.task.URL, headers)
	if err != nil {
		return h.classify(ctx, err)
	}

	totalSize := probe.TotalSize
	if h.task.EndByte > h.task.BeginByte {
		totalSize = h.task.EndByte - h.task.BeginByte + 1
	}

	h.mu.Lock()
	if len(h.progress.Total) == 0 {
		h.progress.Total = []int64{0}
		h.progress.Processed = []int64{0}
	}
	h.progress.Total[0] = totalSize
	h.mu.Unlock()

	if totalSize > 0 && h.deps.Allocator != nil {
		if err := h.deps.Allocator.AllocateFile(h.task.SavePath, totalSize); err != nil {
			return h.terminal(taskstore.Failed, taskstore.ReasonInsufficientSpace, err)
		}
	}

	host := h.task.Domain()
	useParallel := probe.SupportsRange && totalSize > partSize && h.deps.Congestion != nil

	if useParallel {
		err = h.runParallel(ctx, totalSize, headers, host)
	} else {
		err = h.runSequential(ctx, totalSize, headers)
	}

	if errors.Is(err, errCancelled) {
		h.persistProgress()
		return nil
	}
	if err != nil {
		return h.classify(ctx, err)
	}

	return h.finish()
}

func (h *Handle) finish() error {
	if h.deps.Config != nil && h.deps.Config.GetEnableIntegrityCheck() && h.deps.Verifier != nil {
		if expected := h.task.Headers["X-Expected-Checksum"]; expected != "" {
			if err := h.deps.Verifier.Verify(h.task.SavePath, "sha256", expected); err != nil {
				return h.terminal(taskstore.Failed, taskstore.ReasonIOError, err)
			}
		}
	}

	finalPath := h.task.SavePath
	if h.deps.Organizer != nil {
		if moved, err := h.deps.Organizer.OrganizeFile(h.task.SavePath); err == nil {
			finalPath = moved
		}
	}

	h.mu.Lock()
	h.progress.Processed[0] = h.progress.Total[0]
	h.progress.TotalProcessed = h.progress.Total[0]
	h.task.SavePath = finalPath
	h.mu.Unlock()

	h.persistProgress()
	if h.deps.Store != nil {
		_ = h.deps.Store.UpdateState(h.task.TaskID, taskstore.Completed, taskstore.ReasonOK)
	}
	h.publish(eventbus.TaskCompleted, nil)

	if h.deps.Notify != nil {
		h.deps.Notify.PublishSuccess(h.taskInfo())
		h.deps.Notify.UnregisterTask(h.task.UID, h.task.TaskID, false)
	}
	if h.deps.DLInfo != nil {
		h.deps.DLInfo.Insert(h.task.TaskID, dlinfo.Info{
			TotalMs:      time.Since(h.startedAt).Milliseconds(),
			ResourceSize: h.progress.TotalProcessed,
		})
	}
	return nil
}

// terminal persists a non-retryable failure and publishes TaskFailed.
func (h *Handle) terminal(state taskstore.State, reason taskstore.Reason, cause error) error {
	if h.deps.Store != nil {
		_ = h.deps.Store.UpdateState(h.task.TaskID, state, reason)
	}
	h.publish(eventbus.TaskFailed, reason)

	if h.deps.Notify != nil {
		h.deps.Notify.PublishFailure(notify.FailureInfo{TaskID: h.task.TaskID, Reason: reason, Err: cause})
		h.deps.Notify.UnregisterTask(h.task.UID, h.task.TaskID, false)
	}
	return fmt.Errorf("worker: task %d: %s: %w", h.task.TaskID, reason, cause)
}

// classify maps a transport-layer error onto a retry or a terminal
// failure per §4.7's retryable reason set.
func (h *Handle) classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		h.persistProgress()
		return nil
	}

	reason := reasonFor(err)
	retryable := isRetryable(reason)

	if retryable && h.task.RetryAllowed && h.task.Tries < h.deps.maxRetries() {
		h.task.Tries++
		if h.deps.Store != nil {
			_ = h.deps.Store.UpdateState(h.task.TaskID, taskstore.Retrying, reason)
			_ = h.deps.Store.DB.Table("request_task").Where("task_id = ?", h.task.TaskID).
				Update("tries", h.task.Tries).Error
		}
		h.publish(eventbus.TaskFailed, reason)
		return fmt.Errorf("worker: task %d retrying (%d): %s: %w", h.task.TaskID, h.task.Tries, reason, err)
	}

	return h.terminal(taskstore.Failed, reason, err)
}

// redirectInterceptor enforces §4.7's per-task redirect contract: follows
// iff the task's RedirectAllowed flag is set, and re-validates every
// redirect target against the domain policy (§6) per hop rather than
// trusting the transport's process-wide policy.
func (h *Handle) redirectInterceptor() func(req *http.Request, via []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if !h.task.RedirectAllowed {
			return http.ErrUseLastResponse
		}
		if h.deps.Policy != nil && !h.deps.Policy.Evaluate(h.task.Bundle, h.task.BundleType, string(h.task.Action), req.URL.String()) {
			return fmt.Errorf("worker: redirect target %s denied by domain policy", req.URL.String())
		}
		return nil
	}
}

func (d Deps) maxRetries() int {
	if d.Config == nil {
		return 5
	}
	return d.Config.GetMaxRetries()
}

func reasonFor(err error) taskstore.Reason {
	if errors.Is(err, lowSpeedErr) {
		return taskstore.ReasonLowSpeed
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"):
		return taskstore.ReasonTimeout
	case strings.Contains(msg, "no such host") || strings.Contains(msg, "dns"):
		return taskstore.ReasonDNS
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "connect:"):
		return taskstore.ReasonConnectError
	case strings.Contains(msg, "tls") || strings.Contains(msg, "certificate") || strings.Contains(msg, "x509"):
		return taskstore.ReasonSSL
	case strings.Contains(msg, "redirect"):
		return taskstore.ReasonRedirectError
	case strings.Contains(msg, "416") || strings.Contains(msg, "range"):
		return taskstore.ReasonUnsupportedRange
	case strings.Contains(msg, "reset") || strings.Contains(msg, "broken pipe") || strings.Contains(msg, "eof"):
		return taskstore.ReasonTCP
	default:
		return taskstore.ReasonRequestError
	}
}

func isRetryable(r taskstore.Reason) bool {
	switch r {
	case taskstore.ReasonConnectError, taskstore.ReasonTCP, taskstore.ReasonDNS,
		taskstore.ReasonSSL, taskstore.ReasonTimeout, taskstore.ReasonNetworkOffline:
		return true
	default:
		return false
	}
}

func (h *Handle) publish(kind eventbus.Kind, payload any) {
	if h.deps.Bus == nil {
		return
	}
	_ = h.deps.Bus.Publish(context.Background(), eventbus.Envelope{
		Kind:    kind,
		UID:     h.task.UID,
		TaskID:  h.task.TaskID,
		Payload: payload,
	})
}

func (h *Handle) persistProgress() {
	if h.deps.Store == nil {
		return
	}
	h.mu.Lock()
	p := h.progress
	h.mu.Unlock()
	_ = h.deps.Store.UpdateProgress(h.task.TaskID, p)
}

// addProgress accumulates n processed bytes under the progress mutex
// (I3), throttling TaskRunning notifications to the configured interval
// and only on byte-delta, then runs the min-speed watchdog.
func (h *Handle) addProgress(n int64) error {
	h.mu.Lock()
	h.progress.Processed[0] += n
	h.progress.TotalProcessed += n
	bytesNow := h.progress.Processed[0]
	interval := 500 * time.Millisecond
	if h.deps.Config != nil {
		interval = h.deps.Config.GetProgressInterval()
	}
	shouldReport := bytesNow != h.lastBytes && time.Since(h.lastReport) >= interval
	if shouldReport {
		h.lastReport = time.Now()
		h.lastBytes = bytesNow
	}
	h.mu.Unlock()

	if shouldReport {
		h.persistProgress()
		h.publish(eventbus.TaskRunning, bytesNow)
		if h.deps.Notify != nil && h.gauge {
			h.deps.Notify.PublishProgress(h.taskInfo())
		}
	}

	return h.checkWatchdog(n)
}

// taskInfo snapshots the current task/progress state for the notify
// bridge contract (§4.11).
func (h *Handle) taskInfo() notify.TaskInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	var total int64
	if len(h.progress.Total) > 0 {
		total = h.progress.Total[0]
	}
	var now int64
	if len(h.progress.Processed) > 0 {
		now = h.progress.Processed[0]
	}
	return notify.TaskInfo{
		TaskID:     h.task.TaskID,
		UID:        h.task.UID,
		FileName:   h.task.SavePath,
		BytesNow:   now,
		BytesTotal: total,
	}
}

// checkWatchdog enforces the sustained min-speed floor (§4.7).
func (h *Handle) checkWatchdog(n int64) error {
	if h.task.MinSpeed.BytesPerSec <= 0 || h.task.MinSpeed.DurationSec <= 0 {
		return nil
	}
	now := time.Now()
	if h.watchdogSince.IsZero() {
		h.watchdogSince = now
		h.watchdogBytes = 0
	}
	h.watchdogBytes += n

	window := time.Duration(h.task.MinSpeed.DurationSec) * time.Second
	elapsed := now.Sub(h.watchdogSince)
	if elapsed < window {
		return nil
	}

	avg := float64(h.watchdogBytes) / elapsed.Seconds()
	h.watchdogSince = now
	h.watchdogBytes = 0
	if avg < float64(h.task.MinSpeed.BytesPerSec) {
		return fmt.Errorf("worker: sustained speed %.0f B/s below floor %d B/s: %w",
			avg, h.task.MinSpeed.BytesPerSec, lowSpeedErr)
	}
	return nil
}

var lowSpeedErr = errors.New("low-speed")

func (h *Handle) runSequential(ctx context.Context, totalSize int64, headers map[string]string) error {
	h.mu.Lock()
	localOffset := h.progress.Processed[0]
	h.mu.Unlock()
	remoteOffset := h.task.BeginByte + localOffset

	resp, err := h.deps.Transport.RangeGet(ctx, h.task.URL, headers, remoteOffset)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable {
		return fmt.Errorf("worker: 416 range not satisfiable")
	}
	if remoteOffset > 0 && resp.StatusCode != http.StatusPartialContent {
		// Server ignored our Range header despite a non-zero start: §4.7
		// requires failing outright, not silently restarting from scratch
		// (which would corrupt a resume or ignore a configured begin byte).
		return fmt.Errorf("worker: server ignored range request: unsupported range")
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("worker: unexpected status %d", resp.StatusCode)
	}

	flags := os.O_CREATE | os.O_WRONLY
	f, err := os.OpenFile(h.task.SavePath, flags, 0o644)
	if err != nil {
		return fmt.Errorf("worker: open save path: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(localOffset, io.SeekStart); err != nil {
		return fmt.Errorf("worker: seek save path: %w", err)
	}

	return h.copyThrottled(ctx, f, resp.Body)
}

// copyThrottled streams src into dst 32KB at a time, gated by the rate
// limiter and cooperative cancellation, accumulating progress as it goes.
func (h *Handle) copyThrottled(ctx context.Context, dst io.Writer, src io.Reader) error {
	buf := make([]byte, 32*1024)
	for {
		select {
		case <-ctx.Done():
			return errCancelled
		default:
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if err := h.limiter.WaitN(ctx, n); err != nil {
				return errCancelled
			}
			if _, err := dst.Write(buf[:n]); err != nil {
				return fmt.Errorf("worker: write save path: %w", err)
			}
			if err := h.addProgress(int64(n)); err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}
