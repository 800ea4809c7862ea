// Package cache is the free-standing content-addressed cache-download
// engine (C9): it fuses concurrent preload requests for the same URL
// into one transfer, applies LRU eviction under byte budgets, and fans
// completion callbacks out to their own goroutines. Grounded on §4.9's
// running/cache_manager contract; the teacher has no analogous engine
// (its downloads are always client-addressed, never preloaded to a
// shared cache), so the single-flight/fan-out shape is original to this
// package, built directly from the governing contract over
// internal/lru.Map, the same primitive internal/dlinfo uses.
package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"sync"

	"project-tachyon/internal/lru"
)

// Entry is one cached artifact, content-addressed by TaskID = hash(URL).
type Entry struct {
	TaskID    uint64
	URL       string
	InMemory  bool
	Data      []byte
	FilePath  string
	Size      int64
	Finalized bool
}

// Callback is the fan-out contract a Preload caller supplies.
type Callback struct {
	OnProgress func(now, total int64)
	OnSuccess  func(entry *Entry, id uint64)
	OnFail     func(err error, info string, id uint64)
	OnCancel   func()
}

// Fetcher performs the actual network transfer for a URL, returning a
// stream and its total size (0 if unknown). Kept as a narrow interface
// so this package never imports internal/transport directly.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (body io.ReadCloser, total int64, err error)
}

// Handle lets a Preload caller cooperatively cancel its transfer.
type Handle struct {
	TaskID uint64
	cancel context.CancelFunc
}

func (h *Handle) Cancel() {
	if h.cancel != nil {
		h.cancel()
	}
}

// runningTask is one in-flight single-flight transfer.
type runningTask struct {
	id     uint64
	url    string
	seq    uint64
	cancel context.CancelFunc

	mu         sync.Mutex
	callbacks  []Callback
	finishing  bool
	totalBytes int64
}

func (t *runningTask) addCallback(cb Callback) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finishing {
		return false
	}
	t.callbacks = append(t.callbacks, cb)
	return true
}

func (t *runningTask) drainCallbacks() []Callback {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finishing = true
	cbs := t.callbacks
	t.callbacks = nil
	return cbs
}

// Engine is the cache-download engine.
type Engine struct {
	fetcher Fetcher
	diskDir string

	mu      sync.Mutex
	running map[uint64]*runningTask

	lruMu      sync.Mutex
	ram        *lru.Map[uint64, *Entry]
	disk       *lru.Map[uint64, *Entry]
	ramUsed    int64
	ramBudget  int64
	diskUsed   int64
	diskBudget int64
}

func New(fetcher Fetcher, diskDir string) *Engine {
	return &Engine{
		fetcher:    fetcher,
		diskDir:    diskDir,
		running:    make(map[uint64]*runningTask),
		ram:        lru.New[uint64, *Entry](),
		disk:       lru.New[uint64, *Entry](),
		ramBudget:  64 * 1024 * 1024,
		diskBudget: 512 * 1024 * 1024,
	}
}

// StableHash is the task_id = stable_hash(url) contract (§4.9), FNV-1a
// over the raw URL.
func StableHash(url string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(url))
	return h.Sum64()
}

func (e *Engine) SetRAMBudget(bytes int64)  { e.lruMu.Lock(); e.ramBudget = bytes; e.lruMu.Unlock(); e.evict() }
func (e *Engine) SetDiskBudget(bytes int64) { e.lruMu.Lock(); e.diskBudget = bytes; e.lruMu.Unlock(); e.evict() }

// Contains reports whether url has a finalized cache entry, without
// touching recency order.
func (e *Engine) Contains(url string) bool {
	id := StableHash(url)
	e.lruMu.Lock()
	defer e.lruMu.Unlock()
	return e.ram.Contains(id) || e.disk.Contains(id)
}

// Fetch returns url's cached entry if present, promoting it to MRU.
func (e *Engine) Fetch(url string) (*Entry, bool) {
	id := StableHash(url)
	e.lruMu.Lock()
	defer e.lruMu.Unlock()
	if entry, ok := e.ram.Get(id); ok {
		return entry, true
	}
	if entry, ok := e.disk.Get(id); ok {
		return entry, true
	}
	return nil, false
}

// Remove evicts url's entry (if any) from both LRUs, deleting its disk
// file if present.
func (e *Engine) Remove(url string) {
	id := StableHash(url)
	e.lruMu.Lock()
	defer e.lruMu.Unlock()
	if entry, ok := e.ram.Peek(id); ok {
		e.ramUsed -= entry.Size
		e.ram.Remove(id)
	}
	if entry, ok := e.disk.Peek(id); ok {
		_ = os.Remove(entry.FilePath)
		e.diskUsed -= entry.Size
		e.disk.Remove(id)
	}
}

// Cancel aborts url's in-flight preload, if any.
func (e *Engine) Cancel(url string) {
	id := StableHash(url)
	e.mu.Lock()
	t, ok := e.running[id]
	e.mu.Unlock()
	if ok && t.cancel != nil {
		t.cancel()
	}
}

// ClearMemoryCache drops every ram entry whose task is not currently
// running (§4.9 eviction rule).
func (e *Engine) ClearMemoryCache() {
	e.clearCache(e.ram)
}

// ClearFileCache drops every disk entry whose task is not currently
// running, deleting the backing file.
func (e *Engine) ClearFileCache() {
	e.clearCache(e.disk)
}

func (e *Engine) clearCache(m *lru.Map[uint64, *Entry]) {
	e.mu.Lock()
	running := make(map[uint64]struct{}, len(e.running))
	for id := range e.running {
		running[id] = struct{}{}
	}
	e.mu.Unlock()

	e.lruMu.Lock()
	defer e.lruMu.Unlock()
	for _, id := range m.Keys() {
		if _, busy := running[id]; busy {
			continue
		}
		if entry, ok := m.Peek(id); ok {
			if entry.FilePath != "" {
				_ = os.Remove(entry.FilePath)
			}
			if entry.InMemory {
				e.ramUsed -= entry.Size
			} else {
				e.diskUsed -= entry.Size
			}
		}
		m.Remove(id)
	}
}

// Preload is the single-flight entry point of §4.9. update=false serves
// straight from cache when present; otherwise it joins an existing
// in-flight transfer for the same URL or starts a new one.
func (e *Engine) Preload(ctx context.Context, url string, cb Callback, update bool) (*Handle, error) {
	id := StableHash(url)

	if !update {
		if entry, ok := e.Fetch(url); ok {
			go func() {
				if cb.OnProgress != nil {
					cb.OnProgress(entry.Size, entry.Size)
				}
				if cb.OnSuccess != nil {
					cb.OnSuccess(entry, id)
				}
			}()
			return &Handle{TaskID: id}, nil
		}
	}

	e.mu.Lock()
	if t, ok := e.running[id]; ok && t.addCallback(cb) {
		e.mu.Unlock()
		return &Handle{TaskID: id, cancel: t.cancel}, nil
	}

	seq := uint64(1)
	if old, ok := e.running[id]; ok {
		seq = old.seq + 1
	}
	runCtx, cancel := context.WithCancel(ctx)
	t := &runningTask{id: id, url: url, seq: seq, cancel: cancel, callbacks: []Callback{cb}}
	e.running[id] = t
	e.mu.Unlock()

	go e.run(runCtx, t)

	return &Handle{TaskID: id, cancel: cancel}, nil
}

func (e *Engine) run(ctx context.Context, t *runningTask) {
	defer e.finishTask(t)

	body, total, err := e.fetcher.Fetch(ctx, t.url)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			e.cancelOut(t)
		} else {
			e.fail(t, err)
		}
		return
	}
	defer body.Close()

	t.mu.Lock()
	t.totalBytes = total
	t.mu.Unlock()

	useRAM := total > 0 && total <= e.currentRAMBudget()

	var entry *Entry
	if useRAM {
		entry, err = e.streamToRAM(ctx, t, body, total)
	} else {
		entry, err = e.streamToDisk(ctx, t, body, total)
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			e.cancelOut(t)
		} else {
			e.fail(t, err)
		}
		return
	}

	e.succeed(t, entry)
}

func (e *Engine) currentRAMBudget() int64 {
	e.lruMu.Lock()
	defer e.lruMu.Unlock()
	return e.ramBudget
}

// streamToRAM buffers body into memory, reporting progress at most every
// 8 byte-events (read chunks) and never at bytes_now == bytes_total.
func (e *Engine) streamToRAM(ctx context.Context, t *runningTask, body io.Reader, total int64) (*Entry, error) {
	var buf bytes.Buffer
	chunk := make([]byte, 32*1024)
	var read int64
	events := 0

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		n, err := body.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			read += int64(n)
			events++
			if events%8 == 0 && read != total {
				e.reportProgress(t, read, total)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	return &Entry{TaskID: t.id, URL: t.url, InMemory: true, Data: buf.Bytes(), Size: read, Finalized: true}, nil
}

func (e *Engine) streamToDisk(ctx context.Context, t *runningTask, body io.Reader, total int64) (*Entry, error) {
	if err := os.MkdirAll(e.diskDir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create disk dir: %w", err)
	}
	inProgressPath := filepath.Join(e.diskDir, fmt.Sprintf("%d", t.id))
	f, err := os.OpenFile(inProgressPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cache: create cache file: %w", err)
	}
	defer f.Close()

	chunk := make([]byte, 32*1024)
	var written int64
	events := 0

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		n, err := body.Read(chunk)
		if n > 0 {
			if _, werr := f.Write(chunk[:n]); werr != nil {
				return nil, werr
			}
			written += int64(n)
			events++
			if events%8 == 0 && written != total {
				e.reportProgress(t, written, total)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	finalPath := inProgressPath + "_F"
	if err := os.Rename(inProgressPath, finalPath); err != nil {
		return nil, fmt.Errorf("cache: finalize cache file: %w", err)
	}

	return &Entry{TaskID: t.id, URL: t.url, InMemory: false, FilePath: finalPath, Size: written, Finalized: true}, nil
}

func (e *Engine) reportProgress(t *runningTask, now, total int64) {
	t.mu.Lock()
	cbs := append([]Callback(nil), t.callbacks...)
	t.mu.Unlock()
	for _, cb := range cbs {
		if cb.OnProgress != nil {
			cb.OnProgress(now, total)
		}
	}
}

func (e *Engine) succeed(t *runningTask, entry *Entry) {
	e.insert(entry)
	cbs := t.drainCallbacks()
	for _, cb := range cbs {
		cb := cb
		go func() {
			if cb.OnProgress != nil {
				cb.OnProgress(entry.Size, entry.Size)
			}
			if cb.OnSuccess != nil {
				cb.OnSuccess(entry, t.id)
			}
		}()
	}
}

func (e *Engine) fail(t *runningTask, err error) {
	cbs := t.drainCallbacks()
	for _, cb := range cbs {
		cb := cb
		go func() {
			if cb.OnFail != nil {
				cb.OnFail(err, err.Error(), t.id)
			}
		}()
	}
}

func (e *Engine) cancelOut(t *runningTask) {
	cbs := t.drainCallbacks()
	for _, cb := range cbs {
		cb := cb
		go func() {
			if cb.OnCancel != nil {
				cb.OnCancel()
			}
		}()
	}
}

// finishTask removes t from the running map only if no fresher successor
// (higher seq) has replaced it under the same id (§4.9 point 3).
func (e *Engine) finishTask(t *runningTask) {
	e.mu.Lock()
	if cur, ok := e.running[t.id]; ok && cur.seq == t.seq {
		delete(e.running, t.id)
	}
	e.mu.Unlock()
}

// insert stores entry in the appropriate LRU and evicts while either
// budget is exceeded.
func (e *Engine) insert(entry *Entry) {
	e.lruMu.Lock()
	defer e.lruMu.Unlock()

	if entry.InMemory {
		e.ram.Insert(entry.TaskID, entry)
		e.ramUsed += entry.Size
	} else {
		e.disk.Insert(entry.TaskID, entry)
		e.diskUsed += entry.Size
	}
	e.evictLocked()
}

func (e *Engine) evict() {
	e.lruMu.Lock()
	defer e.lruMu.Unlock()
	e.evictLocked()
}

func (e *Engine) evictLocked() {
	for e.ramUsed > e.ramBudget {
		_, entry, ok := e.ram.PopLRU()
		if !ok {
			break
		}
		e.ramUsed -= entry.Size
	}
	for e.diskUsed > e.diskBudget {
		_, entry, ok := e.disk.PopLRU()
		if !ok {
			break
		}
		e.diskUsed -= entry.Size
		_ = os.Remove(entry.FilePath)
	}
}
