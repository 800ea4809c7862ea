// Package notify is the contract-only notification-bar bridge (C11): the
// core never renders or owns a notification itself, it only calls a
// collaborator across this boundary. Grounded on internal/security's
// Scanner/NoOpScanner injectable-collaborator pattern (same shape: the
// real implementation is platform/UI-specific and dropped, the contract
// and a no-op stand-in are kept) and on the register/publish/group call
// contract of §4.11.
package notify

import (
	"log/slog"
	"sync"

	"project-tachyon/internal/taskstore"
)

// TaskInfo is what a bridge needs to decide how to present a task.
type TaskInfo struct {
	TaskID      uint32
	UID         uint64
	GroupID     string
	FileName    string
	BytesNow    int64
	BytesTotal  int64
	Description string
}

// FailureInfo carries the terminal failure a bridge reports exactly once.
type FailureInfo struct {
	TaskID uint32
	Reason taskstore.Reason
	Err    error
}

// Bridge is the contract a notification-bar collaborator implements.
// publish_progress fires at most every 500ms (§4.7's cadence); publish_success
// and publish_failure each fire exactly once per task lifecycle (§4.11).
type Bridge interface {
	// RegisterTask returns whether a progress indicator should be shown.
	RegisterTask(task TaskInfo) (gauge bool)
	// UnregisterTask drops task_id's notification. affectGroup also
	// detaches it from its group's aggregated notification.
	UnregisterTask(uid uint64, taskID uint32, affectGroup bool)

	PublishProgress(task TaskInfo)
	PublishSuccess(task TaskInfo)
	PublishFailure(info FailureInfo)

	CreateGroup(groupID string) error
	AttachGroup(groupID string, taskID uint32) error
	DeleteGroup(groupID string) error
}

// NoopBridge discards every call. Used when no notification collaborator is
// wired in (headless/server deployments).
type NoopBridge struct {
	logger *slog.Logger
}

func NewNoopBridge(logger *slog.Logger) *NoopBridge {
	return &NoopBridge{logger: logger}
}

func (b *NoopBridge) RegisterTask(task TaskInfo) bool { return false }
func (b *NoopBridge) UnregisterTask(uid uint64, taskID uint32, affectGroup bool) {}
func (b *NoopBridge) PublishProgress(task TaskInfo)                              {}
func (b *NoopBridge) PublishSuccess(task TaskInfo)                               {}
func (b *NoopBridge) PublishFailure(info FailureInfo)                            {}
func (b *NoopBridge) CreateGroup(groupID string) error                          { return nil }
func (b *NoopBridge) AttachGroup(groupID string, taskID uint32) error           { return nil }
func (b *NoopBridge) DeleteGroup(groupID string) error                          { return nil }

// call is one recorded Bridge invocation, kept for test assertions.
type call struct {
	name string
	args any
}

// LoggingBridge records every call it receives, for use in tests that
// assert register/publish/group sequencing without a real UI collaborator.
type LoggingBridge struct {
	mu      sync.Mutex
	calls   []call
	groups  map[string][]uint32
	gauge   bool
}

func NewLoggingBridge(gauge bool) *LoggingBridge {
	return &LoggingBridge{gauge: gauge, groups: make(map[string][]uint32)}
}

func (b *LoggingBridge) record(name string, args any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, call{name: name, args: args})
}

func (b *LoggingBridge) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, len(b.calls))
	for i, c := range b.calls {
		names[i] = c.name
	}
	return names
}

func (b *LoggingBridge) RegisterTask(task TaskInfo) bool {
	b.record("RegisterTask", task)
	return b.gauge
}

func (b *LoggingBridge) UnregisterTask(uid uint64, taskID uint32, affectGroup bool) {
	b.record("UnregisterTask", taskID)
}

func (b *LoggingBridge) PublishProgress(task TaskInfo) { b.record("PublishProgress", task) }
func (b *LoggingBridge) PublishSuccess(task TaskInfo)  { b.record("PublishSuccess", task) }
func (b *LoggingBridge) PublishFailure(info FailureInfo) {
	b.record("PublishFailure", info)
}

func (b *LoggingBridge) CreateGroup(groupID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, call{name: "CreateGroup", args: groupID})
	if _, ok := b.groups[groupID]; ok {
		return nil
	}
	b.groups[groupID] = nil
	return nil
}

func (b *LoggingBridge) AttachGroup(groupID string, taskID uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, call{name: "AttachGroup", args: taskID})
	b.groups[groupID] = append(b.groups[groupID], taskID)
	return nil
}

func (b *LoggingBridge) DeleteGroup(groupID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, call{name: "DeleteGroup", args: groupID})
	delete(b.groups, groupID)
	return nil
}

func (b *LoggingBridge) GroupMembers(groupID string) []uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]uint32(nil), b.groups[groupID]...)
}
