// Package taskstore is the durable, crash-consistent table of tasks (C2):
// config, runtime progress, reason codes, and the bulk state-sync
// statements that state-sync (C8) uses to re-reason many tasks at once.
package taskstore

// State is the canonical task lifecycle value, persisted verbatim.
type State int

const (
	Initialized State = 0x00
	Waiting     State = 0x10
	Running     State = 0x20
	Retrying    State = 0x21
	Paused      State = 0x30
	Stopped     State = 0x31
	Completed   State = 0x40
	Failed      State = 0x41
	Removed     State = 0x50
)

func (s State) String() string {
	switch s {
	case Initialized:
		return "initialized"
	case Waiting:
		return "waiting"
	case Running:
		return "running"
	case Retrying:
		return "retrying"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// Terminal reports whether state is one from which no further transition
// is permitted except explicit removal (I4).
func (s State) Terminal() bool {
	return s == Completed || s == Failed || s == Removed
}

// Reason is the canonical reason code attached to a state.
type Reason string

const (
	ReasonOK                     Reason = "ok"
	ReasonSurvivalTimeout        Reason = "survival-timeout"
	ReasonStoppedByNewForeground Reason = "stopped-by-new-foreground"
	ReasonMeetLimits             Reason = "meet-limits"
	ReasonUserOp                 Reason = "user-op"
	ReasonAppBackground           Reason = "app-background"
	ReasonNetworkOffline         Reason = "network-offline"
	ReasonUnsupportedNetwork     Reason = "unsupported-network"
	ReasonBuildClientFail        Reason = "build-client-fail"
	ReasonBuildRequestFail       Reason = "build-request-fail"
	ReasonFilesizeFail           Reason = "filesize-fail"
	ReasonTimeout                Reason = "timeout"
	ReasonConnectError           Reason = "connect-error"
	ReasonRequestError           Reason = "request-error"
	ReasonUploadFail             Reason = "upload-fail"
	ReasonRedirectError          Reason = "redirect-error"
	ReasonProtocolError          Reason = "protocol-error"
	ReasonIOError                Reason = "io-error"
	ReasonUnsupportedRange       Reason = "unsupported-range"
	ReasonAccountStopped         Reason = "account-stopped"
	ReasonNetworkChanged         Reason = "network-changed"
	ReasonDNS                    Reason = "dns"
	ReasonTCP                    Reason = "tcp"
	ReasonSSL                    Reason = "ssl"
	ReasonInsufficientSpace      Reason = "insufficient-space"
	ReasonLowSpeed               Reason = "low-speed"

	// Composite reasons: promoted when more than one axis applies at once.
	ReasonNetworkApp        Reason = "network-app"
	ReasonNetworkAccount    Reason = "network-account"
	ReasonAppAccount        Reason = "app-account"
	ReasonNetworkAppAccount Reason = "network-app-account"
)

// Action is what a task does.
type Action string

const (
	ActionDownload Action = "download"
	ActionUpload   Action = "upload"
)

// Mode is the foreground/background scheduling class. Foreground sorts
// before Background per the ranker's tie-break (§4.5 step 3).
type Mode int

const (
	ModeForeground Mode = 0
	ModeBackground Mode = 1
)

// NetworkRequirement constrains which network types a task may run on.
type NetworkRequirement string

const (
	NetworkAny      NetworkRequirement = "any"
	NetworkWifi     NetworkRequirement = "wifi"
	NetworkCellular NetworkRequirement = "cellular"
)

// MinSpeed is the sustained-floor watchdog configuration.
type MinSpeed struct {
	BytesPerSec int64
	DurationSec int64
}

// Progress is the runtime byte-accounting for a task, covering I3: the sum
// of per-file Processed must equal TotalProcessed at every observable
// instant. The worker is responsible for maintaining that invariant under
// its progress mutex; the store only persists whatever it is given.
type Progress struct {
	Processed      []int64 `json:"processed"`
	Total          []int64 `json:"total"`
	Index          int     `json:"index"`
	TotalProcessed int64   `json:"total_processed"`

	// PartsBitfield is the current file's completed-chunk bitfield for
	// crash-resumable parallel part fetches, packed via
	// worker.CompletedPartsToBitfield. Empty for single-stream transfers.
	PartsBitfield []byte `json:"parts_bitfield,omitempty"`
	PartSize      int64  `json:"part_size,omitempty"`
}

// Task is the full row: config (immutable after create) plus runtime
// (mutable) fields, matching §3 of the governing specification.
type Task struct {
	TaskID uint32
	UID    uint64

	// Config
	Action            Action
	Mode              Mode
	URL               string
	Method            string
	Headers           map[string]string
	Cookies           string
	SavePath          string
	Version           string
	RetryAllowed      bool
	RedirectAllowed   bool
	NetworkRequirement NetworkRequirement
	MeteredAllowed    bool
	RoamingAllowed    bool
	Priority          int
	BeginByte         int64
	EndByte           int64
	PreciseSize       bool
	GaugeVisible      bool
	MinSpeed          MinSpeed
	Bundle            string
	BundleType        int
	CertPaths         []string
	PinnedPubKeys     []string

	// Runtime
	State    State
	Reason   Reason
	Tries    int
	Progress Progress

	CTime         int64
	MTime         int64
	LastStartTime int64
	TaskTimeSec   int64

	QueueOrder int
}

// Domain extracts the task's URL host for per-domain concurrency limits,
// matching the teacher's internal/queue/scheduler.go extractDomain idiom.
func (t Task) Domain() string {
	return domainOf(t.URL)
}
