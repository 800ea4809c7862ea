package eventbus

import "project-tachyon/internal/taskstore"

// Fault is the collapsed category SubscribeType::FaultOccur observers
// receive, per the governing spec's Open Question on Faults-enum
// collapsing: many Reason values fold onto one Fault, with FaultOthers as
// the catch-all for any non-enumerated cause.
type Fault int

const (
	FaultOthers Fault = iota
	FaultNetwork
	FaultAccount
	FaultApp
	FaultIO
	FaultProtocol
	FaultTimeout
	FaultSpace
)

// FaultFor collapses a Reason into its observer-facing Fault.
func FaultFor(r taskstore.Reason) Fault {
	switch r {
	case taskstore.ReasonNetworkOffline, taskstore.ReasonUnsupportedNetwork,
		taskstore.ReasonNetworkChanged, taskstore.ReasonDNS, taskstore.ReasonTCP,
		taskstore.ReasonSSL, taskstore.ReasonNetworkApp, taskstore.ReasonNetworkAccount,
		taskstore.ReasonNetworkAppAccount:
		return FaultNetwork
	case taskstore.ReasonAccountStopped, taskstore.ReasonAppAccount:
		return FaultAccount
	case taskstore.ReasonAppBackground, taskstore.ReasonStoppedByNewForeground:
		return FaultApp
	case taskstore.ReasonIOError, taskstore.ReasonFilesizeFail:
		return FaultIO
	case taskstore.ReasonProtocolError, taskstore.ReasonRedirectError,
		taskstore.ReasonUnsupportedRange, taskstore.ReasonBuildRequestFail,
		taskstore.ReasonBuildClientFail, taskstore.ReasonRequestError,
		taskstore.ReasonUploadFail:
		return FaultProtocol
	case taskstore.ReasonTimeout, taskstore.ReasonConnectError, taskstore.ReasonLowSpeed:
		return FaultTimeout
	case taskstore.ReasonInsufficientSpace:
		return FaultSpace
	default:
		return FaultOthers
	}
}
