package taskstore

import "fmt"

// BulkStatement is one of the eight canonical cross-cutting transitions
// state-sync (C8) applies in response to network/account/foreground
// events, grounded on original_source's
// services/src/manage/scheduler/state/sql.rs. Each statement is a pure
// function of (current_state, current_reason) plus externally bound
// parameters, applied as a single SQL UPDATE ... CASE inside one
// transaction (§4.2) so observers never see a half-applied transition.
type BulkStatement struct {
	sql  string
	args []any
}

// BulkUpdate applies stmt atomically.
func (s *Store) BulkUpdate(stmt BulkStatement) error {
	return s.DB.Exec(stmt.sql, stmt.args...).Error
}

const (
	reasonMeetLimits     = string(ReasonMeetLimits)
	reasonNetOffline     = string(ReasonNetworkOffline)
	reasonUnsupportedNet = string(ReasonUnsupportedNetwork)
	reasonAcctStopped    = string(ReasonAccountStopped)
	reasonNetAcct        = string(ReasonNetworkAccount)
	reasonAppBG          = string(ReasonAppBackground)
	reasonNetApp         = string(ReasonNetworkApp)
	reasonAppAcct        = string(ReasonAppAccount)
	reasonNetAppAcct     = string(ReasonNetworkAppAccount)
	reasonNetChanged     = string(ReasonNetworkChanged)
	reasonUserOp         = string(ReasonUserOp)
)

// AppUnavailable is statement 1: running/retrying foreground downloads of
// uid demote to Waiting; uploads fail outright; already-Waiting rows have
// their reason promoted along the app axis.
func AppUnavailable(uid uint64) BulkStatement {
	return BulkStatement{
		sql: `UPDATE request_task SET
			state = CASE
				WHEN action = 'download' AND mode = 0 AND state IN (?, ?) THEN ?
				WHEN action = 'upload' AND mode = 0 AND state IN (?, ?) THEN ?
				ELSE state
			END,
			reason = CASE
				WHEN action = 'download' AND mode = 0 AND state IN (?, ?) THEN ?
				WHEN action = 'upload' AND mode = 0 AND state IN (?, ?) THEN ?
				WHEN state = ? AND reason = ? THEN ?
				WHEN state = ? AND reason = ? THEN ?
				WHEN state = ? AND reason = ? THEN ?
				WHEN state = ? AND reason = ? THEN ?
				ELSE reason
			END
			WHERE uid = ?`,
		args: []any{
			int(Running), int(Retrying), int(Waiting),
			int(Running), int(Retrying), int(Failed),
			int(Running), int(Retrying), reasonAppBG,
			int(Running), int(Retrying), reasonAppBG,
			int(Waiting), reasonMeetLimits, reasonAppBG,
			int(Waiting), reasonNetOffline, reasonNetApp,
			int(Waiting), reasonAcctStopped, reasonAppAcct,
			int(Waiting), reasonNetAcct, reasonNetAppAcct,
			uid,
		},
	}
}

// AppAvailable is statement 2: the inverse of AppUnavailable for Waiting
// rows — demotes the app axis back to its pre-background reason.
func AppAvailable(uid uint64) BulkStatement {
	return BulkStatement{
		sql: `UPDATE request_task SET
			reason = CASE
				WHEN state = ? AND reason = ? THEN ?
				WHEN state = ? AND reason = ? THEN ?
				WHEN state = ? AND reason = ? THEN ?
				WHEN state = ? AND reason = ? THEN ?
				ELSE reason
			END
			WHERE uid = ? AND state = ?`,
		args: []any{
			int(Waiting), reasonAppBG, reasonMeetLimits,
			int(Waiting), reasonNetApp, reasonNetOffline,
			int(Waiting), reasonAppAcct, reasonAcctStopped,
			int(Waiting), reasonNetAppAcct, reasonNetAcct,
			uid, int(Waiting),
		},
	}
}

// AccountUnavailable is statement 3: rows whose uid is in inactiveUIDs get
// the same promotion pattern as AppUnavailable, but along the account
// axis. inactiveUIDs is matched against the uid column directly; no
// uid-to-account divisor is applied here.
func AccountUnavailable(inactiveUIDs []uint64) BulkStatement {
	if len(inactiveUIDs) == 0 {
		return BulkStatement{sql: "SELECT 1 WHERE 0"}
	}
	placeholders := placeholderList(len(inactiveUIDs))
	args := []any{
		int(Running), int(Retrying), int(Waiting),
		int(Running), int(Retrying), int(Failed),
		int(Running), int(Retrying), reasonAcctStopped,
		int(Running), int(Retrying), reasonAcctStopped,
		int(Waiting), reasonMeetLimits, reasonAcctStopped,
		int(Waiting), reasonNetOffline, reasonNetAcct,
		int(Waiting), reasonAppBG, reasonAppAcct,
		int(Waiting), reasonNetApp, reasonNetAppAcct,
	}
	for _, u := range inactiveUIDs {
		args = append(args, u)
	}
	return BulkStatement{
		sql: fmt.Sprintf(`UPDATE request_task SET
			state = CASE
				WHEN action = 'download' AND state IN (?, ?) THEN ?
				WHEN action = 'upload' AND state IN (?, ?) THEN ?
				ELSE state
			END,
			reason = CASE
				WHEN action = 'download' AND state IN (?, ?) THEN ?
				WHEN action = 'upload' AND state IN (?, ?) THEN ?
				WHEN state = ? AND reason = ? THEN ?
				WHEN state = ? AND reason = ? THEN ?
				WHEN state = ? AND reason = ? THEN ?
				WHEN state = ? AND reason = ? THEN ?
				ELSE reason
			END
			WHERE uid IN (%s)`, placeholders),
		args: args,
	}
}

// AccountAvailable is statement 4: inverse of AccountUnavailable for
// Waiting rows.
func AccountAvailable(activeUIDs []uint64) BulkStatement {
	if len(activeUIDs) == 0 {
		return BulkStatement{sql: "SELECT 1 WHERE 0"}
	}
	placeholders := placeholderList(len(activeUIDs))
	args := []any{
		int(Waiting), reasonAcctStopped, reasonMeetLimits,
		int(Waiting), reasonNetAcct, reasonNetOffline,
		int(Waiting), reasonAppAcct, reasonAppBG,
		int(Waiting), reasonNetAppAcct, reasonNetApp,
	}
	for _, u := range activeUIDs {
		args = append(args, u)
	}
	return BulkStatement{
		sql: fmt.Sprintf(`UPDATE request_task SET
			reason = CASE
				WHEN state = ? AND reason = ? THEN ?
				WHEN state = ? AND reason = ? THEN ?
				WHEN state = ? AND reason = ? THEN ?
				WHEN state = ? AND reason = ? THEN ?
				ELSE reason
			END
			WHERE uid IN (%s) AND state = ?`, placeholders),
		args: append(args, int(Waiting)),
	}
}

// NetworkOffline is statement 5: every running row whose category is
// retryable-background becomes Waiting with network-offline; others fail.
func NetworkOffline() BulkStatement {
	return BulkStatement{
		sql: `UPDATE request_task SET
			state = CASE
				WHEN mode = 1 AND retry_allowed = 1 AND state IN (?, ?) THEN ?
				WHEN state IN (?, ?) THEN ?
				ELSE state
			END,
			reason = CASE
				WHEN state IN (?, ?) THEN ?
				ELSE reason
			END
			WHERE state IN (?, ?)`,
		args: []any{
			int(Running), int(Retrying), int(Waiting),
			int(Running), int(Retrying), int(Failed),
			int(Running), int(Retrying), reasonNetOffline,
			int(Running), int(Retrying),
		},
	}
}

// NetworkUnavailable is statement 6: like NetworkOffline, restricted to
// rows whose network/metered/roaming requirement is violated by the
// current info.
func NetworkUnavailable(networkType string, metered, roaming bool) BulkStatement {
	return BulkStatement{
		sql: `UPDATE request_task SET
			state = CASE
				WHEN mode = 1 AND retry_allowed = 1 AND state IN (?, ?)
					AND (network_requirement NOT IN ('any', ?)
						OR (metered_allowed = 0 AND ?)
						OR (roaming_allowed = 0 AND ?))
					THEN ?
				ELSE state
			END,
			reason = CASE
				WHEN state IN (?, ?)
					AND (network_requirement NOT IN ('any', ?)
						OR (metered_allowed = 0 AND ?)
						OR (roaming_allowed = 0 AND ?))
					THEN ?
				ELSE reason
			END
			WHERE state IN (?, ?)`,
		args: []any{
			int(Running), int(Retrying), networkType, metered, roaming, int(Waiting),
			int(Running), int(Retrying), networkType, metered, roaming, reasonUnsupportedNet,
			int(Running), int(Retrying),
		},
	}
}

// NetworkAvailable is statement 7: demotes network reasons back to their
// pre-offline axis for Waiting rows.
func NetworkAvailable() BulkStatement {
	return BulkStatement{
		sql: `UPDATE request_task SET
			reason = CASE
				WHEN state = ? AND reason IN (?, ?) THEN ?
				WHEN state = ? AND reason = ? THEN ?
				WHEN state = ? AND reason = ? THEN ?
				ELSE reason
			END
			WHERE state = ?`,
		args: []any{
			int(Waiting), reasonNetOffline, reasonUnsupportedNet, reasonMeetLimits,
			int(Waiting), reasonNetApp, reasonAppBG,
			int(Waiting), reasonNetAcct, reasonAcctStopped,
			int(Waiting),
		},
	}
}

// AppUninstall is statement 8a: deletes (soft) every row for uid.
func AppUninstall(uid uint64) BulkStatement {
	return BulkStatement{
		sql:  `UPDATE request_task SET deleted_at = ? WHERE uid = ? AND deleted_at IS NULL`,
		args: []any{nowUnix(), uid},
	}
}

// SpecialTerminate is statement 8b: fail-and-freeze every row for uid
// rather than deleting it, used for account suspensions short of
// uninstall.
func SpecialTerminate(uid uint64) BulkStatement {
	return BulkStatement{
		sql:  `UPDATE request_task SET state = ?, reason = ? WHERE uid = ? AND state NOT IN (?, ?, ?)`,
		args: []any{int(Failed), reasonAcctStopped, uid, int(Completed), int(Failed), int(Removed)},
	}
}

func placeholderList(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			s += ","
		}
		s += "?"
	}
	return s
}
