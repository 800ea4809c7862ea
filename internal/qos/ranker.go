// Package qos implements the deterministic admission ranker (C5),
// generalized from the teacher's internal/queue/scheduler.go SmartScheduler
// host-limit admission walk per the governing algorithm in §4.5.
package qos

import (
	"sort"

	"project-tachyon/internal/taskstore"
)

const accountDivisorDefault = 200000

// Direction is one admitted task's assigned speed.
type Direction struct {
	UID      uint64
	TaskID   uint32
	SpeedBPS int64
}

// Changes is the ranker's output: an ordered admission plan per action.
type Changes struct {
	Download []Direction
	Upload   []Direction
}

// ConcurrencyCaps bounds how many tasks of each action may run at once.
type ConcurrencyCaps struct {
	MaxDownload int
	MaxUpload   int
}

// Conditions is everything the ranker needs beyond the candidate rows:
// the foreground-ability set, the top (foreground) account, and the
// current network/account reachability used to filter admission (§4.5
// step 5).
type Conditions struct {
	ForegroundAbilities map[uint64]struct{}
	TopAccount          uint64
	AccountDivisor      uint64 // defaults to 200000 when zero

	NetworkOnline bool
	NetworkType   taskstore.NetworkRequirement
	Metered       bool
	Roaming       bool
}

func (c Conditions) divisor() uint64 {
	if c.AccountDivisor == 0 {
		return accountDivisorDefault
	}
	return c.AccountDivisor
}

// Plan runs the 5-step algorithm of §4.5 over rows (expected to already be
// filtered to state ∈ {Waiting, Running, Retrying, Initialized} by the
// caller's store query) and returns the admission plan. Plan is pure: it
// never touches the store or the running queue.
func Plan(rows []taskstore.Task, cond Conditions, caps ConcurrencyCaps) Changes {
	grouped := groupByUID(rows)
	uids := sortedUIDs(rows, cond)

	var changes Changes
	dlAdmitted, ulAdmitted := 0, 0

	for _, uid := range uids {
		tasks := grouped[uid]
		sort.SliceStable(tasks, func(i, j int) bool {
			if tasks[i].Mode != tasks[j].Mode {
				return tasks[i].Mode < tasks[j].Mode
			}
			return tasks[i].Priority < tasks[j].Priority
		})

		for _, task := range tasks {
			if !admissible(task, cond) {
				continue
			}
			switch task.Action {
			case taskstore.ActionDownload:
				if dlAdmitted >= caps.MaxDownload {
					continue
				}
				dlAdmitted++
				changes.Download = append(changes.Download, Direction{
					UID: task.UID, TaskID: task.TaskID, SpeedBPS: task.MinSpeed.BytesPerSec,
				})
			case taskstore.ActionUpload:
				if ulAdmitted >= caps.MaxUpload {
					continue
				}
				ulAdmitted++
				changes.Upload = append(changes.Upload, Direction{
					UID: task.UID, TaskID: task.TaskID, SpeedBPS: task.MinSpeed.BytesPerSec,
				})
			}
		}
	}
	return changes
}

func admissible(t taskstore.Task, cond Conditions) bool {
	// I5: network-requirement ≠ any implies current network must match.
	if t.NetworkRequirement != taskstore.NetworkAny {
		if !cond.NetworkOnline || t.NetworkRequirement != cond.NetworkType {
			return false
		}
	}
	if !cond.NetworkOnline && t.NetworkRequirement == taskstore.NetworkAny {
		return false
	}
	if cond.Metered && !t.MeteredAllowed {
		return false
	}
	if cond.Roaming && !t.RoamingAllowed {
		return false
	}
	// I6: foreground-mode tasks require uid in the foreground-abilities set.
	if t.Mode == taskstore.ModeForeground {
		if _, ok := cond.ForegroundAbilities[t.UID]; !ok {
			return false
		}
	}
	return true
}

func groupByUID(rows []taskstore.Task) map[uint64][]taskstore.Task {
	grouped := make(map[uint64][]taskstore.Task)
	for _, r := range rows {
		grouped[r.UID] = append(grouped[r.UID], r)
	}
	return grouped
}

// sortedUIDs orders uids by (a) uid/divisor == top_account first, (b) uid
// in foreground_abilities first, preserving insertion (first-seen) order
// on ties — matching §4.5 step 2's stable, deterministic ordering. The
// first-seen index is derived from rows in their original order, not by
// ranging over the grouped map, whose iteration order is randomized.
func sortedUIDs(rows []taskstore.Task, cond Conditions) []uint64 {
	order := make([]uint64, 0, len(rows))
	seen := make(map[uint64]int, len(rows))
	for _, r := range rows {
		if _, ok := seen[r.UID]; !ok {
			seen[r.UID] = len(order)
			order = append(order, r.UID)
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		ui, uj := order[i], order[j]
		ai := ui/cond.divisor() == cond.TopAccount
		aj := uj/cond.divisor() == cond.TopAccount
		if ai != aj {
			return ai
		}
		_, fi := cond.ForegroundAbilities[ui]
		_, fj := cond.ForegroundAbilities[uj]
		if fi != fj {
			return fi
		}
		return seen[ui] < seen[uj]
	})
	return order
}
