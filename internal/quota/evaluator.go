// SPDX-License-Identifier: MIT

// Package quota decides whether a user action is admitted under the
// plan limits of their subscription tier. The evaluator is a pure
// function over (user, plan limits, action); callers own persistence
// of any rollover it instructs.
package quota

import (
	"time"

	"github.com/coachscribe/coachscribe/internal/domain/model"
	"github.com/coachscribe/coachscribe/internal/metrics"
)

// Action enumerates the admission-gated operations.
type Action string

const (
	ActionCreateSession Action = "create_session"
	ActionTranscribe    Action = "transcribe"
	ActionCheckMinutes  Action = "check_minutes"
	ActionUploadFile    Action = "upload_file"
	ActionExport        Action = "export_transcript"
)

// Unlimited is the sentinel for plans without a numeric cap.
const Unlimited = -1

// Decision is the outcome of one admission check, including the limit
// snapshot returned to callers on denial.
type Decision struct {
	Admitted bool
	Reason   model.ReasonCode

	// Limit snapshot for the caller's error payload.
	Limit     int
	Used      int
	Requested int

	// ResetCounters instructs the caller to zero the user's monthly
	// counters for MonthStart atomically before acting on the
	// decision. Set on the first admission after a month boundary.
	ResetCounters bool
	MonthStart    time.Time
}

func admit() Decision {
	return Decision{Admitted: true}
}

// Limits is the read surface the evaluator needs from plan config.
type Limits interface {
	Limits(plan model.Plan) model.PlanLimits
}

// Evaluator computes admission decisions.
type Evaluator struct {
	Plans Limits
	Now   func() time.Time // defaults to time.Now
}

func NewEvaluator(plans Limits) *Evaluator {
	return &Evaluator{Plans: plans, Now: time.Now}
}

func (e *Evaluator) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Evaluate admits or rejects an action. The numeric argument carries
// the requested minutes (check_minutes) or file size in MB
// (upload_file); it is ignored otherwise.
func (e *Evaluator) Evaluate(u *model.User, action Action, requested float64) Decision {
	limits := e.Plans.Limits(u.Plan)
	d := e.evaluate(u, limits, action, requested)

	outcome := "deny"
	if d.Admitted {
		outcome = "admit"
	}
	metrics.IncQuotaDecision(string(action), outcome)
	return d
}

func (e *Evaluator) evaluate(u *model.User, limits model.PlanLimits, action Action, requested float64) Decision {
	monthStart := model.MonthStartUTC(e.now())
	rolledOver := u.CurrentMonthStart.Before(monthStart)

	// Counters as seen through the current window. A stale month reads
	// as zero; the caller resets the row before proceeding.
	usedMinutes := u.UsageMinutes
	usedExports := u.ExportCount
	if rolledOver {
		usedMinutes = 0
		usedExports = 0
	}

	finish := func(d Decision) Decision {
		if d.Admitted && rolledOver {
			d.ResetCounters = true
			d.MonthStart = monthStart
		}
		return d
	}

	switch action {
	case ActionCreateSession, ActionTranscribe:
		// Phase 2 removed the numeric session/transcription gates.
		return finish(admit())

	case ActionCheckMinutes:
		req := int(requested)
		if limits.MaxMinutesPerMonth == Unlimited {
			return finish(admit())
		}
		if usedMinutes+req <= limits.MaxMinutesPerMonth {
			return finish(admit())
		}
		return Decision{
			Reason:    model.RQuotaExceeded,
			Limit:     limits.MaxMinutesPerMonth,
			Used:      usedMinutes,
			Requested: req,
		}

	case ActionUploadFile:
		if limits.MaxFileSizeMB <= 0 || requested <= limits.MaxFileSizeMB {
			return finish(admit())
		}
		return Decision{
			Reason:    model.RFileTooLarge,
			Limit:     int(limits.MaxFileSizeMB),
			Requested: int(requested),
		}

	case ActionExport:
		if limits.MaxExportsPerMonth == Unlimited {
			return finish(admit())
		}
		if usedExports < limits.MaxExportsPerMonth {
			return finish(admit())
		}
		return Decision{
			Reason: model.RQuotaExceeded,
			Limit:  limits.MaxExportsPerMonth,
			Used:   usedExports,
		}

	default:
		// Unknown actions are non-billable checks; fail open.
		return finish(admit())
	}
}
