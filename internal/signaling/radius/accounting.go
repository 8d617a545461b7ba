package radius

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sebas/switchboard/internal/signaling/store"
)

// RecordingAccounting writes Connect/Disconnect through to a CDR row
// instead of a RADIUS Accounting-Request. It exists because no RADIUS
// client is available to this module; the CDR shape already carries every
// field a real radiusclient accounting packet would need, so persisting
// there is the direct substitute.
type RecordingAccounting struct {
	Repo         store.CDRRepository
	CallID       string
	CallerNumber string
	CallerName   string
	CalledNumber string
	Direction    string // "A" or "O", just for logging/metadata
	SourceIP     string
	DestIP       string

	cdrID string
}

// NewRecordingAccounting prepares (but does not yet persist) a CDR row for
// one leg of a call.
func NewRecordingAccounting(repo store.CDRRepository, callID, caller, callerName, called, direction, srcIP, dstIP string) *RecordingAccounting {
	return &RecordingAccounting{
		Repo:         repo,
		CallID:       callID,
		CallerNumber: caller,
		CallerName:   callerName,
		CalledNumber: called,
		Direction:    direction,
		SourceIP:     srcIP,
		DestIP:       dstIP,
		cdrID:        uuid.New().String(),
	}
}

// Connect persists the CDR's answer time on first connect.
func (r *RecordingAccounting) Connect(at time.Time) {
	cdr := &store.CDR{
		ID:            r.cdrID,
		CallID:        r.CallID,
		CallerNumber:  r.CallerNumber,
		CallerName:    r.CallerName,
		CalledNumber:  r.CalledNumber,
		Direction:     r.Direction,
		StartTime:     at,
		AnswerTime:    at,
		Disposition:   "answered",
		SourceIP:      r.SourceIP,
		DestinationIP: r.DestIP,
	}
	if err := r.Repo.Create(context.Background(), cdr); err != nil {
		slog.Warn("[Accounting] CDR create failed", "call_id", r.CallID, "error", err)
	}
}

// Disconnect stamps the end time and billable duration.
func (r *RecordingAccounting) Disconnect(at time.Time) {
	cdr, err := r.Repo.GetByCallID(context.Background(), r.CallID)
	if err != nil || cdr == nil {
		return
	}
	cdr.EndTime = at
	if !cdr.AnswerTime.IsZero() {
		cdr.BillDuration = int(at.Sub(cdr.AnswerTime).Seconds())
	}
	cdr.Duration = int(at.Sub(cdr.StartTime).Seconds())
	if err := r.Repo.Update(context.Background(), cdr); err != nil {
		slog.Warn("[Accounting] CDR update failed", "call_id", r.CallID, "error", err)
	}
}

var _ Accounting = (*RecordingAccounting)(nil)
