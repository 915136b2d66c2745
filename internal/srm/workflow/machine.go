// Package workflow implements the evaluation state machine:
//
//	draft -> submitted -> under_review -> completed (accept | reject)
//	                       under_review -> draft (returned with a reason code)
//
// Transitions are pure: they mutate the record in memory and return the
// events to publish. Persistence and publishing belong to the caller.
package workflow

import (
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-qualify/internal/srm/entity"
	"github.com/bitfantasy/nimo-qualify/internal/srm/scoring"
)

// Machine applies workflow transitions using an injected clock.
type Machine struct {
	now func() time.Time
}

func NewMachine(now func() time.Time) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{now: now}
}

// Now returns the current time normalized for storage (UTC, microseconds).
func (m *Machine) Now() time.Time {
	return m.now().UTC().Truncate(time.Microsecond)
}

// touch stamps lastModified, keeping it strictly increasing so that every
// mutation invalidates previously read timestamps.
func (m *Machine) touch(rec *entity.Evaluation) time.Time {
	now := m.Now()
	next := now
	if !next.After(rec.LastModified) {
		next = rec.LastModified.Add(time.Microsecond)
	}
	rec.LastModified = next
	return now
}

// CheckFresh fails with ErrStaleWrite when the record changed after the
// caller read it.
func CheckFresh(rec *entity.Evaluation, readAt time.Time) error {
	if !rec.LastModified.Equal(readAt) {
		return fmt.Errorf("%w: read %s, current %s", ErrStaleWrite,
			readAt.UTC().Format(time.RFC3339Nano), rec.LastModified.UTC().Format(time.RFC3339Nano))
	}
	return nil
}

// SaveDraft replaces the category inputs of a draft and recomputes the human score.
func (m *Machine) SaveDraft(rec *entity.Evaluation, cat *scoring.Catalog, actorID string, inputs scoring.Inputs) (Transition, error) {
	if actorID != rec.EvaluatorID {
		return Transition{}, ErrNotOwner
	}
	if rec.IsFrozen() {
		return Transition{}, fmt.Errorf("%w: status %s", ErrRecordFrozen, rec.Status)
	}
	if err := scoring.ValidateInputs(inputs, cat); err != nil {
		return Transition{}, err
	}

	rec.CategoryInputs = inputs.Clone()
	rec.HumanScore = nil
	if composite, err := scoring.CompositeScore(rec.CategoryInputs, cat); err == nil {
		rec.HumanScore = &composite
	}
	m.touch(rec)
	return Transition{}, nil
}

// Submit freezes a complete draft. Ineligible scores need override.
func (m *Machine) Submit(rec *entity.Evaluation, cat *scoring.Catalog, actorID string, override bool) (Transition, error) {
	if rec.Status != entity.EvalStatusDraft {
		return Transition{}, fmt.Errorf("%w: submit from %s", ErrInvalidTransition, rec.Status)
	}
	if actorID != rec.EvaluatorID {
		return Transition{}, ErrNotOwner
	}
	if err := scoring.ValidateInputs(rec.CategoryInputs, cat); err != nil {
		return Transition{}, err
	}
	if err := scoring.RequireComplete(rec.CategoryInputs, cat); err != nil {
		return Transition{}, err
	}
	composite, err := scoring.CompositeScore(rec.CategoryInputs, cat)
	if err != nil {
		return Transition{}, err
	}
	decision := cat.Policy.Decide(composite)
	if err := cat.Policy.CheckSubmission(composite, override); err != nil {
		return Transition{}, err
	}

	now := m.touch(rec)
	rec.Status = entity.EvalStatusSubmitted
	rec.SubmissionDate = &now
	rec.HumanScore = &composite
	rec.SubmitOverride = !decision.EligibleForSubmission
	rec.CatalogID = cat.ID
	rec.CatalogVersion = cat.Version
	rec.CatalogSnapshot = cat.Clone()

	return Transition{Events: []Event{newEvent(EventSubmitted, rec.ID, now, map[string]interface{}{
		"tender_id":       rec.TenderID,
		"supplier_id":     rec.SupplierID,
		"evaluator_id":    rec.EvaluatorID,
		"composite_score": composite,
		"band":            decision.Band,
		"override":        rec.SubmitOverride,
		"catalog_version": rec.CatalogVersion,
	})}}, nil
}

// StartReview moves a submitted record under admin review.
func (m *Machine) StartReview(rec *entity.Evaluation, reviewerID string) (Transition, error) {
	if rec.Status != entity.EvalStatusSubmitted {
		return Transition{}, fmt.Errorf("%w: review from %s", ErrInvalidTransition, rec.Status)
	}
	rec.Status = entity.EvalStatusUnderReview
	rec.ReviewerID = reviewerID
	m.touch(rec)
	return Transition{}, nil
}

// ReconcileWithAI stores the externally computed AI score next to the human
// score. A divergence beyond the policy tolerance gates finalization behind a
// secondary review.
func (m *Machine) ReconcileWithAI(rec *entity.Evaluation, cat *scoring.Catalog, aiScore, confidence float64) (Transition, error) {
	if rec.Status != entity.EvalStatusSubmitted && rec.Status != entity.EvalStatusUnderReview {
		return Transition{}, fmt.Errorf("%w: ai reconcile from %s", ErrInvalidTransition, rec.Status)
	}
	if err := scoring.ValidateAIScore(aiScore, confidence); err != nil {
		return Transition{}, err
	}
	if rec.HumanScore == nil {
		return Transition{}, fmt.Errorf("%w: no human score", ErrInvalidTransition)
	}

	human := *rec.HumanScore
	now := m.touch(rec)
	rec.AIScore = &aiScore
	rec.AIConfidence = &confidence

	if !cat.Policy.Diverges(aiScore, human) {
		return Transition{}, nil
	}
	pending := rec.DivergenceFlagged && rec.SecondaryReviewedAt == nil
	rec.DivergenceFlagged = true
	rec.SecondaryReviewerID = ""
	rec.SecondaryReviewedAt = nil
	rec.SecondaryReviewNotes = ""
	if pending {
		return Transition{}, nil
	}
	return Transition{Events: []Event{newEvent(EventDivergenceFlagged, rec.ID, now, map[string]interface{}{
		"supplier_id": rec.SupplierID,
		"human_score": human,
		"ai_score":    aiScore,
		"confidence":  confidence,
		"divergence":  scoring.Divergence(aiScore, human),
		"threshold":   cat.Policy.DivergenceThreshold,
	})}}, nil
}

// CompleteSecondaryReview clears the divergence gate.
func (m *Machine) CompleteSecondaryReview(rec *entity.Evaluation, reviewerID, notes string) (Transition, error) {
	if rec.Status != entity.EvalStatusSubmitted && rec.Status != entity.EvalStatusUnderReview {
		return Transition{}, fmt.Errorf("%w: secondary review from %s", ErrInvalidTransition, rec.Status)
	}
	if !rec.DivergenceFlagged {
		return Transition{}, ErrNoDivergence
	}
	if reviewerID == rec.EvaluatorID {
		return Transition{}, ErrSelfReview
	}
	now := m.touch(rec)
	rec.SecondaryReviewerID = reviewerID
	rec.SecondaryReviewedAt = &now
	rec.SecondaryReviewNotes = notes
	return Transition{}, nil
}

// Return sends a record under review back to the evaluator as a draft.
func (m *Machine) Return(rec *entity.Evaluation, reasonCode, notes string) (Transition, error) {
	if rec.Status != entity.EvalStatusUnderReview {
		return Transition{}, fmt.Errorf("%w: return from %s", ErrInvalidTransition, rec.Status)
	}
	if reasonCode == "" {
		return Transition{}, ErrMissingReason
	}

	now := m.touch(rec)
	rec.Status = entity.EvalStatusDraft
	rec.ReturnReason = reasonCode
	rec.ReturnNotes = notes
	rec.SubmissionDate = nil
	rec.SubmitOverride = false
	rec.CatalogSnapshot = nil
	rec.AIScore = nil
	rec.AIConfidence = nil
	rec.DivergenceFlagged = false
	rec.SecondaryReviewerID = ""
	rec.SecondaryReviewedAt = nil
	rec.SecondaryReviewNotes = ""

	return Transition{Events: []Event{newEvent(EventReturned, rec.ID, now, map[string]interface{}{
		"supplier_id":  rec.SupplierID,
		"evaluator_id": rec.EvaluatorID,
		"reason_code":  reasonCode,
		"notes":        notes,
	})}}, nil
}

// Finalize records the terminal decision. Repeating the same decision is a
// no-op; a different decision fails with ErrAlreadyFinalized.
func (m *Machine) Finalize(rec *entity.Evaluation, cat *scoring.Catalog, decision, notes string) (Transition, error) {
	if decision != entity.DecisionAccept && decision != entity.DecisionReject {
		return Transition{}, fmt.Errorf("%w: %q", ErrInvalidDecision, decision)
	}
	if rec.Status == entity.EvalStatusCompleted {
		if rec.Decision == decision {
			return Transition{Noop: true}, nil
		}
		return Transition{}, fmt.Errorf("%w: %s", ErrAlreadyFinalized, rec.Decision)
	}
	if rec.Status != entity.EvalStatusUnderReview {
		return Transition{}, fmt.Errorf("%w: finalize from %s", ErrInvalidTransition, rec.Status)
	}
	if rec.DivergenceFlagged && rec.SecondaryReviewedAt == nil {
		return Transition{}, ErrSecondaryReviewRequired
	}

	now := m.touch(rec)
	rec.Status = entity.EvalStatusCompleted
	rec.Decision = decision
	rec.DecisionNotes = notes
	rec.CompletedAt = &now
	rec.OverdueSince = nil

	payload := map[string]interface{}{
		"supplier_id":     rec.SupplierID,
		"tender_id":       rec.TenderID,
		"decision":        decision,
		"catalog_version": rec.CatalogVersion,
	}
	if rec.HumanScore != nil {
		payload["human_score"] = *rec.HumanScore
		payload["band"] = cat.Policy.Classify(*rec.HumanScore)
	}
	if rec.AIScore != nil {
		payload["ai_score"] = *rec.AIScore
	}
	return Transition{Events: []Event{newEvent(EventFinalized, rec.ID, now, payload)}}, nil
}

// MarkOverdue sets the forward-only overdue flag the first time a record is
// seen past its deadline. It does not touch lastModified so evaluator writes
// are not invalidated by the sweep.
func (m *Machine) MarkOverdue(rec *entity.Evaluation) Transition {
	now := m.Now()
	if rec.OverdueSince != nil || !IsOverdue(rec, now) {
		return Transition{Noop: true}
	}
	rec.OverdueSince = &now
	return Transition{Events: []Event{newEvent(EventOverdueDetected, rec.ID, now, map[string]interface{}{
		"evaluator_id":        rec.EvaluatorID,
		"supplier_id":         rec.SupplierID,
		"status":              rec.Status,
		"evaluation_deadline": rec.EvaluationDeadline,
		"days_overdue":        DaysOverdue(rec, now),
	})}}
}
