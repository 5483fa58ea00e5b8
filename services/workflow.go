package services

import (
	"fmt"

	"pitchflow-api/models"
)

// workflowPolicy captures per-workflow behavior as an explicit, closed set of
// variants. Every branch on workflow type inside the engine goes through a
// policy method instead of scattered string comparisons.
type workflowPolicy interface {
	// Type returns the workflow type string the policy serves.
	Type() string
	// InitialPitchStatus is the status a freshly created pitch starts in.
	InitialPitchStatus() string
	// RequiresInitialApproval reports whether the owner must approve the
	// pitch before work starts.
	RequiresInitialApproval() bool
	// UsesReviewCycle reports whether the pitch moves through the
	// submit / approve / request-revisions snapshot cycle.
	UsesReviewCycle() bool
	// UsesContestJudging reports whether outcomes are decided by placements
	// rather than the review cycle.
	UsesContestJudging() bool
	// ClientReviews reports whether the reviewing party is an external
	// client acting through the portal rather than the project owner.
	ClientReviews() bool
}

type standardPolicy struct{}

func (standardPolicy) Type() string                  { return models.WorkflowTypeStandard }
func (standardPolicy) InitialPitchStatus() string    { return models.PitchStatusPending }
func (standardPolicy) RequiresInitialApproval() bool { return true }
func (standardPolicy) UsesReviewCycle() bool         { return true }
func (standardPolicy) UsesContestJudging() bool      { return false }
func (standardPolicy) ClientReviews() bool           { return false }

type contestPolicy struct{}

func (contestPolicy) Type() string                  { return models.WorkflowTypeContest }
func (contestPolicy) InitialPitchStatus() string    { return models.PitchStatusContestEntry }
func (contestPolicy) RequiresInitialApproval() bool { return false }
func (contestPolicy) UsesReviewCycle() bool         { return false }
func (contestPolicy) UsesContestJudging() bool      { return true }
func (contestPolicy) ClientReviews() bool           { return false }

type directHirePolicy struct{}

func (directHirePolicy) Type() string                  { return models.WorkflowTypeDirectHire }
func (directHirePolicy) InitialPitchStatus() string    { return models.PitchStatusInProgress }
func (directHirePolicy) RequiresInitialApproval() bool { return false }
func (directHirePolicy) UsesReviewCycle() bool         { return true }
func (directHirePolicy) UsesContestJudging() bool      { return false }
func (directHirePolicy) ClientReviews() bool           { return false }

type clientManagementPolicy struct{}

func (clientManagementPolicy) Type() string                  { return models.WorkflowTypeClientManagement }
func (clientManagementPolicy) InitialPitchStatus() string    { return models.PitchStatusInProgress }
func (clientManagementPolicy) RequiresInitialApproval() bool { return false }
func (clientManagementPolicy) UsesReviewCycle() bool         { return true }
func (clientManagementPolicy) UsesContestJudging() bool      { return false }
func (clientManagementPolicy) ClientReviews() bool           { return true }

// policyFor resolves the policy for a workflow type. Unknown types are a
// programming error surfaced as validation.
func policyFor(workflowType string) (workflowPolicy, error) {
	switch workflowType {
	case models.WorkflowTypeStandard:
		return standardPolicy{}, nil
	case models.WorkflowTypeContest:
		return contestPolicy{}, nil
	case models.WorkflowTypeDirectHire:
		return directHirePolicy{}, nil
	case models.WorkflowTypeClientManagement:
		return clientManagementPolicy{}, nil
	default:
		return nil, &ValidationError{
			Field:  "workflow_type",
			Reason: fmt.Sprintf("unknown workflow type %q", workflowType),
		}
	}
}
