package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	all := []Status{StatusDraft, StatusSubmitted, StatusCancelled}
	for _, from := range all {
		for _, to := range all {
			want := from == StatusDraft && to != StatusDraft
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestBusinessDetails_MergeLeafLevel(t *testing.T) {
	base := BusinessDetails{
		PremiseAddress: "Lot 1",
		BusinessName:   "Kedai A",
		OperationType:  "retail",
		EmployeeCount:  3,
	}
	name := "Kedai B"
	zero := 0

	got := base.Merge(&BusinessDetailsPatch{BusinessName: &name, EmployeeCount: &zero})

	assert.Equal(t, "Lot 1", got.PremiseAddress)
	assert.Equal(t, "Kedai B", got.BusinessName)
	assert.Equal(t, "retail", got.OperationType)
	assert.Equal(t, 0, got.EmployeeCount)
	assert.Equal(t, "Kedai A", base.BusinessName)
}

func TestApplicationPatch_IsEmpty(t *testing.T) {
	assert.True(t, ApplicationPatch{}.IsEmpty())
	assert.True(t, ApplicationPatch{BusinessDetails: &BusinessDetailsPatch{}}.IsEmpty())
	company := "c-2"
	assert.False(t, ApplicationPatch{CompanyID: &company}.IsEmpty())
}

func TestPage_Normalize(t *testing.T) {
	assert.Equal(t, Page{Limit: DefaultPageLimit}, Page{}.Normalize())
	assert.Equal(t, Page{Limit: MaxPageLimit, Offset: 0}, Page{Limit: 1000, Offset: -5}.Normalize())
}

func TestNewSubmissionEvent_Snapshot(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	app := Application{
		ID: "p-1", UserID: "u-1", CompanyID: "c-1", LicenseTypeID: "L1",
		Status: StatusSubmitted, SubmittedAt: &at,
		BusinessDetails: BusinessDetails{BusinessName: "Kedai A"},
	}

	ev := NewSubmissionEvent("e-1", app, at)
	app.BusinessDetails.BusinessName = "changed"

	assert.Equal(t, "Kedai A", ev.BusinessDetails.BusinessName)
	assert.Equal(t, at, ev.SubmittedAt)
	assert.Equal(t, "send_submission_notification_failed", FailedAction("send_submission_notification"))
}
