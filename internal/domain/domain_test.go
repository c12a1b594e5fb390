package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var allStatuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusPending,
	TicketStatusResolved,
	TicketStatusClosed,
}

func TestTransitionTable(t *testing.T) {
	legal := map[[2]TicketStatus]bool{
		{TicketStatusOpen, TicketStatusPending}:     true,
		{TicketStatusOpen, TicketStatusResolved}:    true,
		{TicketStatusPending, TicketStatusResolved}: true,
		{TicketStatusOpen, TicketStatusClosed}:      true,
		{TicketStatusPending, TicketStatusClosed}:   true,
		{TicketStatusResolved, TicketStatusClosed}:  true,
		{TicketStatusClosed, TicketStatusOpen}:      true,
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			got := from.CanTransitionTo(to)
			assert.Equal(t, legal[[2]TicketStatus{from, to}], got, "%s -> %s", from, to)
		}
	}
}

func TestSameStatusIsNotATransition(t *testing.T) {
	for _, s := range allStatuses {
		assert.False(t, s.CanTransitionTo(s), string(s))
	}
}

func TestAllowedTransitionsReturnsCopy(t *testing.T) {
	next := TicketStatusOpen.AllowedTransitions()
	next[0] = TicketStatusClosed
	assert.Equal(t, TicketStatusPending, TicketStatusOpen.AllowedTransitions()[0])
}

func TestStatusGates(t *testing.T) {
	assert.True(t, TicketStatusOpen.AcceptsMessages())
	assert.True(t, TicketStatusResolved.AcceptsMessages())
	assert.False(t, TicketStatusClosed.AcceptsMessages())

	assert.True(t, TicketStatusOpen.AcceptsSanctions())
	assert.True(t, TicketStatusPending.AcceptsSanctions())
	assert.False(t, TicketStatusResolved.AcceptsSanctions())
	assert.False(t, TicketStatusClosed.AcceptsSanctions())
}

func TestSanctionNormalize(t *testing.T) {
	req := SanctionRequest{
		TargetNickname: "  Steve ",
		DurationKind:   SanctionPermanent,
		DurationValue:  7,
		DurationUnit:   DurationDays,
	}.Normalize()

	assert.Equal(t, "Steve", req.TargetNickname)
	assert.Equal(t, DefaultSanctionReason, req.Reason)
	assert.Zero(t, req.DurationValue)
	assert.Empty(t, req.DurationUnit)
	assert.NoError(t, req.Validate())
}

func TestSanctionValidate(t *testing.T) {
	base := SanctionRequest{
		TargetNickname: "Steve",
		DurationKind:   SanctionTemporary,
		DurationValue:  7,
		DurationUnit:   DurationDays,
		Reason:         "Hacks",
	}
	assert.NoError(t, base.Validate())

	cases := map[string]func(r *SanctionRequest){
		"missing nickname": func(r *SanctionRequest) { r.TargetNickname = "" },
		"spaced nickname":  func(r *SanctionRequest) { r.TargetNickname = "Ste ve" },
		"bad kind":         func(r *SanctionRequest) { r.DurationKind = "forever" },
		"zero duration":    func(r *SanctionRequest) { r.DurationValue = 0 },
		"bad unit":         func(r *SanctionRequest) { r.DurationUnit = "weeks" },
		"multiline reason": func(r *SanctionRequest) { r.Reason = "a\nban 2" },
	}
	for name, mutate := range cases {
		req := base
		mutate(&req)
		assert.Error(t, req.Validate(), name)
	}
}

func TestDurationSuffixes(t *testing.T) {
	assert.Equal(t, "m", DurationMinutes.Suffix())
	assert.Equal(t, "h", DurationHours.Suffix())
	assert.Equal(t, "d", DurationDays.Suffix())
	assert.Equal(t, "mo", DurationMonths.Suffix())
	assert.Equal(t, "", SanctionDurationUnit("weeks").Suffix())
}

func TestPriorityValid(t *testing.T) {
	assert.True(t, TicketPriorityUrgent.Valid())
	assert.False(t, TicketPriority("critical").Valid())
	assert.True(t, TicketStatusPending.Valid())
	assert.False(t, TicketStatus("in_progress").Valid())
}
