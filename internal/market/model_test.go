package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPostStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to PostStatus
		allowed  bool
	}{
		{PostOpen, PostInProgress, true},
		{PostOpen, PostCancelled, true},
		{PostOpen, PostCompleted, false},
		{PostOpen, PostOpen, false},
		{PostInProgress, PostCompleted, true},
		// The single backward edge: cancelling an accepted bid reopens.
		{PostInProgress, PostOpen, true},
		{PostInProgress, PostCancelled, false},
		{PostCompleted, PostOpen, false},
		{PostCompleted, PostInProgress, false},
		{PostCancelled, PostOpen, false},
		{PostCancelled, PostCompleted, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.allowed, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestPostStatusTerminal(t *testing.T) {
	assert.False(t, PostOpen.Terminal())
	assert.False(t, PostInProgress.Terminal())
	assert.True(t, PostCompleted.Terminal())
	assert.True(t, PostCancelled.Terminal())
}

func TestStatusValidity(t *testing.T) {
	assert.True(t, PostOpen.Valid())
	assert.False(t, PostStatus("paused").Valid())
	assert.True(t, ApplicationPending.Valid())
	assert.False(t, ApplicationStatus("withdrawn").Valid())
}

func TestAcceptedApplication(t *testing.T) {
	detail := PostWithApplications{
		Applications: []Application{
			{ID: "a", HelperID: "h1", Status: ApplicationRejected},
			{ID: "b", HelperID: "h2", Status: ApplicationAccepted},
			{ID: "c", HelperID: "h3", Status: ApplicationPending},
		},
	}

	accepted, ok := detail.AcceptedApplication()
	assert.True(t, ok)
	assert.Equal(t, "b", accepted.ID)

	byHelper, ok := detail.ApplicationBy("h3")
	assert.True(t, ok)
	assert.Equal(t, "c", byHelper.ID)

	_, ok = detail.ApplicationBy("h4")
	assert.False(t, ok)

	_, ok = PostWithApplications{}.AcceptedApplication()
	assert.False(t, ok)
}

func TestProfileContact(t *testing.T) {
	p := Profile{Name: "n", Email: "e", Phone: "p", Skype: "s", Country: "NL"}
	card := p.Contact()
	assert.Equal(t, ContactCard{Name: "n", Email: "e", Phone: "p", Skype: "s"}, card)
}
