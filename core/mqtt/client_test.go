package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopics(t *testing.T) {
	assert.Equal(t, "rescue/rescuer/r1/mission", MissionTopic("r1"))
	assert.Equal(t, "rescue/rescuer/r1/assignment", AssignmentTopic("r1"))
	ref, ok := RefFromAcceptTopic(AcceptTopic("r1"))
	assert.True(t, ok)
	assert.Equal(t, "r1", ref)

	ref, ok = RefFromAcceptTopic("rescue/rescuer/r-42/accept")
	assert.True(t, ok)
	assert.Equal(t, "r-42", ref)

	for _, bad := range []string{"rescue/rescuer//accept", "rescue/rescuer/r1/mission", "other/r1/accept", "rescue/rescuer/a/b/accept"} {
		_, ok := RefFromAcceptTopic(bad)
		assert.False(t, ok, bad)
	}
}

func TestAcceptMessageValidate(t *testing.T) {
	assert.ErrorIs(t, AcceptMessage{}.Validate(), ErrMalformedAccept)
	assert.NoError(t, AcceptMessage{TicketID: "t1"}.Validate())
}
