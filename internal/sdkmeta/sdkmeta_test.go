package sdkmeta

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionIDStableAndNonEmpty(t *testing.T) {
	ResetForTest()
	defer ResetForTest()

	a := SessionID()
	b := SessionID()
	assert.NotEmpty(t, a)
	assert.Equal(t, a, b)
}

func TestSetSDKType(t *testing.T) {
	ResetForTest()
	defer ResetForTest()

	assert.Equal(t, defaultSDKType, SDKType())
	SetSDKType("statsig-node-binding")
	assert.Equal(t, "statsig-node-binding", SDKType())
	SetSDKType("")
	assert.Equal(t, "statsig-node-binding", SDKType(), "empty override is ignored")
}
