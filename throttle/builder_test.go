package throttle

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hioload/fixgw/api"
)

func TestBuildFailsBeforeConfigure(t *testing.T) {
	b := NewBuilder(1, 2, api.SessionKey{})
	_, _, ok := b.Build("D", 5, 6, []byte("ref"))
	require.False(t, ok)
}

func TestConfigureRejectsNonPositiveValues(t *testing.T) {
	b := NewBuilder(1, 2, api.SessionKey{})
	require.False(t, b.Configure(0, 10))
	require.False(t, b.Configure(1000, 0))
	require.True(t, b.Configure(1000, 10))
}

func TestBuildRendersBusinessMessageReject(t *testing.T) {
	key := api.SessionKey{SenderCompID: "SND", TargetCompID: "TGT"}
	b := NewBuilder(1, 2, key)
	require.True(t, b.Configure(1000, 5))

	body, msgType, ok := b.Build("D", 7, 8, []byte("ref-123"))

	require.True(t, ok)
	require.Equal(t, BusinessMessageRejectMsgType, msgType)
	require.Contains(t, string(body), "372=D")
	require.Contains(t, string(body), "45=7")
	require.Contains(t, string(body), "380=99")
	require.Contains(t, string(body), "379=ref-123")
	require.Contains(t, string(body), "49=SND")
	require.Contains(t, string(body), "56=TGT")
}
