package rpcsvc

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
)

func TestRegistry_LookupKnownServiceAndMethod(t *testing.T) {
	reg := NewRegistry()
	called := false
	reg.Register("Echo", MethodTable{
		"Call": MethodDesc{
			Handler: func(req proto.Message) (proto.Message, error) {
				called = true
				return req, nil
			},
		},
	})

	desc, serviceFound, methodFound := reg.Lookup("Echo", "Call")
	require.True(t, serviceFound)
	require.True(t, methodFound)
	_, err := desc.Handler(nil)
	require.NoError(t, err)
	require.True(t, called)
}

func TestRegistry_LookupUnknownService(t *testing.T) {
	reg := NewRegistry()
	_, serviceFound, methodFound := reg.Lookup("Missing", "Call")
	require.False(t, serviceFound)
	require.False(t, methodFound)
}

func TestRegistry_LookupUnknownMethod(t *testing.T) {
	reg := NewRegistry()
	reg.Register("Echo", MethodTable{})
	_, serviceFound, methodFound := reg.Lookup("Echo", "Missing")
	require.True(t, serviceFound)
	require.False(t, methodFound)
}

func TestController_SetFailedAndReset(t *testing.T) {
	var c Controller
	require.False(t, c.Failed())
	c.SetFailed("boom")
	require.True(t, c.Failed())
	require.Equal(t, "boom", c.ErrorText())
	c.Reset()
	require.False(t, c.Failed())
	require.Equal(t, "", c.ErrorText())
}
