// Package testutil provides in-memory stand-ins for the pieces around an element:
// a pipeline host that records messages, and terminal source and sink elements
// that feed or collect pin data.
//
// All mocks are safe for concurrent use, so element goroutines can post and push
// while the test goroutine inspects them.
//
// # Usage
//
//	host := testutil.NewMockHost("test")
//	sink := testutil.NewMockSink(t, host, "sink", nv12Video)
//
//	conv, _ := converter.New(component.Dependencies{})
//	require.NoError(t, conv.Init(host, element.Properties{"name": "conv"}))
//	require.NoError(t, conv.SourcePin("out").AddSinkPin(sink.In()))
//
//	testutil.WaitForPosted(t, host, msgbus.MsgAddElementStream, 1, time.Second)
package testutil
