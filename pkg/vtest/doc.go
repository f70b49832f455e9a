// Package vtest provides test helpers for code built on the communication
// manager: recording stream receivers, scriptable components and an
// application fixture wired to an in-memory transport.
//
// # Receivers
//
// RecordingReceiver captures every streaming notification and the bytes
// written to it:
//
//	rcv := vtest.NewRecordingReceiver()
//	// ... post an upload ...
//	if got := rcv.Events(); !reflect.DeepEqual(got, []string{"started", "finished"}) {
//	    t.Errorf("events = %v", got)
//	}
//
// # Fixtures
//
// NewFixture creates an application with a main root, a communication
// manager bound to a mock session, and helpers to send bursts:
//
//	fx := vtest.NewFixture(t)
//	field := component.NewTextField("Name")
//	fx.Add(field)
//	resp := fx.Sync(t)                       // initial repaint
//	fx.Send(t, fx.Change(field, "text", "x")) // apply a change
package vtest
