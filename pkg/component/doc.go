// Package component defines the minimal component tree the communication
// manager drives: paintable components, variable owners, containers,
// roots (windows) and the per-session Application that owns them.
//
// Components paint themselves into a PaintTarget. The manager assigns each
// component an opaque paintable ID on first paint, fingerprints the paint
// and sends it to the client only when it changed. Client variable changes
// are routed back to the owning component through ChangeVariables.
//
// All tree mutation happens under the Application lock:
//
//	app.Lock()
//	defer app.Unlock()
//	root.Add(component.NewLabel("hello"))
//
// Components are not safe for concurrent use outside that lock.
package component
