// Package streamvar binds upload receivers to components.
//
// A StreamVariable is a named upload target owned by a component. When the
// component paints an upload target, the Registry records the binding
//
//	(paintableID, variableName) -> receiver
//
// and hands out a capability URL of the form
//
//	app://APP/UPLOAD/{paintableID}/{variableName}/{securityKey}
//
// The security key is a random UUID minted the first time a receiver value is
// registered and reused for that receiver value afterwards. Possession of the
// key authorizes uploads into exactly that receiver.
//
// # Thread Safety
//
// Registry guards its forward index (owner -> name -> receiver) and its
// reverse index (receiver -> key) with a single mutex so that a receiver is
// never reachable without a key, and no key outlives the last mapping of its
// receiver.
package streamvar
