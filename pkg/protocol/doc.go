// Package protocol implements UIDL, the binary update-description language
// exchanged between the communication manager and the client runtime.
//
// # Wire Format
//
// Every message is a frame with a 6-byte header:
//
//	┌─────────────┬──────────────┬───────────────────────────────┐
//	│ Frame Type  │ Flags        │ Payload Length                │
//	│ (1 byte)    │ (1 byte)     │ (4 bytes, big-endian)         │
//	└─────────────┴──────────────┴───────────────────────────────┘
//
// # Frame Types
//
//   - FrameBurst (0x01): Client → Server variable changes
//   - FrameChanges (0x02): Server → Client paint changes
//
// # Encoding
//
//   - Varint: unsigned integers (protobuf-style)
//   - ZigZag: signed integers encoded as unsigned varints
//   - Length-prefixed: strings prefixed with a varint length
//   - Tagged values: one type byte followed by the value (see ValueType)
//
// # Bursts
//
// A burst carries the ordered variable changes the client collected since
// its last request:
//
//	[SyncID: varint][SecurityKey: string][RepaintAll: bool]
//	[Count: varint] { [PaintableID: string][Name: string][Value: tagged] }*
//
// # Responses
//
// A response carries the paint of every component whose state changed
// since the last successful round-trip, plus the IDs of components that
// left the tree:
//
//	[SyncID: varint][RepaintAll: bool]
//	[Count: varint] { [PaintableID][Tag][Attributes: map][Variables: map][Children: strings] }*
//	[Removed: strings]
//
// Maps are written with sorted keys so equal paints encode to equal bytes.
package protocol

// ContentType is the media type of UIDL frames.
const ContentType = "application/x-vango-uidl"
