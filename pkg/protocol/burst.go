package protocol

// VariableChange is a single client-originated variable change.
type VariableChange struct {
	PaintableID string
	Name        string
	Value       any
}

// Burst is the set of variable changes sent by the client in one UIDL
// request, in the order the client recorded them.
type Burst struct {
	// SyncID is the sync ID of the last response the client applied.
	SyncID uint64

	// SecurityKey is the session's UIDL security key.
	SecurityKey string

	// RepaintAll asks for a full repaint, e.g. after a page reload.
	RepaintAll bool

	Changes []VariableChange
}

// EncodeBurst encodes a burst payload.
func EncodeBurst(b *Burst) ([]byte, error) {
	e := NewEncoder()
	if err := EncodeBurstTo(e, b); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

// EncodeBurstTo encodes a burst payload using the provided encoder.
func EncodeBurstTo(e *Encoder, b *Burst) error {
	e.WriteUvarint(b.SyncID)
	e.WriteString(b.SecurityKey)
	e.WriteBool(b.RepaintAll)
	e.WriteUvarint(uint64(len(b.Changes)))
	for _, c := range b.Changes {
		e.WriteString(c.PaintableID)
		e.WriteString(c.Name)
		if err := e.WriteValue(c.Value); err != nil {
			return err
		}
	}
	return nil
}

// DecodeBurst decodes a burst payload. The whole payload must be consumed.
func DecodeBurst(data []byte) (*Burst, error) {
	d := NewDecoder(data)

	syncID, err := d.ReadUvarint()
	if err != nil {
		return nil, err
	}
	key, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	repaintAll, err := d.ReadBool()
	if err != nil {
		return nil, err
	}
	count, err := d.ReadCollectionCount()
	if err != nil {
		return nil, err
	}

	b := &Burst{SyncID: syncID, SecurityKey: key, RepaintAll: repaintAll}
	if count > 0 {
		b.Changes = make([]VariableChange, count)
	}
	for i := range b.Changes {
		c := &b.Changes[i]
		if c.PaintableID, err = d.ReadString(); err != nil {
			return nil, err
		}
		if c.Name, err = d.ReadString(); err != nil {
			return nil, err
		}
		if c.Value, err = d.ReadValue(); err != nil {
			return nil, err
		}
	}
	if !d.EOF() {
		return nil, ErrTrailingData
	}
	return b, nil
}
