package protocol

// PaintChange is the full paint of one component.
type PaintChange struct {
	PaintableID string
	Tag         string
	Attributes  map[string]any
	Variables   map[string]any

	// Children lists the paintable IDs of the component's children in order.
	Children []string
}

// Response is the server's answer to a burst.
type Response struct {
	SyncID     uint64
	RepaintAll bool
	Changes    []PaintChange

	// Removed lists paintable IDs that left the tree since the last response.
	Removed []string
}

// Empty reports whether the response carries no changes.
func (r *Response) Empty() bool {
	return len(r.Changes) == 0 && len(r.Removed) == 0
}

// EncodeResponse encodes a response payload.
func EncodeResponse(r *Response) ([]byte, error) {
	e := NewEncoder()
	if err := EncodeResponseTo(e, r); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

// EncodeResponseTo encodes a response payload using the provided encoder.
// On error the encoder holds a partial payload and must be discarded.
func EncodeResponseTo(e *Encoder, r *Response) error {
	e.WriteUvarint(r.SyncID)
	e.WriteBool(r.RepaintAll)
	e.WriteUvarint(uint64(len(r.Changes)))
	for i := range r.Changes {
		if err := EncodePaintTo(e, &r.Changes[i]); err != nil {
			return err
		}
	}
	e.WriteStrings(r.Removed)
	return nil
}

// EncodePaintTo encodes a single paint.
func EncodePaintTo(e *Encoder, p *PaintChange) error {
	e.WriteString(p.PaintableID)
	e.WriteString(p.Tag)
	if err := e.WriteMap(p.Attributes); err != nil {
		return err
	}
	if err := e.WriteMap(p.Variables); err != nil {
		return err
	}
	e.WriteStrings(p.Children)
	return nil
}

// DecodeResponse decodes a response payload.
func DecodeResponse(data []byte) (*Response, error) {
	d := NewDecoder(data)

	syncID, err := d.ReadUvarint()
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

	r := &Response{SyncID: syncID, RepaintAll: repaintAll}
	if count > 0 {
		r.Changes = make([]PaintChange, count)
	}
	for i := range r.Changes {
		p := &r.Changes[i]
		if p.PaintableID, err = d.ReadString(); err != nil {
			return nil, err
		}
		if p.Tag, err = d.ReadString(); err != nil {
			return nil, err
		}
		if p.Attributes, err = d.ReadMap(); err != nil {
			return nil, err
		}
		if p.Variables, err = d.ReadMap(); err != nil {
			return nil, err
		}
		if p.Children, err = d.ReadStrings(); err != nil {
			return nil, err
		}
	}
	if r.Removed, err = d.ReadStrings(); err != nil {
		return nil, err
	}
	if !d.EOF() {
		return nil, ErrTrailingData
	}
	return r, nil
}
