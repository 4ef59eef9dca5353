package fmp4

import "fmt"

// HandlerRef is the hdlr box identifying the track's media type.
type HandlerRef struct {
	HandlerType string // "vide", "soun"
	Name        string
}

func DemuxHandlerRef(payload []byte) (*HandlerRef, error) {
	r := newBoxReader(payload)
	if _, err := r.u8(); err != nil { // version
		return nil, fmt.Errorf("fmp4: hdlr version: %w", err)
	}
	if _, err := r.u24(); err != nil { // flags
		return nil, err
	}
	if _, err := r.u32(); err != nil { // pre_defined
		return nil, err
	}
	handlerType, err := r.bytes(4)
	if err != nil {
		return nil, fmt.Errorf("fmp4: hdlr handler_type: %w", err)
	}
	if err := r.need(12); err != nil { // reserved[3]
		return nil, err
	}
	r.pos += 12
	name := string(r.rest())
	// name may be NUL-terminated; trim a trailing NUL if present.
	if len(name) > 0 && name[len(name)-1] == 0 {
		name = name[:len(name)-1]
	}
	return &HandlerRef{HandlerType: string(handlerType), Name: name}, nil
}

// Size returns the exact marshaled box size, header included.
func (h *HandlerRef) Size() int {
	return 8 + 4 + 4 + 4 + 12 + len(h.Name) + 1
}

// Mux serializes the hdlr box, header included.
func (h *HandlerRef) Mux() []byte {
	w := newBoxWriter()
	writeHeader(w, uint32(h.Size()), "hdlr")
	w.u8(0)
	w.u24(0)
	w.u32(0) // pre_defined
	w.raw([]byte(h.HandlerType))
	w.u32(0) // reserved[3]
	w.u32(0)
	w.u32(0)
	w.raw([]byte(h.Name))
	w.u8(0) // NUL terminator
	return w.bytes()
}
