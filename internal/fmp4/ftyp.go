package fmp4

import "fmt"

// FileType is the ftyp box: major brand, minor version, compatible brands.
type FileType struct {
	MajorBrand       string
	MinorVersion     uint32
	CompatibleBrands []string
}

// DemuxFileType parses an ftyp box payload (header already stripped).
func DemuxFileType(payload []byte) (*FileType, error) {
	r := newBoxReader(payload)
	majorRaw, err := r.bytes(4)
	if err != nil {
		return nil, fmt.Errorf("fmp4: ftyp major_brand: %w", err)
	}
	minor, err := r.u32()
	if err != nil {
		return nil, fmt.Errorf("fmp4: ftyp minor_version: %w", err)
	}
	ft := &FileType{MajorBrand: string(majorRaw), MinorVersion: minor}
	for r.remaining() >= 4 {
		b, err := r.bytes(4)
		if err != nil {
			return nil, err
		}
		ft.CompatibleBrands = append(ft.CompatibleBrands, string(b))
	}
	return ft, nil
}

// Size returns the exact marshaled box size, header included.
func (ft *FileType) Size() int { return 8 + 8 + 4*len(ft.CompatibleBrands) }

// Mux serializes the ftyp box, header included.
func (ft *FileType) Mux() []byte {
	w := newBoxWriter()
	writeHeader(w, uint32(ft.Size()), "ftyp")
	w.raw([]byte(ft.MajorBrand))
	w.u32(ft.MinorVersion)
	for _, b := range ft.CompatibleBrands {
		w.raw([]byte(b))
	}
	return w.bytes()
}
