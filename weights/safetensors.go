package weights

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
)

type safetensorMetadata struct {
	Type    string   `json:"dtype"`
	Shape   []uint64 `json:"shape"`
	Offsets []int64  `json:"data_offsets"`
}

type safetensorEntry struct {
	path   string
	dtype  string
	shape  []int
	offset int64
	size   int64
}

// indexSafetensors parses the header of one safetensors file and records an
// entry per tensor. Data is not read here.
func indexSafetensors(fsys fs.FS, path string, index map[string]safetensorEntry) error {
	f, err := fsys.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var n int64
	if err := binary.Read(f, binary.LittleEndian, &n); err != nil {
		return err
	}

	header := make([]byte, n)
	if _, err := io.ReadFull(f, header); err != nil {
		return err
	}

	var headers map[string]safetensorMetadata
	if err := json.Unmarshal(header, &headers); err != nil {
		return err
	}

	for name, value := range headers {
		if value.Type == "" {
			// metadata pseudo-entry
			continue
		}
		if _, ok := index[name]; ok {
			return fmt.Errorf("duplicate tensor name %q", name)
		}

		shape := make([]int, len(value.Shape))
		for i, d := range value.Shape {
			shape[i] = int(d)
		}

		index[name] = safetensorEntry{
			path:   path,
			dtype:  value.Type,
			shape:  shape,
			offset: safetensorsPad(n, value.Offsets[0]),
			size:   value.Offsets[1] - value.Offsets[0],
		}
	}

	return nil
}

// safetensorsPad returns the absolute file offset for a data offset relative
// to the end of a header of length n.
func safetensorsPad(n, offset int64) int64 {
	return 8 + n + offset
}

func readSafetensor(fsys fs.FS, name string, entry safetensorEntry) (*Tensor, error) {
	f, err := fsys.Open(entry.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if seeker, ok := f.(io.Seeker); ok {
		if _, err := seeker.Seek(entry.offset, io.SeekStart); err != nil {
			return nil, err
		}
	} else {
		if _, err := io.CopyN(io.Discard, f, entry.offset); err != nil {
			return nil, err
		}
	}

	data := make([]byte, entry.size)
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, fmt.Errorf("weights: %s: %w", name, err)
	}

	return &Tensor{Name: name, DType: entry.dtype, Shape: entry.shape, data: data}, nil
}
