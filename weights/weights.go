// Package weights provides lookup of model tensors by name from safetensors
// checkpoints, including the row- and column-sliced variants tensor-parallel
// loading needs.
package weights

import (
	"fmt"
	"io/fs"
	"log/slog"
	"slices"

	"golang.org/x/exp/maps"
)

// LoadError reports a tensor that was expected in the checkpoint but is not
// there. For quantized weights this usually means the model artifact was not
// actually quantized as advertised.
type LoadError struct {
	Name string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("weights: tensor %q not found in checkpoint", e.Name)
}

// Store resolves tensors by name across the safetensors files of one
// checkpoint directory. Rank and World describe this process's slice of a
// tensor-parallel group; the default (0, 1) loads full tensors.
type Store struct {
	fsys  fs.FS
	index map[string]safetensorEntry

	Rank  int
	World int
}

// Open indexes every safetensors file in fsys. Tensor data is read lazily,
// one tensor per lookup.
func Open(fsys fs.FS) (*Store, error) {
	matches, err := fs.Glob(fsys, "*.safetensors")
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("weights: no safetensors files found")
	}
	slices.Sort(matches)

	index := make(map[string]safetensorEntry)
	for _, p := range matches {
		if err := indexSafetensors(fsys, p, index); err != nil {
			return nil, fmt.Errorf("weights: %s: %w", p, err)
		}
	}

	slog.Debug("indexed checkpoint", "files", len(matches), "tensors", len(index))

	return &Store{fsys: fsys, index: index, World: 1}, nil
}

// Names returns the names of all indexed tensors, sorted.
func (s *Store) Names() []string {
	names := maps.Keys(s.index)
	slices.Sort(names)
	return names
}

// Has reports whether the checkpoint contains the named tensor.
func (s *Store) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// WorldSize returns the tensor-parallel group size.
func (s *Store) WorldSize() int { return s.World }

// Tensor reads the named tensor in full.
func (s *Store) Tensor(name string) (*Tensor, error) {
	entry, ok := s.index[name]
	if !ok {
		return nil, &LoadError{Name: name}
	}
	return readSafetensor(s.fsys, name, entry)
}

// Sharded reads this rank's slice of the named tensor along dim (0 for rows,
// 1 for columns). The dimension must divide evenly across the group.
func (s *Store) Sharded(name string, dim int) (*Tensor, error) {
	t, err := s.Tensor(name)
	if err != nil {
		return nil, err
	}
	if s.World == 1 {
		return t, nil
	}
	if dim < 0 || dim >= len(t.Shape) {
		return nil, fmt.Errorf("weights: %s: cannot shard dim %d of shape %v", name, dim, t.Shape)
	}
	if t.Shape[dim]%s.World != 0 {
		return nil, fmt.Errorf("weights: %s: dim %d size %d not divisible by world size %d", name, dim, t.Shape[dim], s.World)
	}

	size := t.Shape[dim] / s.World
	return t.narrow(dim, s.Rank*size, size)
}

// PackedSharded reads this rank's slice of a fused tensor along dim. The
// tensor is a concatenation of blocks (e.g. fused qkv or gate+up projections)
// whose sizes along dim are given by blockSizes; each block is sliced for
// this rank independently and the slices are re-concatenated, so every rank
// sees a proportional piece of every block.
func (s *Store) PackedSharded(name string, dim int, blockSizes []int) (*Tensor, error) {
	t, err := s.Tensor(name)
	if err != nil {
		return nil, err
	}
	if dim < 0 || dim >= len(t.Shape) {
		return nil, fmt.Errorf("weights: %s: cannot shard dim %d of shape %v", name, dim, t.Shape)
	}

	var total int
	for _, b := range blockSizes {
		total += b
	}
	if total != t.Shape[dim] {
		return nil, fmt.Errorf("weights: %s: block sizes %v do not sum to dim %d size %d", name, blockSizes, dim, t.Shape[dim])
	}

	var parts []*Tensor
	offset := 0
	for _, b := range blockSizes {
		if b%s.World != 0 {
			return nil, fmt.Errorf("weights: %s: block size %d not divisible by world size %d", name, b, s.World)
		}
		size := b / s.World
		part, err := t.narrow(dim, offset+s.Rank*size, size)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
		offset += b
	}

	return Concat(parts, dim)
}
