package memory

import (
	"bufio"
	"cmp"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
)

const flatMagic = "RAGFLAT1"

// Flat is an exact brute-force index over squared Euclidean distance.
// Vectors are stored row-major in one float32 slice.
type Flat struct {
	dim  int
	data []float32
}

// NewFlat returns an empty index of the given dimension.
func NewFlat(dim int) *Flat { return &Flat{dim: dim} }

// Add appends vectors in order; the first added vector gets the next free position.
func (f *Flat) Add(vectors ...domain.Vector) error {
	for i, v := range vectors {
		if len(v) != f.dim {
			return domain.ValidationError("flat.add", fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), f.dim))
		}
	}
	for _, v := range vectors {
		f.data = append(f.data, v...)
	}
	return nil
}

func (f *Flat) Len() int {
	if f.dim == 0 {
		return 0
	}
	return len(f.data) / f.dim
}

func (f *Flat) Dimension() int { return f.dim }

// Vector returns a copy of the vector at position i.
func (f *Flat) Vector(i int) domain.Vector {
	return slices.Clone(domain.Vector(f.data[i*f.dim : (i+1)*f.dim]))
}

func (f *Flat) Search(ctx context.Context, query domain.Vector, k int) ([]vectorstore.Neighbor, error) {
	n := f.Len()
	if k <= 0 || n == 0 {
		return nil, nil
	}
	if err := vectorstore.ValidateQuery(f.dim, query); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all := make([]vectorstore.Neighbor, n)
	for i := range n {
		row := f.data[i*f.dim : (i+1)*f.dim]
		var sum float32
		for j, q := range query {
			d := row[j] - q
			sum += d * d
		}
		all[i] = vectorstore.Neighbor{Position: i, Distance: sum}
	}
	slices.SortFunc(all, func(a, b vectorstore.Neighbor) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.Position, b.Position)
	})
	return all[:min(k, n)], nil
}

// WriteTo encodes the index as: magic, uint32 dimension, uint64 count, then
// count*dimension little-endian float32 values.
func (f *Flat) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var written int64
	n, err := bw.WriteString(flatMagic)
	written += int64(n)
	if err != nil {
		return written, err
	}
	var hdr [12]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(f.dim))
	binary.LittleEndian.PutUint64(hdr[4:12], uint64(f.Len()))
	n, err = bw.Write(hdr[:])
	written += int64(n)
	if err != nil {
		return written, err
	}
	var buf [4]byte
	for _, x := range f.data {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(x))
		n, err = bw.Write(buf[:])
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, bw.Flush()
}

// ReadFlat decodes an index written by WriteTo.
func ReadFlat(r io.Reader) (*Flat, error) {
	br := bufio.NewReader(r)
	magic := make([]byte, len(flatMagic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if string(magic) != flatMagic {
		return nil, errors.New("not a flat index")
	}
	var hdr [12]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	dim := int(binary.LittleEndian.Uint32(hdr[0:4]))
	count := binary.LittleEndian.Uint64(hdr[4:12])
	if dim == 0 && count > 0 {
		return nil, errors.New("zero dimension with vectors")
	}
	total := count * uint64(dim)
	if total > math.MaxInt32*4 {
		return nil, fmt.Errorf("index too large: %d values", total)
	}
	data := make([]float32, total)
	var buf [4]byte
	for i := range data {
		if _, err := io.ReadFull(br, buf[:]); err != nil {
			return nil, fmt.Errorf("read vector data: %w", err)
		}
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[:]))
	}
	return &Flat{dim: dim, data: data}, nil
}

var _ vectorstore.Index = (*Flat)(nil)
