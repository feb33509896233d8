package ebpf

import (
	"fmt"
)

// MaxFieldWidth is the widest field emit and extract handle.
const MaxFieldWidth = 64

// Chunk is the part of one field that lands in one byte.
type Chunk struct {
	Field int // index of the field
	Byte  int // byte index, relative to the first byte touched
	Bits  int // 1..8
	Shift int // left shift of the chunk inside its byte
	From  int // right shift extracting the chunk from the field value
}

// EmitPlan is the bit layout of consecutive fields written MSB first,
// starting Align bits into the first byte.
type EmitPlan struct {
	Align  int
	Widths []int
	Chunks []Chunk
	Bits   int // total width of the fields
	Bytes  int // bytes touched, the first partial one included
}

// PlanEmit lays out fields of the given widths.
func PlanEmit(widths []int, align int) (EmitPlan, error) {
	if align < 0 || align > 7 {
		return EmitPlan{}, fmt.Errorf("alignment %d out of range", align)
	}
	p := EmitPlan{Align: align, Widths: append([]int(nil), widths...)}
	pos := align
	for i, w := range widths {
		if w <= 0 || w > MaxFieldWidth {
			return EmitPlan{}, fmt.Errorf("field %d: width %d out of range 1..%d", i, w, MaxFieldWidth)
		}
		for rem := w; rem > 0; {
			free := 8 - pos%8
			n := min(free, rem)
			p.Chunks = append(p.Chunks, Chunk{
				Field: i,
				Byte:  pos / 8,
				Bits:  n,
				Shift: free - n,
				From:  rem - n,
			})
			pos += n
			rem -= n
		}
	}
	p.Bits = pos - align
	p.Bytes = (pos + 7) / 8
	return p, nil
}

func lowMask(bits int) uint64 {
	if bits >= 64 {
		return ^uint64(0)
	}
	return 1<<bits - 1
}

// Pack serializes values as the plan lays them out. Bits before the
// alignment and after the last field are zero.
func (p EmitPlan) Pack(values []uint64) ([]byte, error) {
	if len(values) != len(p.Widths) {
		return nil, fmt.Errorf("pack: %d values for %d fields", len(values), len(p.Widths))
	}
	out := make([]byte, p.Bytes)
	for _, c := range p.Chunks {
		v := (values[c.Field] >> c.From) & lowMask(c.Bits)
		out[c.Byte] |= byte(v << c.Shift)
	}
	return out, nil
}

// Unpack reads the fields back from data.
func (p EmitPlan) Unpack(data []byte) ([]uint64, error) {
	if len(data) < p.Bytes {
		return nil, fmt.Errorf("unpack: %d bytes, need %d", len(data), p.Bytes)
	}
	out := make([]uint64, len(p.Widths))
	for _, c := range p.Chunks {
		v := uint64(data[c.Byte]>>c.Shift) & lowMask(c.Bits)
		out[c.Field] = out[c.Field]<<c.Bits | v
	}
	return out, nil
}

// byteChunks groups the chunks by output byte.
func (p EmitPlan) byteChunks() [][]Chunk {
	out := make([][]Chunk, p.Bytes)
	for _, c := range p.Chunks {
		out[c.Byte] = append(out[c.Byte], c)
	}
	return out
}
