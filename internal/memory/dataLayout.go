package memory

// Endian names the byte order the target data layout declares.
type Endian int

const (
	LittleEndian Endian = iota
	BigEndian
)

// DataLayout is the front-end-supplied target record spec.md §6 names:
// "a target data-layout record {pointer_size, endianess, integer/float
// alignments}". It is small and copied by value throughout the evaluator.
type DataLayout struct {
	PointerSize int
	Endian      Endian

	// IntAlign/FloatAlign map a scalar's byte width to its required
	// alignment, the table check_align/read_int consult (§4.1).
	IntAlign   map[int]int
	FloatAlign map[int]int
}

// DefaultDataLayout returns the layout of a typical 64-bit little-endian
// target, the configuration used when the host doesn't override it.
func DefaultDataLayout() DataLayout {
	return DataLayout{
		PointerSize: 8,
		Endian:      LittleEndian,
		IntAlign:    map[int]int{1: 1, 2: 2, 4: 4, 8: 8},
		FloatAlign:  map[int]int{4: 4, 8: 8},
	}
}

func (d DataLayout) alignFor(width int, float bool) int {
	table := d.IntAlign
	if float {
		table = d.FloatAlign
	}
	if a, ok := table[width]; ok {
		return a
	}
	return width
}
