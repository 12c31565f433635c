// Package ecc implements the Hamming SECDED code protecting the payload
// bits: every 4 data bits travel as an 8 bit block
// [p1, p2, d1, p3, d2, d3, d4, pg].
package ecc

import (
	"errors"
	"fmt"
)

const (
	DataBits  = 4
	BlockBits = 8
)

// Bit positions inside a block.
const (
	P1 = iota
	P2
	D1
	P3
	D2
	D3
	D4
	PG
)

var ErrUncorrectableBlock = errors.New("uncorrectable ecc block")

// UncorrectableError reports how many blocks of a decode carried an even
// number of bit errors. Their data went through a best-effort guess.
type UncorrectableError struct {
	Blocks        int
	Uncorrectable int
}

func (e *UncorrectableError) Error() string {
	return fmt.Sprintf("%d of %d ecc blocks uncorrectable", e.Uncorrectable, e.Blocks)
}

func (e *UncorrectableError) Unwrap() error {
	return ErrUncorrectableBlock
}

// Report summarises one Decode call.
type Report struct {
	Blocks        int
	Corrected     int
	Uncorrectable int
}

// Err returns an *UncorrectableError if any block could not be corrected.
func (r Report) Err() error {
	if r.Uncorrectable == 0 {
		return nil
	}
	return &UncorrectableError{Blocks: r.Blocks, Uncorrectable: r.Uncorrectable}
}

// Syndrome is the (s1, s2, s3) parity mismatch pattern, s1 being the most
// significant bit.
type Syndrome uint8

func (s Syndrome) String() string {
	return fmt.Sprintf("%03b", uint8(s))
}

// SingleErrorTable maps the syndrome of a block whose global parity failed
// to the one position to flip.
var SingleErrorTable = [8]int{
	0b000: PG,
	0b100: P1,
	0b010: P2,
	0b001: P3,
	0b110: D1,
	0b111: D2,
	0b101: D3,
	0b011: D4,
}

// DoubleErrorTable maps the syndrome of a block whose global parity held to
// the pair of positions to flip. Each pair produces exactly that syndrome,
// but so do other pairs; the guess is not a correction.
var DoubleErrorTable = [8][2]int{
	0b001: {P3, PG},
	0b010: {D2, D3},
	0b011: {D4, PG},
	0b100: {P1, PG},
	0b101: {P1, P3},
	0b110: {P1, P2},
	0b111: {D1, P3},
}

func xor(bits ...bool) bool {
	r := false
	for _, b := range bits {
		r = r != b
	}
	return r
}

func parities(d1, d2, d3, d4 bool) (p1, p2, p3 bool) {
	return xor(d1, d2, d3), xor(d1, d2, d4), xor(d2, d3, d4)
}

// EncodeBlock encodes 4 data bits.
func EncodeBlock(d [DataBits]bool) [BlockBits]bool {
	d1, d2, d3, d4 := d[0], d[1], d[2], d[3]
	p1, p2, p3 := parities(d1, d2, d3, d4)
	pg := xor(p1, p2, p3, d1, d2, d3, d4)
	return [BlockBits]bool{p1, p2, d1, p3, d2, d3, d4, pg}
}

// Check recomputes the parities of a block and returns its syndrome and
// whether the global parity holds.
func Check(b [BlockBits]bool) (Syndrome, bool) {
	p1, p2, p3 := parities(b[D1], b[D2], b[D3], b[D4])
	var s Syndrome
	if b[P1] != p1 {
		s |= 0b100
	}
	if b[P2] != p2 {
		s |= 0b010
	}
	if b[P3] != p3 {
		s |= 0b001
	}
	pgOK := b[PG] == xor(b[P1], b[P2], b[P3], b[D1], b[D2], b[D3], b[D4])
	return s, pgOK
}

// Outcome of decoding one block.
type Outcome int

const (
	Clean Outcome = iota
	Corrected
	Uncorrectable
)

// DecodeBlock returns the data bits of b after correction.
func DecodeBlock(b [BlockBits]bool) ([DataBits]bool, Outcome) {
	s, pgOK := Check(b)
	outcome := Clean
	switch {
	case !pgOK:
		b[SingleErrorTable[s]] = !b[SingleErrorTable[s]]
		outcome = Corrected
	case s != 0:
		pair := DoubleErrorTable[s]
		b[pair[0]] = !b[pair[0]]
		b[pair[1]] = !b[pair[1]]
		outcome = Uncorrectable
	}
	return [DataBits]bool{b[D1], b[D2], b[D3], b[D4]}, outcome
}

// Encode splits bits into groups of 4, zero padding the last one, and
// returns 8 coded bits per group.
func Encode(bits []bool) []bool {
	blocks := (len(bits) + DataBits - 1) / DataBits
	coded := make([]bool, 0, blocks*BlockBits)
	for i := 0; i < blocks; i++ {
		var d [DataBits]bool
		copy(d[:], bits[i*DataBits:min(len(bits), (i+1)*DataBits)])
		b := EncodeBlock(d)
		coded = append(coded, b[:]...)
	}
	return coded
}

// Decode takes groups of 8 bits, drops a trailing partial group, and
// returns 4 data bits per group. Uncorrectable blocks are counted in the
// report; their data is still emitted.
func Decode(coded []bool) ([]bool, Report) {
	var report Report
	data := make([]bool, 0, len(coded)/BlockBits*DataBits)
	for i := 0; i+BlockBits <= len(coded); i += BlockBits {
		var b [BlockBits]bool
		copy(b[:], coded[i:i+BlockBits])
		d, outcome := DecodeBlock(b)
		switch outcome {
		case Corrected:
			report.Corrected++
		case Uncorrectable:
			report.Uncorrectable++
		}
		report.Blocks++
		data = append(data, d[:]...)
	}
	return data, report
}
