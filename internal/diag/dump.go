package diag

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"
	"unsafe"

	semver "github.com/Masterminds/semver/v3"
)

// dumpFormatVersion is the heap-range dump's own format version, bumped
// whenever the on-disk layout changes incompatibly. Readers gate on a
// semver constraint rather than an exact match so additive, backward
// compatible changes (a new trailing section) don't break old tooling.
var dumpFormatVersion = semver.MustParse("1.0.0")

const dumpMagic = "GCXDUMP1"

// Dump is a captured snapshot of a contiguous heap range, written out
// when a fatal invariant violation forces an abort, so the surrounding
// memory can be inspected post-mortem.
type Dump struct {
	Reason     string
	RangeStart uintptr
	RangeEnd   uintptr
	CapturedAt time.Time
	Memory     []byte
}

// WriteDump serializes d to w in the heap-range dump format: an 8-byte
// magic, the format version, then reason/range/timestamp/memory fields.
func WriteDump(w io.Writer, d Dump) error {
	if _, err := io.WriteString(w, dumpMagic); err != nil {
		return err
	}

	if err := writeString(w, dumpFormatVersion.String()); err != nil {
		return err
	}

	if err := writeString(w, d.Reason); err != nil {
		return err
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(d.RangeStart)); err != nil {
		return err
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(d.RangeEnd)); err != nil {
		return err
	}

	if err := binary.Write(w, binary.LittleEndian, d.CapturedAt.UnixNano()); err != nil {
		return err
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(d.Memory))); err != nil {
		return err
	}

	_, err := w.Write(d.Memory)

	return err
}

// ReadDump deserializes a heap-range dump from r, rejecting one written
// by a format version this reader can't understand.
func ReadDump(r io.Reader, accept *semver.Constraints) (Dump, error) {
	magic := make([]byte, len(dumpMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return Dump{}, err
	}

	if string(magic) != dumpMagic {
		return Dump{}, fmt.Errorf("diag: not a heap dump (bad magic %q)", magic)
	}

	versionStr, err := readString(r)
	if err != nil {
		return Dump{}, err
	}

	version, err := semver.NewVersion(versionStr)
	if err != nil {
		return Dump{}, fmt.Errorf("diag: invalid dump format version %q: %w", versionStr, err)
	}

	if accept != nil && !accept.Check(version) {
		return Dump{}, fmt.Errorf("diag: dump format version %s does not satisfy %s", version, accept)
	}

	reason, err := readString(r)
	if err != nil {
		return Dump{}, err
	}

	var start, end uint64
	if err := binary.Read(r, binary.LittleEndian, &start); err != nil {
		return Dump{}, err
	}

	if err := binary.Read(r, binary.LittleEndian, &end); err != nil {
		return Dump{}, err
	}

	var capturedNano int64
	if err := binary.Read(r, binary.LittleEndian, &capturedNano); err != nil {
		return Dump{}, err
	}

	var memLen uint64
	if err := binary.Read(r, binary.LittleEndian, &memLen); err != nil {
		return Dump{}, err
	}

	mem := make([]byte, memLen)
	if _, err := io.ReadFull(r, mem); err != nil {
		return Dump{}, err
	}

	return Dump{
		Reason:     reason,
		RangeStart: uintptr(start),
		RangeEnd:   uintptr(end),
		CapturedAt: time.Unix(0, capturedNano).UTC(),
		Memory:     mem,
	}, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint64(len(s))); err != nil {
		return err
	}

	_, err := io.WriteString(w, s)

	return err
}

func readString(r io.Reader) (string, error) {
	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}

	return string(buf), nil
}

// DumpAndAbort captures the memory range [rangeStart, rangeEnd) to path,
// then calls os.Exit(1). It is the last action on the fatal-invariant
// path: by the time it runs, the collector has already decided the heap
// is untrustworthy and recovery is not attempted.
func DumpAndAbort(path string, reason string, rangeStart, rangeEnd uintptr) {
	f, err := os.Create(path)
	if err == nil {
		mem := make([]byte, rangeEnd-rangeStart)
		copy(mem, unsafe.Slice((*byte)(unsafe.Pointer(rangeStart)), rangeEnd-rangeStart))

		_ = WriteDump(f, Dump{
			Reason: reason, RangeStart: rangeStart, RangeEnd: rangeEnd,
			CapturedAt: time.Now(), Memory: mem,
		})
		_ = f.Close()
	}

	fmt.Fprintf(os.Stderr, "gcx: fatal invariant violation: %s (dump: %s)\n", reason, path)
	os.Exit(1)
}
