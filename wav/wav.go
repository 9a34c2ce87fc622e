// Package wav defines the contract between this repository and a WAV
// reader/writer: the data-transfer shapes sampleprep.Ingest consumes, the
// named error kinds a full implementation must distinguish, and a minimal
// Reader for the fmt/data/cue/smpl/LIST chunks this repo's tests exercise,
// whose writer side emits only fmt and data.
//
// Full RIFF chunk richness (arbitrary unsupported-chunk preservation,
// 24-bit PCM, INFO tag round-tripping beyond the common tags) is explicitly
// out of scope — the interface is what sampleprep and cmd/organ-prep
// program against, not a general-purpose WAV library.
//
// Grounded on opendiapason's src/wavldr.h (struct memory_wave: the
// already-parsed in-memory shape a loader hands to the sampler) and
// app_sampleauth/wav_sample_read.c (struct wav_sample's smpl/cue/ltxt
// reconciliation, the supported INFO tag table, the fmt-then-opportunistic
// chunk scan order).
package wav

import "io"

// Format mirrors wav_sample.h's WAV_SAMPLE_* container kinds.
type Format int

const (
	FormatPCM16 Format = iota
	FormatPCM24
	FormatPCM32
	FormatFloat32
)

// Marker is one cue/label/note/ltxt-derived position, reconciled the way
// wav_sample_read.c merges cue points with their ltxt lengths and smpl loop
// entries that reference the same sample offset.
type Marker struct {
	ID       uint32
	Name     string
	Desc     string
	Position uint32
	Length   uint32
	HasLoop  bool
}

// SUPPORTED_INFO_TAGS in wav_sample.h, listed by 4-character RIFF chunk ID.
var SupportedInfoTags = []string{
	"IARL", "IART", "ICMS", "ICMT", "ICOP", "ICRD", "ICRP", "IDIM", "IDPI",
	"IENG", "IGNR", "IKEY", "ILGT", "IMED", "INAM", "IPLT", "IPRD", "ISBJ",
	"ISFT", "ISHP", "ISRC", "ISRF", "ITCH",
}

// RawPipe is the already-parsed in-memory shape a Reader hands to
// sampleprep.Ingest: one wave file's channel-planar samples, its loop
// table, and the metadata sampleprep needs to build a PreparedPipe.
//
// Mirrors struct memory_wave (wavldr.h): deinterleaved float channels, a
// flat loop-point list, an optional release marker, and the format fields
// loop/frequency correction depend on.
type RawPipe struct {
	// Data holds one []float32 per channel, each Frames long.
	Data     [][]float32
	Frames   int
	Channels int

	SampleRate int
	NativeBits int

	// Frequency is the smpl-chunk-derived pitch estimate, in Hz, or < 0 if
	// unknown (open question #1: honored if present, never required).
	Frequency float64

	// ReleasePos is the sample index of the release marker, or 0 if there
	// is none (matches memory_wave's release_pos convention).
	ReleasePos uint32

	Markers []Marker
	Info    map[string]string
}

// Warnings is a bit-masked word of non-fatal conditions a Reader noticed,
// per the §7 error-kind table: things worth logging but not worth failing
// the load over.
type Warnings uint32

const (
	// WarnConflictingLoopSource is set when both a cue/ltxt pair and a smpl
	// chunk describe loops and they disagree; the smpl chunk wins.
	WarnConflictingLoopSource Warnings = 1 << iota
	// WarnUnsupportedChunk is set when a chunk other than fmt/data/cue/smpl,
	// or a LIST chunk other than LIST/INFO, was encountered and skipped.
	WarnUnsupportedChunk
	// WarnTruncatedData is set when a chunk's declared size ran past the end
	// of the file; the bytes that are present are kept and the chunk scan
	// stops there.
	WarnTruncatedData
)

// Sentinel errors, named after wavldr.h's documented failure kinds.
var (
	ErrNotAWave         = errFmt("wav: missing RIFF/WAVE header")
	ErrMissingFmt       = errFmt("wav: no fmt chunk before data")
	ErrMissingData      = errFmt("wav: no data chunk found")
	ErrUnsupportedCodec = errFmt("wav: unsupported format code or bit depth")
	ErrConflictingLoops = errFmt("wav: smpl and cue/ltxt loop definitions conflict and could not be reconciled")
	ErrTruncated        = errFmt("wav: file truncated before declared chunk size")
)

type errFmt string

func (e errFmt) Error() string { return string(e) }

// Reader parses a WAV stream into the shape sampleprep.Ingest consumes.
// Implementations may preserve unsupported chunks, authenticate dither
// metadata, or otherwise exceed this package's own NewBasicReader; callers
// only depend on this interface.
type Reader interface {
	ReadPipe(r io.Reader) (*RawPipe, Warnings, error)
}

// Writer mirrors Reader for the write side; in this repo only the wav
// package's own round-trip tests use it.
type Writer interface {
	WritePipe(w io.Writer, pipe *RawPipe) error
}
