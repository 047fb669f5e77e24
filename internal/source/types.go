package source

type (
	// FileID uniquely identifies a source file within a FileSet.
	FileID uint32 // просто ID источника
	// FileFlags encodes metadata about a source file.
	FileFlags uint8 // метаданные
)

const (
	// FileVirtual indicates the file was added from memory (test fixture, stdin).
	FileVirtual FileFlags = 1 << iota // добавлен не с диска
	FileHadBOM
	FileNormalizedCRLF
)

// Fingerprint is the sha256 digest of a file's normalized content. Staging
// captures one per file as the baseline; commit recomputes from disk and
// refuses to write on mismatch.
type Fingerprint [32]byte

// IsZero reports whether the fingerprint was never computed.
func (fp Fingerprint) IsZero() bool {
	return fp == Fingerprint{}
}

// File captures metadata and content for a single source file.
type File struct {
	ID      FileID
	Path    string
	Content []byte
	LineIdx []uint32
	Hash    Fingerprint
	Flags   FileFlags
}

// LineCol represents a human-readable position in a source file.
type LineCol struct {
	Line uint32 // 1-based
	Col  uint32 // 1-based
}
