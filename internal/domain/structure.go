package domain

// Structure describes how a book's narration is laid out across its audio files.
// It is decided once per alignment run.
type Structure string

const (
	StructureUnknown Structure = "unknown"
	// StructureChapter means each chapter has exactly one audio file of its own.
	StructureChapter    Structure = "chapter"
	StructureSingleFile Structure = "single_file"
	StructureMultiFile  Structure = "multi_file"
)

// IsChapter reports whether chapters map one-to-one onto audio files.
func (s Structure) IsChapter() bool {
	return s == StructureChapter
}

// Valid reports whether s is a known structure.
func (s Structure) Valid() bool {
	switch s {
	case StructureUnknown, StructureChapter, StructureSingleFile, StructureMultiFile:
		return true
	default:
		return false
	}
}
