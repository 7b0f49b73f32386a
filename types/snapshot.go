package types

// SnapshotFormat identifies the chunk layout. Only one exists.
const SnapshotFormat uint32 = 1

// SnapshotDescriptor describes an exportable snapshot of the state
// at Height.
type SnapshotDescriptor struct {
	Height uint64 `cramberry:"1"`
	Format uint32 `cramberry:"2"`
	// Total number of chunks (for progress reporting).
	Chunks uint32 `cramberry:"3"`
	// Root is the state root every chunk's range proof verifies against.
	Root Hash `cramberry:"4"`
}

// SnapshotChunk is a contiguous range of leaves with its proof.
type SnapshotChunk struct {
	Index uint32     `cramberry:"1"`
	Range RangeProof `cramberry:"2"`
}

// ImportStatus describes the outcome of a snapshot import.
type ImportStatus uint8

const (
	// ImportOK means the snapshot was applied successfully.
	ImportOK ImportStatus = 1
	// ImportReject means the snapshot was rejected; try a different one.
	ImportReject ImportStatus = 2
	// ImportRetryChunks means some chunks failed verification;
	// request these indices again.
	ImportRetryChunks ImportStatus = 3
)

// ImportResult is the outcome of importing a snapshot.
type ImportResult struct {
	Status ImportStatus `cramberry:"1"`
	// Set when Status is ImportOK.
	Root *Hash `cramberry:"2"`
	// Set when Status is ImportReject.
	Reason string `cramberry:"3"`
	// Set when Status is ImportRetryChunks.
	RetryIndices []uint32 `cramberry:"4"`
}
