package shard

import (
	"sync"

	"github.com/Kronuz/Xapiand-sub007/cmn/atomic"
	"github.com/Kronuz/Xapiand-sub007/cmn/cos"
	"github.com/Kronuz/Xapiand-sub007/meta"
)

// Shard is the handle for one opened index (spec.md §3). A writable Shard
// may exist at most once per endpoint at any instant -- that invariant is
// enforced one layer up, by pool.ShardEndpoint (spec.md §4.D); Shard itself
// only refuses a concurrent call on the *same* handle, serializing its own
// engine calls with mu.
type Shard struct {
	Kind     Kind
	Endpoint meta.Endpoint
	Flags    OpenFlags

	ageStamp atomic.Int64 // nowNano() at the last touch

	mu  sync.Mutex
	db  DB
	rl  RemoteLink
}

// New wraps an already-opened engine DB as a local Shard.
func New(kind Kind, ep meta.Endpoint, flags OpenFlags, db DB) *Shard {
	s := &Shard{Kind: kind, Endpoint: ep, Flags: flags, db: db}
	s.touch()
	return s
}

// NewRemote wraps a RemoteLink as a Shard whose operations travel over the
// remote binary protocol (package remote) to another node.
func NewRemote(kind Kind, ep meta.Endpoint, flags OpenFlags, rl RemoteLink) *Shard {
	s := &Shard{Kind: kind, Endpoint: ep, Flags: flags, rl: rl}
	s.touch()
	return s
}

func (s *Shard) touch() { s.ageStamp.Store(nowNano()) }

// AgeStamp returns the wall-clock time, in Unix nanoseconds, of the last
// operation on this shard. pool.DatabasePool's LRU does not read it.
func (s *Shard) AgeStamp() int64 { return s.ageStamp.Load() }

func (s *Shard) backend() DB {
	if s.rl != nil {
		return s.rl
	}
	return s.db
}

func (s *Shard) requireWritable() error {
	if s.Kind != Writable {
		return cos.NewErrInvalidArgument("shard %s: read-only handle rejects write operation", s.Endpoint)
	}
	return nil
}

// Reopen refreshes a readable shard's view of the underlying revision
// without changing its identity, returning true iff the revision advanced
// (spec.md §4.C).
func (s *Shard) Reopen() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.touch()
	return s.backend().Reopen()
}

func (s *Shard) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend().Revision()
}

func (s *Shard) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.touch()
	return s.backend().Stats()
}

func (s *Shard) GetDoc(docID uint64) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.touch()
	return s.backend().GetDoc(docID)
}

func (s *Shard) AddDocument(doc *Document) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireWritable(); err != nil {
		return 0, err
	}
	defer s.touch()
	return s.backend().AddDocument(doc)
}

func (s *Shard) ReplaceDocument(idOrTerm string, doc *Document) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireWritable(); err != nil {
		return 0, err
	}
	defer s.touch()
	return s.backend().ReplaceDocument(idOrTerm, doc)
}

func (s *Shard) DeleteDocument(idOrTerm string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireWritable(); err != nil {
		return err
	}
	defer s.touch()
	return s.backend().DeleteDocument(idOrTerm)
}

func (s *Shard) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireWritable(); err != nil {
		return err
	}
	defer s.touch()
	return s.backend().Commit()
}

func (s *Shard) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireWritable(); err != nil {
		return err
	}
	defer s.touch()
	return s.backend().Cancel()
}

func (s *Shard) BeginTransaction() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireWritable(); err != nil {
		return err
	}
	defer s.touch()
	return s.backend().BeginTransaction()
}

func (s *Shard) GetMetadata(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.touch()
	return s.backend().GetMetadata(key)
}

func (s *Shard) SetMetadata(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireWritable(); err != nil {
		return err
	}
	defer s.touch()
	return s.backend().SetMetadata(key, value)
}

func (s *Shard) MetadataKeys(prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.touch()
	return s.backend().MetadataKeys(prefix)
}

func (s *Shard) AddSpelling(term string, freqDelta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireWritable(); err != nil {
		return err
	}
	defer s.touch()
	return s.backend().AddSpelling(term, freqDelta)
}

func (s *Shard) RemoveSpelling(term string, freqDelta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireWritable(); err != nil {
		return err
	}
	defer s.touch()
	return s.backend().RemoveSpelling(term, freqDelta)
}

func (s *Shard) AllTerms(prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.touch()
	return s.backend().AllTerms(prefix)
}

func (s *Shard) TermExists(term string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.touch()
	return s.backend().TermExists(term)
}

func (s *Shard) TermFreq(term string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.touch()
	return s.backend().TermFreq(term)
}

func (s *Shard) ValueStats(slot int) (ValueStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.touch()
	return s.backend().ValueStats(slot)
}

func (s *Shard) CollFreq(term string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.touch()
	return s.backend().CollFreq(term)
}

func (s *Shard) Freqs(term string) (termFreq, collFreq uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.touch()
	return s.backend().Freqs(term)
}

func (s *Shard) TermList(docID uint64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.touch()
	return s.backend().TermList(docID)
}

func (s *Shard) PostList(term string) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.touch()
	return s.backend().PostList(term)
}

func (s *Shard) PositionList(docID uint64, term string) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.touch()
	return s.backend().PositionList(docID, term)
}

func (s *Shard) PositionListCount(docID uint64, term string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.touch()
	return s.backend().PositionListCount(docID, term)
}

func (s *Shard) DocLength(docID uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.touch()
	return s.backend().DocLength(docID)
}

func (s *Shard) UniqueTerms(docID uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.touch()
	return s.backend().UniqueTerms(docID)
}

// PrepareQuery and GetMSet together implement MSG_QUERY/MSG_GETMSET's
// two-round-trip flow (spec.md §4.H): PrepareQuery parses the query and
// returns the stats the client merges across shards; GetMSet later
// materializes the window the client decided on.
func (s *Shard) PrepareQuery(payload []byte) ([]byte, QueryStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.touch()
	return s.backend().PrepareQuery(payload)
}

func (s *Shard) GetMSet(handle []byte, first, maxItems, checkAtLeast int) (MSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.touch()
	return s.backend().GetMSet(handle, first, maxItems, checkAtLeast)
}

// SnapshotFiles, Changesets, ApplySnapshot, and ApplyChangeset expose the
// engine's replication surface (spec.md §4.I) to package replication.
func (s *Shard) SnapshotFiles() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend().SnapshotFiles()
}

func (s *Shard) Changesets(fromRevision, toRevision uint64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend().Changesets(fromRevision, toRevision)
}

// ApplySnapshot and ApplyChangeset run against a not-yet-live switch-in
// Shard (spec.md §4.I receiver behavior), so unlike the rest of this type
// they do not require an existing writable checkout.
func (s *Shard) ApplySnapshot(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.touch()
	return s.backend().ApplySnapshot(path)
}

func (s *Shard) ApplyChangeset(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.touch()
	return s.backend().ApplyChangeset(path)
}

// KeepAlive is a no-op for local shards; for remote shards it pings the
// peer node to keep the underlying connection and engine handle alive
// (spec.md §4.C). Either way it refreshes the age-stamp (see AgeStamp).
func (s *Shard) KeepAlive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.touch()
	if s.rl != nil {
		return s.rl.Ping()
	}
	return nil
}

// Close releases the underlying engine handle. Only the owner (pool,
// during eviction) should call this -- it does not check refs.
func (s *Shard) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend().Close()
}

// IsRemote reports whether this Shard's operations are served over the
// network rather than a locally opened engine handle.
func (s *Shard) IsRemote() bool { return s.rl != nil }
