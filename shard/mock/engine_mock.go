// Package mock provides a fake Engine/DB pair for exercising package shard
// and package pool without an embedded Xapian-compatible engine, mirroring
// the teacher's cluster/mock package (e.g. cluster/mock/stats_mock.go).
package mock

import (
	"encoding/gob"
	"os"
	"sync"

	"github.com/Kronuz/Xapiand-sub007/cmn/cos"
	"github.com/Kronuz/Xapiand-sub007/shard"
)

type Engine struct {
	mu   sync.Mutex
	dbs  map[string]*DB
	// FailOpen, when set, makes the next N Open calls fail -- used to
	// exercise pool's "retry once after a short backoff" behavior
	// (spec.md §4.D).
	FailOpen int
}

// interface guard
var _ shard.Engine = (*Engine)(nil)

func NewEngine() *Engine { return &Engine{dbs: make(map[string]*DB)} }

func (e *Engine) Open(path string, flags shard.OpenFlags) (shard.DB, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.FailOpen > 0 {
		e.FailOpen--
		return nil, cos.NewErrInvalidArgument("mock engine: induced open failure for %s", path)
	}
	db, ok := e.dbs[path]
	if !ok {
		if !flags.Has(shard.CREATE_OR_OPEN) && !flags.Has(shard.OPEN) {
			return nil, cos.NewErrNotFound("database %s", path)
		}
		db = &DB{
			path:     path,
			metadata: make(map[string][]byte),
			docs:     make(map[uint64]*shard.Document),
			terms:    make(map[string]uint64),
			uuid:     cos.GenUUID(),
		}
		e.dbs[path] = db
	}
	return db, nil
}

// Rename replaces whatever database is registered at newPath with the one
// at oldPath, the mock's stand-in for a directory rename.
func (e *Engine) Rename(oldPath, newPath string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	db, ok := e.dbs[oldPath]
	if !ok {
		return cos.NewErrNotFound("database %s", oldPath)
	}
	delete(e.dbs, oldPath)
	db.mu.Lock()
	db.path = newPath
	db.mu.Unlock()
	e.dbs[newPath] = db
	return nil
}

// DB is an in-memory stand-in for one opened index database.
type DB struct {
	mu       sync.Mutex
	path     string
	revision uint64
	nextID   uint64
	metadata map[string][]byte
	docs     map[uint64]*shard.Document
	terms    map[string]uint64
	uuid     string
	closed   bool

	// changelog records one entry per revision-advancing mutation, the
	// mock's stand-in for a real engine's on-disk WAL files, read back by
	// Changesets/ApplyChangeset (spec.md §4.I).
	changelog []changesetState
}

var _ shard.DB = (*DB)(nil)

func (d *DB) Revision() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.revision
}

func (d *DB) Reopen() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	// a mock reader "sees" whatever the writer last committed; since writes
	// go straight to the shared DB, there is nothing to refresh and Reopen
	// always reports false.
	return false, nil
}

func (d *DB) Stats() shard.Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return shard.Stats{
		DocCount:  uint64(len(d.docs)),
		LastDocID: d.nextID,
		UUID:      d.uuid,
	}
}

func (d *DB) GetDoc(docID uint64) (*shard.Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, ok := d.docs[docID]
	if !ok {
		return nil, cos.NewErrNotFound("document %d", docID)
	}
	return doc, nil
}

func (d *DB) AddDocument(doc *shard.Document) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	d.docs[id] = doc
	for _, term := range doc.Terms {
		d.terms[term]++
	}
	from := d.revision
	d.revision++
	d.changelog = append(d.changelog, changesetState{
		FromRevision: from,
		ToRevision:   d.revision,
		Docs:         map[uint64]*shard.Document{id: doc},
	})
	return id, nil
}

func (d *DB) ReplaceDocument(idOrTerm string, doc *shard.Document) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, existing := range d.docs {
		if matchesIDOrTerm(existing, idOrTerm) {
			d.docs[id] = doc
			from := d.revision
			d.revision++
			d.changelog = append(d.changelog, changesetState{
				FromRevision: from,
				ToRevision:   d.revision,
				Docs:         map[uint64]*shard.Document{id: doc},
			})
			return id, nil
		}
	}
	d.mu.Unlock()
	id, err := d.AddDocument(doc)
	d.mu.Lock()
	return id, err
}

func matchesIDOrTerm(doc *shard.Document, idOrTerm string) bool {
	for _, t := range doc.Terms {
		if t == idOrTerm {
			return true
		}
	}
	return false
}

func (d *DB) DeleteDocument(idOrTerm string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, existing := range d.docs {
		if matchesIDOrTerm(existing, idOrTerm) {
			delete(d.docs, id)
			d.revision++
			return nil
		}
	}
	return cos.NewErrNotFound("document matching %q", idOrTerm)
}

func (d *DB) Commit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.revision++
	return nil
}

func (d *DB) Cancel() error { return nil }

func (d *DB) BeginTransaction() error { return nil }

func (d *DB) GetMetadata(key string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.metadata[key]
	if !ok {
		return nil, cos.NewErrNotFound("metadata key %q", key)
	}
	return v, nil
}

func (d *DB) SetMetadata(key string, value []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.metadata[key] = value
	return nil
}

func (d *DB) MetadataKeys(prefix string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for k := range d.metadata {
		if len(prefix) == 0 || (len(k) >= len(prefix) && k[:len(prefix)] == prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (d *DB) AddSpelling(term string, freqDelta int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.terms[term] += uint64(freqDelta)
	return nil
}

func (d *DB) RemoveSpelling(term string, freqDelta int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.terms[term] > uint64(freqDelta) {
		d.terms[term] -= uint64(freqDelta)
	} else {
		delete(d.terms, term)
	}
	return nil
}

func (d *DB) AllTerms(prefix string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for t := range d.terms {
		if len(prefix) == 0 || (len(t) >= len(prefix) && t[:len(prefix)] == prefix) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (d *DB) TermExists(term string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.terms[term]
	return ok, nil
}

func (d *DB) TermFreq(term string) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.terms[term], nil
}

func (d *DB) ValueStats(int) (shard.ValueStats, error) { return shard.ValueStats{}, nil }

func (d *DB) CollFreq(term string) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.terms[term], nil
}

func (d *DB) Freqs(term string) (uint64, uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.terms[term], d.terms[term], nil
}

func (d *DB) TermList(docID uint64) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, ok := d.docs[docID]
	if !ok {
		return nil, cos.NewErrNotFound("document %d", docID)
	}
	return doc.Terms, nil
}

func (d *DB) PostList(term string) ([]uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []uint64
	for id, doc := range d.docs {
		if matchesIDOrTerm(doc, term) {
			out = append(out, id)
		}
	}
	return out, nil
}

func (d *DB) PositionList(docID uint64, term string) ([]uint64, error) {
	if _, err := d.TermList(docID); err != nil {
		return nil, err
	}
	return nil, nil
}

func (d *DB) PositionListCount(docID uint64, term string) (uint64, error) {
	pl, err := d.PositionList(docID, term)
	return uint64(len(pl)), err
}

func (d *DB) DocLength(docID uint64) (uint64, error) {
	terms, err := d.TermList(docID)
	return uint64(len(terms)), err
}

func (d *DB) UniqueTerms(docID uint64) (uint64, error) {
	terms, err := d.TermList(docID)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		seen[t] = struct{}{}
	}
	return uint64(len(seen)), nil
}

// PrepareQuery treats payload as a literal term to match against: every
// document containing that term is a hit, in PostList's order, which follows
// Go map iteration and is not stable between calls. This
// is a stand-in for the real query engine (out of scope, spec.md §1), just
// enough to exercise the MSG_QUERY/MSG_GETMSET round-trip end to end.
func (d *DB) PrepareQuery(payload []byte) ([]byte, shard.QueryStats, error) {
	hits, err := d.PostList(string(payload))
	if err != nil {
		return nil, shard.QueryStats{}, err
	}
	handle := append([]byte(nil), payload...)
	return handle, shard.QueryStats{Matches: uint64(len(hits)), MaxPossible: 1, MaxReceived: 1}, nil
}

func (d *DB) GetMSet(handle []byte, first, maxItems, checkAtLeast int) (shard.MSet, error) {
	hits, err := d.PostList(string(handle))
	if err != nil {
		return shard.MSet{}, err
	}
	ms := shard.MSet{Firstitem: uint64(first), Matches: uint64(len(hits)), MaxPossible: 1, MaxAttained: 1}
	for i := first; i < len(hits) && (maxItems < 0 || len(ms.Items) < maxItems); i++ {
		ms.Items = append(ms.Items, shard.MSetItem{DocID: hits[i], Weight: 1, Rank: uint64(i)})
	}
	return ms, nil
}

// snapshotState/changesetState mirror just enough of DB's fields to
// round-trip through encoding/gob for replication transfer -- the mock
// engine's stand-in for the real engine's on-disk snapshot/WAL files
// (spec.md §4.I), kept as plain Go values since there is no real index
// format to serialize here.
type snapshotState struct {
	Revision uint64
	NextID   uint64
	Metadata map[string][]byte
	Docs     map[uint64]*shard.Document
	Terms    map[string]uint64
	UUID     string
}

type changesetState struct {
	FromRevision uint64
	ToRevision   uint64
	Docs         map[uint64]*shard.Document
	Metadata     map[string][]byte
}

// SnapshotFiles serializes the database's entire current state to one temp
// file and returns its path, standing in for the real engine's directory of
// index files (spec.md §4.I step 1).
func (d *DB) SnapshotFiles() ([]string, error) {
	d.mu.Lock()
	st := snapshotState{
		Revision: d.revision,
		NextID:   d.nextID,
		Metadata: d.metadata,
		Docs:     d.docs,
		Terms:    d.terms,
		UUID:     d.uuid,
	}
	d.mu.Unlock()

	f, err := os.CreateTemp("", "xapiand-snapshot-*")
	if err != nil {
		return nil, cos.NewErrSerialisation("snapshot temp file: %v", err)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(st); err != nil {
		return nil, cos.NewErrSerialisation("snapshot encode: %v", err)
	}
	return []string{f.Name()}, nil
}

// Changesets replays the mock's append-only changeset log between the two
// revisions, writing one temp file per logged revision boundary.
func (d *DB) Changesets(fromRevision, toRevision uint64) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var paths []string
	for _, cs := range d.changelog {
		if cs.FromRevision < fromRevision || cs.ToRevision > toRevision {
			continue
		}
		f, err := os.CreateTemp("", "xapiand-changeset-*")
		if err != nil {
			return nil, cos.NewErrSerialisation("changeset temp file: %v", err)
		}
		err = gob.NewEncoder(f).Encode(cs)
		f.Close()
		if err != nil {
			return nil, cos.NewErrSerialisation("changeset encode: %v", err)
		}
		paths = append(paths, f.Name())
	}
	return paths, nil
}

// ApplySnapshot replaces this (switch-in) database's state from a file
// produced by SnapshotFiles.
func (d *DB) ApplySnapshot(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return cos.NewErrSerialisation("snapshot open: %v", err)
	}
	defer f.Close()
	var st snapshotState
	if err := gob.NewDecoder(f).Decode(&st); err != nil {
		return cos.NewErrSerialisation("snapshot decode: %v", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.revision = st.Revision
	d.nextID = st.NextID
	d.metadata = st.Metadata
	if d.metadata == nil {
		d.metadata = make(map[string][]byte)
	}
	d.docs = st.Docs
	if d.docs == nil {
		d.docs = make(map[uint64]*shard.Document)
	}
	d.terms = st.Terms
	if d.terms == nil {
		d.terms = make(map[string]uint64)
	}
	d.uuid = st.UUID
	return nil
}

// ApplyChangeset replays one changeset file against this (switch-in)
// database, merging its documents/metadata and advancing the revision.
func (d *DB) ApplyChangeset(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return cos.NewErrSerialisation("changeset open: %v", err)
	}
	defer f.Close()
	var cs changesetState
	if err := gob.NewDecoder(f).Decode(&cs); err != nil {
		return cos.NewErrSerialisation("changeset decode: %v", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, doc := range cs.Docs {
		d.docs[id] = doc
		if id >= d.nextID {
			d.nextID = id
		}
		for _, term := range doc.Terms {
			d.terms[term]++
		}
	}
	for k, v := range cs.Metadata {
		d.metadata[k] = v
	}
	d.revision = cs.ToRevision
	return nil
}

func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
