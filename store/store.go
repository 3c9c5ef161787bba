// Copyright (c) 2024 EverX Labs
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package store persists cells by their representation hash in LevelDB,
// fronted by an LRU read cache. It implements the by-hash cell loader used
// to resolve pruned branches of very large shard states without holding the
// whole state in memory.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/everx-labs/ever-block-go/boc"
	"github.com/everx-labs/ever-block-go/cell"
	"github.com/everx-labs/ever-block-go/common"
)

// cellKeyPrefix separates cell records from any future table space.
const cellKeyPrefix = 'C'

// DefaultCacheSize is the number of decoded cells the read cache retains.
const DefaultCacheSize = 1 << 16

// Store is a persistent by-hash cell store. It is safe for concurrent use:
// LevelDB and the cache synchronize internally and cells are immutable.
type Store struct {
	db    *leveldb.DB
	cache *lru.Cache
}

var _ boc.Loader = (*Store)(nil)

// Open opens (or creates) a cell store under the given directory.
func Open(path string) (*Store, error) {
	return OpenWithOptions(path, DefaultCacheSize, nil)
}

// OpenWithOptions opens a cell store with an explicit cache capacity and
// LevelDB options.
func OpenWithOptions(path string, cacheSize int, options *opt.Options) (*Store, error) {
	db, err := leveldb.OpenFile(path, options)
	if err != nil {
		return nil, fmt.Errorf("failed to open cell store: %w", err)
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, cache: cache}, nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put persists the cell and every cell reachable from it. Records are keyed
// by representation hash, so shared subtrees are written once.
func (s *Store) Put(root *cell.Cell) error {
	batch := new(leveldb.Batch)
	visited := map[common.Hash]struct{}{}
	s.putRec(root, batch, visited)
	return s.db.Write(batch, nil)
}

func (s *Store) putRec(c *cell.Cell, batch *leveldb.Batch, visited map[common.Hash]struct{}) {
	hash := c.Hash()
	if _, done := visited[hash]; done {
		return
	}
	visited[hash] = struct{}{}
	for i := 0; i < c.RefsCount(); i++ {
		s.putRec(c.Ref(i), batch, visited)
	}
	batch.Put(cellKey(hash), encodeRecord(c))
}

// Has reports whether a cell with the given hash is stored.
func (s *Store) Has(hash common.Hash) (bool, error) {
	if s.cache.Contains(hash) {
		return true, nil
	}
	return s.db.Has(cellKey(hash), nil)
}

// Load reconstructs the cell with the given hash, resolving its references
// transitively. It returns a cell-not-found error for unknown hashes.
func (s *Store) Load(hash common.Hash) (*cell.Cell, error) {
	if cached, hit := s.cache.Get(hash); hit {
		return cached.(*cell.Cell), nil
	}

	record, err := s.db.Get(cellKey(hash), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", common.ErrNotFound, hash)
		}
		return nil, err
	}
	c, err := s.decodeRecord(record)
	if err != nil {
		return nil, err
	}
	if got := c.Hash(); got != hash {
		return nil, fmt.Errorf("%w: stored cell hashes to %v, keyed as %v", common.ErrFormat, got, hash)
	}
	s.cache.Add(hash, c)
	return c, nil
}

func cellKey(hash common.Hash) []byte {
	key := make([]byte, 1+len(hash))
	key[0] = cellKeyPrefix
	copy(key[1:], hash[:])
	return key
}

// Record layout: type byte, 2-byte big-endian bit count, data bytes,
// reference count byte, 32 bytes per referenced hash.
func encodeRecord(c *cell.Cell) []byte {
	data := c.Data()
	record := make([]byte, 0, 4+len(data)+32*c.RefsCount())
	record = append(record, byte(c.Type()))
	record = binary.BigEndian.AppendUint16(record, uint16(c.Bits()))
	record = append(record, data...)
	record = append(record, byte(c.RefsCount()))
	for i := 0; i < c.RefsCount(); i++ {
		hash := c.Ref(i).Hash()
		record = append(record, hash[:]...)
	}
	return record
}

func (s *Store) decodeRecord(record []byte) (*cell.Cell, error) {
	if len(record) < 4 {
		return nil, fmt.Errorf("%w: cell record of %d bytes", common.ErrFormat, len(record))
	}
	typ := cell.Type(record[0])
	bits := int(binary.BigEndian.Uint16(record[1:3]))
	dataLen := (bits + 7) / 8
	if len(record) < 3+dataLen+1 {
		return nil, fmt.Errorf("%w: truncated cell record", common.ErrFormat)
	}
	data := record[3 : 3+dataLen]
	refCount := int(record[3+dataLen])
	refsData := record[3+dataLen+1:]
	if len(refsData) != 32*refCount {
		return nil, fmt.Errorf("%w: cell record with %d reference bytes, wanted %d", common.ErrFormat, len(refsData), 32*refCount)
	}

	b := cell.NewBuilder()
	if err := b.StoreBits(data, bits); err != nil {
		return nil, err
	}
	for i := 0; i < refCount; i++ {
		hash, err := common.HashFromBytes(refsData[32*i : 32*(i+1)])
		if err != nil {
			return nil, err
		}
		ref, err := s.Load(hash)
		if err != nil {
			return nil, fmt.Errorf("failed to load reference %v: %w", hash, err)
		}
		if err := b.StoreRef(ref); err != nil {
			return nil, err
		}
	}
	if typ.IsExotic() {
		return b.FinalizeExotic()
	}
	return b.Finalize()
}
