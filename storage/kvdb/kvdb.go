// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package kvdb wraps the on-disk key-value engine behind the narrow
// contract the chain stores rely on: point reads and writes, atomic
// batched transactions and ordered prefix walks.
package kvdb

import (
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("kvdb: key not found")

// IsNotFound reports whether err means a missing key.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// DB is a handle to one key-value store.
type DB struct {
	ldb *leveldb.DB
}

// Open opens (creating if needed) the store at path.
func Open(path string) (*DB, error) {
	options := &opt.Options{
		Compression: opt.NoCompression,
		Filter:      filter.NewBloomFilter(10),
	}
	ldb, err := leveldb.OpenFile(path, options)
	if err != nil {
		ldb, err = leveldb.RecoverFile(path, options)
		if err != nil {
			return nil, errors.WithStack(err)
		}
	}
	return &DB{ldb: ldb}, nil
}

// Close releases the store.
func (db *DB) Close() error {
	return errors.WithStack(db.ldb.Close())
}

// Get returns the value stored at key, or ErrNotFound.
func (db *DB) Get(key []byte) ([]byte, error) {
	value, err := db.ldb.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "key %x", key)
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return value, nil
}

// Has reports whether key exists.
func (db *DB) Has(key []byte) (bool, error) {
	has, err := db.ldb.Has(key, nil)
	return has, errors.WithStack(err)
}

// Put stores value at key. When overwrite is false an existing key is
// left untouched and the call reports false.
func (db *DB) Put(key, value []byte, overwrite bool) (bool, error) {
	if !overwrite {
		has, err := db.Has(key)
		if err != nil {
			return false, err
		}
		if has {
			return false, nil
		}
	}
	if err := db.ldb.Put(key, value, &opt.WriteOptions{Sync: true}); err != nil {
		return false, errors.WithStack(err)
	}
	return true, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (db *DB) Delete(key []byte) error {
	return errors.WithStack(db.ldb.Delete(key, &opt.WriteOptions{Sync: true}))
}

// Walk calls visitor for every key with the given prefix in ascending key
// order. Returning false from the visitor stops the walk.
func (db *DB) Walk(prefix []byte, visitor func(key, value []byte) bool) error {
	iter := db.ldb.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	for iter.Next() {
		key := append([]byte(nil), iter.Key()...)
		value := append([]byte(nil), iter.Value()...)
		if !visitor(key, value) {
			break
		}
	}
	return errors.WithStack(iter.Error())
}

// Transaction is a set of staged mutations committed atomically. A
// crash between Begin and Commit leaves the store unchanged.
type Transaction struct {
	db    *DB
	batch *leveldb.Batch
	done  bool
}

// Begin starts a transaction.
func (db *DB) Begin() *Transaction {
	return &Transaction{db: db, batch: new(leveldb.Batch)}
}

// Put stages a write.
func (txn *Transaction) Put(key, value []byte) error {
	if txn.done {
		return errors.New("kvdb: transaction already finished")
	}
	txn.batch.Put(key, value)
	return nil
}

// Delete stages a removal.
func (txn *Transaction) Delete(key []byte) error {
	if txn.done {
		return errors.New("kvdb: transaction already finished")
	}
	txn.batch.Delete(key)
	return nil
}

// Commit applies every staged mutation in one durable write.
func (txn *Transaction) Commit() error {
	if txn.done {
		return errors.New("kvdb: transaction already finished")
	}
	txn.done = true
	return errors.WithStack(txn.db.ldb.Write(txn.batch, &opt.WriteOptions{Sync: true}))
}

// Abort discards the staged mutations.
func (txn *Transaction) Abort() {
	txn.done = true
	txn.batch.Reset()
}
