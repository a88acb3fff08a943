// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package blockfile implements the append-only time-series store holding
// serialized block bodies. Each record is framed with a 4-byte magic and
// a 4-byte length; files roll at a size cap and are named by ordinal. A
// record's (file, offset) locator is immutable once published, so readers
// are safe against concurrent appends.
package blockfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/bigbangcore/bigbang/core/types"
	"github.com/pkg/errors"
)

// Magic marks the start of every stored record.
const Magic uint32 = 0x8f90a1b2

// MaxFileSize is the roll-over threshold of a single data file.
const MaxFileSize = 128 * 1024 * 1024

const headerSize = 8

// Store is an append-only block body store.
type Store struct {
	mtx      sync.Mutex
	dir      string
	lastFile uint32
	writer   *os.File
}

func fileName(dir string, ordinal uint32) string {
	return filepath.Join(dir, fmt.Sprintf("block_%06d.dat", ordinal))
}

// Open opens the store rooted at dir, creating it if needed, and resumes
// appending to the highest existing file.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.WithStack(err)
	}
	store := &Store{dir: dir, lastFile: 1}
	for {
		if _, err := os.Stat(fileName(dir, store.lastFile+1)); err != nil {
			break
		}
		store.lastFile++
	}
	writer, err := os.OpenFile(fileName(dir, store.lastFile),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	store.writer = writer
	return store, nil
}

// Close releases the write handle.
func (s *Store) Close() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.writer == nil {
		return nil
	}
	err := s.writer.Close()
	s.writer = nil
	return errors.WithStack(err)
}

// Write appends a block body and returns its locator. The offset points
// at the body, past the frame header.
func (s *Store) Write(block *types.BlockEx) (file uint32, offset uint32, err error) {
	var body bytes.Buffer
	if err := block.Serialize(&body); err != nil {
		return 0, 0, err
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.writer == nil {
		return 0, 0, errors.New("blockfile: store is closed")
	}

	stat, err := s.writer.Stat()
	if err != nil {
		return 0, 0, errors.WithStack(err)
	}
	if stat.Size()+int64(headerSize+body.Len()) > MaxFileSize {
		if err := s.roll(); err != nil {
			return 0, 0, err
		}
		stat, err = s.writer.Stat()
		if err != nil {
			return 0, 0, errors.WithStack(err)
		}
	}

	var header [headerSize]byte
	binary.LittleEndian.PutUint32(header[:4], Magic)
	binary.LittleEndian.PutUint32(header[4:], uint32(body.Len()))
	if _, err := s.writer.Write(header[:]); err != nil {
		return 0, 0, errors.WithStack(err)
	}
	if _, err := s.writer.Write(body.Bytes()); err != nil {
		return 0, 0, errors.WithStack(err)
	}
	if err := s.writer.Sync(); err != nil {
		return 0, 0, errors.WithStack(err)
	}
	return s.lastFile, uint32(stat.Size()) + headerSize, nil
}

func (s *Store) roll() error {
	if err := s.writer.Close(); err != nil {
		return errors.WithStack(err)
	}
	writer, err := os.OpenFile(fileName(s.dir, s.lastFile+1),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return errors.WithStack(err)
	}
	s.lastFile++
	s.writer = writer
	return nil
}

// Read loads the block body at the given locator.
func (s *Store) Read(file uint32, offset uint32) (*types.BlockEx, error) {
	handle, err := os.Open(fileName(s.dir, file))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer handle.Close()

	var header [headerSize]byte
	if _, err := handle.ReadAt(header[:], int64(offset)-headerSize); err != nil {
		return nil, errors.WithStack(err)
	}
	if binary.LittleEndian.Uint32(header[:4]) != Magic {
		return nil, errors.Errorf("blockfile: bad magic at file %d offset %d", file, offset)
	}
	length := binary.LittleEndian.Uint32(header[4:])
	if length > types.MaxBlockSize+types.MaxBlockSize/2 {
		return nil, errors.Errorf("blockfile: oversized record of %d bytes", length)
	}

	body := make([]byte, length)
	if _, err := handle.ReadAt(body, int64(offset)); err != nil {
		return nil, errors.WithStack(err)
	}
	block := new(types.BlockEx)
	if err := block.Deserialize(bytes.NewReader(body)); err != nil {
		return nil, err
	}
	return block, nil
}

// WalkBlocks replays every stored record in append order, across files.
// The repair path rebuilds the derived stores from this walk.
func (s *Store) WalkBlocks(visitor func(block *types.BlockEx, file, offset uint32) bool) error {
	for ordinal := uint32(1); ; ordinal++ {
		handle, err := os.Open(fileName(s.dir, ordinal))
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return errors.WithStack(err)
		}
		offset := int64(0)
		for {
			var header [headerSize]byte
			if _, err := handle.ReadAt(header[:], offset); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				handle.Close()
				return errors.WithStack(err)
			}
			if binary.LittleEndian.Uint32(header[:4]) != Magic {
				break
			}
			length := binary.LittleEndian.Uint32(header[4:])
			body := make([]byte, length)
			if _, err := handle.ReadAt(body, offset+headerSize); err != nil {
				handle.Close()
				return errors.WithStack(err)
			}
			block := new(types.BlockEx)
			if err := block.Deserialize(bytes.NewReader(body)); err != nil {
				handle.Close()
				return err
			}
			if !visitor(block, ordinal, uint32(offset)+headerSize) {
				handle.Close()
				return nil
			}
			offset += headerSize + int64(length)
		}
		handle.Close()
	}
}
