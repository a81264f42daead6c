// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package spak is an api for an lz4 backed shader pack format.
// Its purpose is to ship compiled shaders next to the binary without
// scattering loose files. The archive itself is not compressed in any
// form, rather every file is individually compressed, so it can be
// read from its place and decompressed on the fly without touching
// the rest. The index is read once on open, after that reads can
// happen concurrently.
package spak

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
)

// package errors
var (
	ErrFileFormat = errors.New("corrupted or not a spak archive")
	ErrNotFound   = errors.New("no file with that name in the archive")
)

// Sizes relevant to the header of file
const (
	MagicLength            = 4
	HeaderSizeNumberLength = 8
)

var magic = [MagicLength]byte{'S', 'P', 'K', '\x00'}

// IndexEntry is info for one file in the file index. Offset counts
// from the end of the header, not the start of the file.
type IndexEntry struct {
	Name           string
	Offset         int64
	Size           int64
	CompressedSize int64
}

// Header is the file header for spak files.
type Header struct {
	Author      string
	DateCreated int64
	Version     int64
	Index       []IndexEntry
}

func gobEncode(data interface{}) ([]byte, error) {
	var encoded bytes.Buffer
	enc := gob.NewEncoder(&encoded)
	if err := enc.Encode(data); err != nil {
		return nil, err
	}
	return encoded.Bytes(), nil
}

func gobDecode(obj interface{}, bts []byte) error {
	return gob.NewDecoder(bytes.NewBuffer(bts)).Decode(obj)
}

func headerSizeToBinary(size int64) []byte {
	bts := make([]byte, HeaderSizeNumberLength)
	binary.LittleEndian.PutUint64(bts, uint64(size))
	return bts
}

func binaryToHeaderSize(bts []byte) int64 {
	return int64(binary.LittleEndian.Uint64(bts))
}
