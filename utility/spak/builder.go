// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package spak

import (
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/pierrec/lz4"
)

// NewBuilder creates a new Builder. Do not fill the Index in
// the header, it will be overwritten anyway.
func NewBuilder(header Header) *Builder {
	if header.DateCreated == 0 {
		header.DateCreated = time.Now().Unix()
	}
	return &Builder{header: header}
}

type pendingFile struct {

	// Name is the name the file will carry in the index
	Name string

	// Size in uncompressed state
	Size int64

	Compressed []byte
}

// Builder is the high level builder for the archive format.
// Archives are versioned and cannot be appended to, this Builder
// is the way to create one. Whenever Add is called the data is
// compressed immediately and held until WriteTo bundles everything
// into a ready to use archive.
type Builder struct {
	io.WriterTo

	header Header

	mutex sync.Mutex
	files []pendingFile
}

// Add appends data to the builder with a given name.
// Will block until lz4 finishes compression. Is safe
// to use concurrently in different goroutines.
func (b *Builder) Add(name string, data []byte) error {
	var compressed bytes.Buffer
	writer := lz4.NewWriter(&compressed)
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.files = append(b.files, pendingFile{
		Name:       name,
		Size:       int64(len(data)),
		Compressed: compressed.Bytes(),
	})
	return nil
}

// WriteTo bundles and writes all of the files added to the Builder
// into a spak archive that is ready to use.
func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	header := b.header
	header.Index = nil

	// Offsets count from the end of the header, so the index can be
	// filled before the header size is known.
	var offset int64
	for _, f := range b.files {
		header.Index = append(header.Index, IndexEntry{
			Name:           f.Name,
			Offset:         offset,
			Size:           f.Size,
			CompressedSize: int64(len(f.Compressed)),
		})
		offset += int64(len(f.Compressed))
	}

	rawHeader, err := gobEncode(header)
	if err != nil {
		return 0, err
	}

	var written int64
	for _, chunk := range [][]byte{magic[:], headerSizeToBinary(int64(len(rawHeader))), rawHeader} {
		n, err := w.Write(chunk)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	for _, f := range b.files {
		n, err := w.Write(f.Compressed)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}
