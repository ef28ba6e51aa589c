package lsm

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/crystaldb/lsmkv/common"
	"github.com/zhangyunhao116/skipmap"
)

// WAL is the write-ahead log backing one memtable. Records are append-only
// and use the bit-exact layout from spec §6:
//
//	u32le key_len ‖ key ‖ u32le value_len ‖ value
//
// A zero-length value records a tombstone, same as in the memtable and SST
// formats.
type WAL struct {
	file *os.File
}

// CreateWAL creates a new, empty WAL file at path.
func CreateWAL(path string) (*WAL, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("create wal %s: %w", path, err)
	}
	return &WAL{file: file}, nil
}

// Put appends one record.
func (w *WAL) Put(key, value []byte) error {
	record := make([]byte, 0, 8+len(key)+len(value))
	var tmp [4]byte

	binary.LittleEndian.PutUint32(tmp[:], uint32(len(key)))
	record = append(record, tmp[:]...)
	record = append(record, key...)
	binary.LittleEndian.PutUint32(tmp[:], uint32(len(value)))
	record = append(record, tmp[:]...)
	record = append(record, value...)

	if _, err := w.file.Write(record); err != nil {
		return fmt.Errorf("append wal record: %w", err)
	}
	return nil
}

// Sync flushes the WAL to stable storage.
func (w *WAL) Sync() error {
	return w.file.Sync()
}

// Close closes the underlying file.
func (w *WAL) Close() error {
	if w.file == nil {
		return nil
	}
	return w.file.Close()
}

// RecoverWAL replays path's records into skl in log order, then returns a
// handle open for further appends. Used at startup to rebuild a memtable
// whose WAL survived a crash (spec §4.4).
func RecoverWAL(path string, skl *skipmap.FuncMap[[]byte, []byte]) (*WAL, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open wal %s: %w", path, err)
	}

	r := bufio.NewReader(file)
	var lenBuf [4]byte
	for {
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("recover wal %s: %w: %v", path, common.ErrCorrupted, err)
		}
		keyLen := binary.LittleEndian.Uint32(lenBuf[:])
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(r, key); err != nil {
			return nil, fmt.Errorf("recover wal %s: %w: %v", path, common.ErrCorrupted, err)
		}

		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return nil, fmt.Errorf("recover wal %s: %w: %v", path, common.ErrCorrupted, err)
		}
		valLen := binary.LittleEndian.Uint32(lenBuf[:])
		value := make([]byte, valLen)
		if _, err := io.ReadFull(r, value); err != nil {
			return nil, fmt.Errorf("recover wal %s: %w: %v", path, common.ErrCorrupted, err)
		}

		skl.Store(key, value)
	}

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return nil, fmt.Errorf("recover wal %s: %w", path, err)
	}
	return &WAL{file: file}, nil
}
