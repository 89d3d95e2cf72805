package store

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
)

// translog implements the commit log described in spec §4.1/§6.5: a
// side file (path + ".log") that makes a transaction's dirty pages
// durable before they are copied into the main file, so a crash between
// the two never leaves a partially-applied commit visible.
//
// Layout: [magic(4)][version(4)] then zero or more page records
// {type(1), offset(8), length(4), bytes, crc32(4)}, terminated by a
// completion marker record {type(1), 4 zero bytes, crc32(4)}. A log missing its completion marker is incomplete and
// is discarded without replay.
const (
	translogMagic      = "ABLG"
	translogVersion    = 1
	translogHeaderSize = 8

	translogRecordPage       = 1
	translogRecordCompletion = 2
)

func translogPath(dbPath string) string {
	return dbPath + ".log"
}

// writeTranslog writes pages to a fresh log file at path and fsyncs it,
// including the trailing completion marker, before returning. The log is
// self-contained: replaying it requires nothing but the main file.
func writeTranslog(path string, pages []*page) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("store: create log: %w", err)
	}
	defer f.Close()

	header := make([]byte, translogHeaderSize)
	copy(header[:4], translogMagic)
	binary.LittleEndian.PutUint32(header[4:8], translogVersion)
	if _, err := f.Write(header); err != nil {
		return fmt.Errorf("store: write log header: %w", err)
	}

	for _, p := range pages {
		if err := writeTranslogPageRecord(f, p); err != nil {
			return err
		}
	}

	if err := writeTranslogCompletion(f); err != nil {
		return err
	}

	return f.Sync()
}

func writeTranslogPageRecord(w io.Writer, p *page) error {
	buf := make([]byte, 1+8+4, 1+8+4+pageSize+4)
	buf[0] = translogRecordPage
	binary.LittleEndian.PutUint64(buf[1:9], p.offset)
	binary.LittleEndian.PutUint32(buf[9:13], uint32(p.length))
	buf = append(buf, p.data[:p.length]...)
	buf = binary.LittleEndian.AppendUint32(buf, crc32.ChecksumIEEE(buf))
	_, err := w.Write(buf)
	if err != nil {
		return fmt.Errorf("store: write log record: %w", err)
	}
	return nil
}

func writeTranslogCompletion(w io.Writer) error {
	buf := []byte{translogRecordCompletion, 0, 0, 0, 0}
	buf = binary.LittleEndian.AppendUint32(buf, crc32.ChecksumIEEE(buf))
	_, err := w.Write(buf)
	if err != nil {
		return fmt.Errorf("store: write log completion marker: %w", err)
	}
	return nil
}

type translogPageRecord struct {
	offset uint64
	data   []byte
}

// readTranslog parses path, returning the page records it contains and
// whether a completion marker was found. A malformed header, a
// truncated record, or a checksum mismatch is reported as "incomplete"
// (ok=false) rather than an error: per spec §4.1/§7, a corrupt log is
// deleted and ignored, not treated as a fatal condition.
func readTranslog(path string) (records []translogPageRecord, ok bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	if len(data) < translogHeaderSize || string(data[:4]) != translogMagic {
		return nil, false, nil
	}
	if binary.LittleEndian.Uint32(data[4:8]) != translogVersion {
		return nil, false, nil
	}

	buf := data[translogHeaderSize:]
	for len(buf) > 0 {
		if len(buf) < 5 {
			return nil, false, nil
		}
		recType := buf[0]

		if recType == translogRecordCompletion {
			if len(buf) < 9 {
				return nil, false, nil
			}
			if crc32.ChecksumIEEE(buf[:5]) != binary.LittleEndian.Uint32(buf[5:9]) {
				return nil, false, nil
			}
			return records, true, nil
		}

		if recType != translogRecordPage || len(buf) < 13 {
			return nil, false, nil
		}
		offset := binary.LittleEndian.Uint64(buf[1:9])
		length := binary.LittleEndian.Uint32(buf[9:13])
		recSize := 13 + int(length) + 4
		if len(buf) < recSize {
			return nil, false, nil
		}
		if crc32.ChecksumIEEE(buf[:13+length]) != binary.LittleEndian.Uint32(buf[13+length:recSize]) {
			return nil, false, nil
		}

		pageData := make([]byte, length)
		copy(pageData, buf[13:13+length])
		records = append(records, translogPageRecord{offset: offset, data: pageData})

		buf = buf[recSize:]
	}
	// Ran off the end without a completion marker.
	return nil, false, nil
}
