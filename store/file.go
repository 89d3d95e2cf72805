package store

import "os"

// rawFile is the Raw File I/O component (spec §2 #1): positional
// read/write/truncate over an OS file handle. It carries no buffering or
// transaction logic of its own; BufferedFile layers those on top.
type rawFile struct {
	f    *os.File
	path string
}

func openRawFile(path string) (*rawFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	return &rawFile{f: f, path: path}, nil
}

func (r *rawFile) readAt(buf []byte, offset int64) (int, error) {
	return r.f.ReadAt(buf, offset)
}

func (r *rawFile) writeAt(buf []byte, offset int64) (int, error) {
	return r.f.WriteAt(buf, offset)
}

func (r *rawFile) size() (int64, error) {
	fi, err := r.f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func (r *rawFile) truncate(n int64) error {
	return r.f.Truncate(n)
}

func (r *rawFile) sync() error {
	return r.f.Sync()
}

func (r *rawFile) close() error {
	return r.f.Close()
}
