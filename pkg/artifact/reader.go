package artifact

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/andybalholm/brotli"
	"github.com/rotisserie/eris"
)

// Reader opens .cart bundles for listing and extraction.
type Reader struct {
	hdl  *os.File
	root *folder
}

// OpenReader parses the bundle index at the given path.
func OpenReader(filename string) (*Reader, error) {
	hdl, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	header := make([]byte, 16)
	_, err = io.ReadFull(hdl, header)
	if err != nil {
		hdl.Close()
		return nil, eris.Wrapf(err, "failed to read header of %s", filename)
	}

	if string(header[:4]) != "CART" {
		hdl.Close()
		return nil, eris.Errorf("%s is not a cart bundle", filename)
	}

	version := binary.LittleEndian.Uint32(header[4:8])
	if version != formatVersion {
		hdl.Close()
		return nil, eris.Errorf("unsupported bundle version %d in %s", version, filename)
	}

	tocOffset := binary.LittleEndian.Uint32(header[8:12])
	itemCount := binary.LittleEndian.Uint32(header[12:16])

	_, err = hdl.Seek(int64(tocOffset), io.SeekStart)
	if err != nil {
		hdl.Close()
		return nil, err
	}

	root, err := readDirectoryEntries(hdl, itemCount)
	if err != nil {
		hdl.Close()
		return nil, eris.Wrapf(err, "failed to read index of %s", filename)
	}

	return &Reader{hdl: hdl, root: root}, nil
}

func readDirectoryEntries(hdl *os.File, itemCount uint32) (*folder, error) {
	root := newFolder()
	stack := []*folder{root}
	buffer := make([]byte, 14)
	nameBuffer := make([]byte, 0, 256)

	for i := uint32(0); i < itemCount; i++ {
		_, err := io.ReadFull(hdl, buffer)
		if err != nil {
			return nil, err
		}

		offset := int32(binary.LittleEndian.Uint32(buffer[:4]))
		size := int32(binary.LittleEndian.Uint32(buffer[4:8]))
		decSize := int32(binary.LittleEndian.Uint32(buffer[8:12]))
		nameLen := binary.LittleEndian.Uint16(buffer[12:14])

		if cap(nameBuffer) < int(nameLen) {
			nameBuffer = make([]byte, nameLen)
		}
		nameBuffer = nameBuffer[:nameLen]
		_, err = io.ReadFull(hdl, nameBuffer)
		if err != nil {
			return nil, err
		}
		name := string(nameBuffer)

		current := stack[len(stack)-1]
		if offset == 0 && size == 0 && decSize == 0 {
			if name == ".." {
				if len(stack) < 2 {
					return nil, eris.New("unbalanced directory index")
				}
				stack = stack[:len(stack)-1]
				continue
			}

			sub := newFolder()
			current.folders[name] = sub
			stack = append(stack, sub)
			continue
		}

		current.files[name] = &entry{offset: offset, size: size, decSize: decSize}
	}

	if len(stack) != 1 {
		return nil, eris.New("unbalanced directory index")
	}
	return root, nil
}

// List returns every file in the bundle as a slash-separated path, sorted.
func (r *Reader) List() []string {
	result := []string{}
	listFolder(r.root, "", &result)
	sort.Strings(result)
	return result
}

func listFolder(dir *folder, prefix string, result *[]string) {
	for name := range dir.files {
		*result = append(*result, prefix+name)
	}
	for name, sub := range dir.folders {
		listFolder(sub, prefix+name+"/", result)
	}
}

// Extract unpacks the whole bundle below dest.
func (r *Reader) Extract(dest string) error {
	return r.extractFolder(r.root, dest)
}

func (r *Reader) extractFolder(dir *folder, dest string) error {
	err := os.MkdirAll(dest, os.FileMode(0770))
	if err != nil {
		return eris.Wrapf(err, "failed to create directory %s", dest)
	}

	for name, file := range dir.files {
		err = r.extractFile(file, filepath.Join(dest, name))
		if err != nil {
			return err
		}
	}

	for name, sub := range dir.folders {
		err = r.extractFolder(sub, filepath.Join(dest, name))
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *Reader) extractFile(file *entry, dest string) error {
	_, err := r.hdl.Seek(int64(file.offset), io.SeekStart)
	if err != nil {
		return err
	}

	destHandle, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "failed to create file %s", dest)
	}
	defer destHandle.Close()

	compressed := io.LimitReader(r.hdl, int64(file.size))
	written, err := io.Copy(destHandle, brotli.NewReader(compressed))
	if err != nil {
		return eris.Wrapf(err, "failed to decompress %s", dest)
	}

	if written != int64(file.decSize) {
		return eris.Errorf("%s is %d bytes but the index recorded %d", dest, written, file.decSize)
	}

	return nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.hdl.Close()
}
