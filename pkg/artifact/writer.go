// Package artifact implements the .cart bundle format used to collect job
// logs and build outputs after a run. Entries are brotli-compressed and
// indexed by a directory table at the end of the file.
package artifact

import (
	"encoding/binary"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"

	"github.com/andybalholm/brotli"
	"github.com/rotisserie/eris"
)

const formatVersion = 1

// entry contains the metadata for a file entry
type entry struct {
	offset  int32
	size    int32
	decSize int32
}

// folder contains an index of the available sub-folders and files
type folder struct {
	folders map[string]*folder
	files   map[string]*entry
}

func newFolder() *folder {
	return &folder{
		folders: map[string]*folder{},
		files:   map[string]*entry{},
	}
}

// Writer can write .cart bundles
type Writer struct {
	hdl      *os.File
	root     *folder
	dirStack []*folder
	current  *folder
	buffer   []byte
}

// NewWriter creates a new Writer instance and opens it for writing
func NewWriter(filename string) (*Writer, error) {
	hdl, err := os.Create(filename)
	if err != nil {
		return nil, err
	}

	root := newFolder()
	dirStack := make([]*folder, 1)
	dirStack[0] = root

	// skip the header which consists of 4 chars and 3 int32s
	_, err = hdl.Seek(int64(4+12), io.SeekStart)
	if err != nil {
		hdl.Close()
		return nil, err
	}

	return &Writer{
		hdl:      hdl,
		root:     root,
		dirStack: dirStack,
		current:  root,
		buffer:   make([]byte, 4096),
	}, nil
}

// OpenDirectory creates a new directory entry. Anything created until the next CloseDirectory() call will be created
// inside this directory.
func (w *Writer) OpenDirectory(dirname string) error {
	dir := newFolder()

	w.current.folders[dirname] = dir
	w.dirStack = append(w.dirStack, dir)
	w.current = dir

	return nil
}

// CloseDirectory closes the directory that was last opened
func (w *Writer) CloseDirectory() error {
	stackLen := len(w.dirStack)
	if stackLen < 2 {
		return eris.New("no directory left on stack")
	}

	w.dirStack = w.dirStack[:stackLen-1]
	w.current = w.dirStack[stackLen-2]
	return nil
}

// WriteFile creates a new file in the current bundle directory
func (w *Writer) WriteFile(filename string, reader io.Reader) error {
	item := new(entry)
	offset, err := w.hdl.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}

	item.offset = int32(offset)
	brw := brotli.NewWriterLevel(w.hdl, brotli.BestCompression)

	decSize, err := io.CopyBuffer(brw, reader, w.buffer)
	if err != nil {
		return err
	}

	err = brw.Close()
	if err != nil {
		return err
	}

	newPos, err := w.hdl.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}

	item.size = int32(newPos - offset)
	item.decSize = int32(decSize)
	w.current.files[filename] = item

	return nil
}

// AddTree recursively adds the given directory's contents to the current
// bundle directory, in lexical order.
func (w *Writer) AddTree(dir string) error {
	items, err := ioutil.ReadDir(dir)
	if err != nil {
		return eris.Wrapf(err, "failed to read %s", dir)
	}

	sort.Slice(items, func(a, b int) bool { return items[a].Name() < items[b].Name() })
	for _, item := range items {
		itemPath := filepath.Join(dir, item.Name())
		if item.IsDir() {
			err = w.OpenDirectory(item.Name())
			if err != nil {
				return err
			}

			err = w.AddTree(itemPath)
			if err != nil {
				return err
			}

			err = w.CloseDirectory()
			if err != nil {
				return err
			}
			continue
		}

		if !item.Mode().IsRegular() {
			continue
		}

		hdl, err := os.Open(itemPath)
		if err != nil {
			return eris.Wrapf(err, "failed to open %s", itemPath)
		}

		err = w.WriteFile(item.Name(), hdl)
		hdl.Close()
		if err != nil {
			return eris.Wrapf(err, "failed to pack %s", itemPath)
		}
	}

	return nil
}

// Close writes the central index and closes the bundle
func (w *Writer) Close() error {
	if len(w.dirStack) != 1 {
		w.hdl.Close()
		return eris.New("open directories left over")
	}

	items := int32(0)
	buffer := make([]byte, 48)
	tocOffset, err := w.hdl.Seek(0, io.SeekCurrent)
	if err != nil {
		w.hdl.Close()
		return err
	}
	err = writeDirectoryEntries(w.root, w.hdl, &items, buffer)
	if err != nil {
		w.hdl.Close()
		return err
	}

	_, err = w.hdl.Seek(0, io.SeekStart)
	if err != nil {
		w.hdl.Close()
		return err
	}

	buffer[0] = 'C'
	buffer[1] = 'A'
	buffer[2] = 'R'
	buffer[3] = 'T'
	binary.LittleEndian.PutUint32(buffer[4:8], formatVersion)
	binary.LittleEndian.PutUint32(buffer[8:12], uint32(tocOffset))
	binary.LittleEndian.PutUint32(buffer[12:16], uint32(items))

	_, err = w.hdl.Write(buffer[:16])
	if err != nil {
		w.hdl.Close()
		return err
	}

	return w.hdl.Close()
}

func writeDirectoryEntries(dir *folder, hdl *os.File, items *int32, buffer []byte) error {
	for name, sub := range dir.folders {
		// directories carry no payload, only a name
		binary.LittleEndian.PutUint32(buffer[:4], 0)
		binary.LittleEndian.PutUint32(buffer[4:8], 0)
		binary.LittleEndian.PutUint32(buffer[8:12], 0)
		binary.LittleEndian.PutUint16(buffer[12:14], uint16(len(name)))
		_, err := hdl.Write(buffer[:14])
		if err != nil {
			return err
		}

		_, err = hdl.WriteString(name)
		if err != nil {
			return err
		}

		err = writeDirectoryEntries(sub, hdl, items, buffer)
		if err != nil {
			return err
		}

		// ".." pops the directory during reading
		binary.LittleEndian.PutUint32(buffer[:4], 0)
		binary.LittleEndian.PutUint32(buffer[4:8], 0)
		binary.LittleEndian.PutUint32(buffer[8:12], 0)
		binary.LittleEndian.PutUint16(buffer[12:14], 2)
		_, err = hdl.Write(buffer[:14])
		if err != nil {
			return err
		}

		_, err = hdl.WriteString("..")
		if err != nil {
			return err
		}
	}

	for name, file := range dir.files {
		binary.LittleEndian.PutUint32(buffer[:4], uint32(file.offset))
		binary.LittleEndian.PutUint32(buffer[4:8], uint32(file.size))
		binary.LittleEndian.PutUint32(buffer[8:12], uint32(file.decSize))
		binary.LittleEndian.PutUint16(buffer[12:14], uint16(len(name)))
		_, err := hdl.Write(buffer[:14])
		if err != nil {
			return err
		}

		_, err = hdl.WriteString(name)
		if err != nil {
			return err
		}
	}

	*items += int32(len(dir.folders)*2 + len(dir.files))
	return nil
}
