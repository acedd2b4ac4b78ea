package dbcatalog

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	natomic "github.com/natefinch/atomic"

	"github.com/daniilsunyaev/yarrd/internal/dberrors"
)

// rootMagic identifies a yarrd database root file. Grounded on
// internal/catalog's table-header magic/version preamble, scaled down
// to what a root file actually needs: the tables directory and the list
// of table names the connected database owns. Table and index file paths are derived
// deterministically from tablesDir, so the root file never stores them.
const (
	rootMagic   = "YDB1"
	rootVersion = uint16(1)
)

// rootDoc is the decoded contents of a root file.
type rootDoc struct {
	TablesDir string
	Tables    []string
}

func encodeRoot(doc rootDoc) []byte {
	var buf bytes.Buffer
	buf.WriteString(rootMagic)
	binary.Write(&buf, binary.LittleEndian, rootVersion)
	writeString(&buf, doc.TablesDir)

	// Table order is preserved, not sorted: it must match db.tables'
	// declaration order, which VACUUM and .tables rely on.
	names := doc.Tables
	binary.Write(&buf, binary.LittleEndian, uint32(len(names)))
	for _, name := range names {
		writeString(&buf, name)
	}
	return buf.Bytes()
}

func writeString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.LittleEndian, uint32(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", fmt.Errorf("%w: read string length: %v", dberrors.ErrCorruptData, err)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("%w: read string body: %v", dberrors.ErrCorruptData, err)
	}
	return string(b), nil
}

func decodeRoot(data []byte) (rootDoc, error) {
	r := bytes.NewReader(data)
	magic := make([]byte, len(rootMagic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != rootMagic {
		return rootDoc{}, fmt.Errorf("%w: bad root magic", dberrors.ErrCorruptData)
	}
	var version uint16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return rootDoc{}, fmt.Errorf("%w: read root version: %v", dberrors.ErrCorruptData, err)
	}
	if version != rootVersion {
		return rootDoc{}, fmt.Errorf("%w: unsupported root version %d", dberrors.ErrCorruptData, version)
	}

	tablesDir, err := readString(r)
	if err != nil {
		return rootDoc{}, err
	}

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return rootDoc{}, fmt.Errorf("%w: read table count: %v", dberrors.ErrCorruptData, err)
	}
	tables := make([]string, count)
	for i := range tables {
		name, err := readString(r)
		if err != nil {
			return rootDoc{}, err
		}
		tables[i] = name
	}
	return rootDoc{TablesDir: tablesDir, Tables: tables}, nil
}

func writeRootFile(path string, doc rootDoc) error {
	if err := natomic.WriteFile(path, bytes.NewReader(encodeRoot(doc))); err != nil {
		return fmt.Errorf("%w: write root file: %v", dberrors.ErrIO, err)
	}
	return nil
}

func readRootFile(path string) (rootDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return rootDoc{}, fmt.Errorf("%w: read root file: %v", dberrors.ErrIO, err)
	}
	return decodeRoot(data)
}
