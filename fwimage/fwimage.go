// Package fwimage reads and writes firmware images.
package fwimage

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/sigurn/crc16"
	"github.com/xi2/xz"
)

// Log is called to log informational messages. It is a no-op by default.
var Log = func(format string, a ...interface{}) {}

var xzMagic = []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}

var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// Load reads an image from a file. Images compressed with xz are decompressed
// transparently.
func Load(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load image: %w", err)
	}
	defer f.Close()

	buf, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("load image %s: %w", path, err)
	}
	return buf, nil
}

// Decode reads an image, decompressing it if it starts with the xz magic.
func Decode(r io.Reader) ([]byte, error) {
	buf, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	if !bytes.HasPrefix(buf, xzMagic) {
		return buf, nil
	}
	zr, err := xz.NewReader(bytes.NewReader(buf), 0)
	if err != nil {
		return nil, fmt.Errorf("open xz stream: %w", err)
	}
	dbuf, err := ioutil.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompress xz stream: %w", err)
	}
	Log("decompressed xz image (%d bytes -> %d bytes)\n", len(buf), len(dbuf))
	return dbuf, nil
}

// Save writes an image to a file, replacing it atomically. The permissions of
// an existing file are kept.
func Save(path string, buf []byte) error {
	mode := os.FileMode(0644)
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode().Perm()
	}

	f, err := ioutil.TempFile(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("save image: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("save image: write: %w", err)
	}
	if err := f.Chmod(mode); err != nil {
		f.Close()
		return fmt.Errorf("save image: chmod: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("save image: close: %w", err)
	}
	if err := os.Rename(f.Name(), path); err != nil {
		return fmt.Errorf("save image: %w", err)
	}
	return nil
}

// Checksum identifies the exact contents of an image.
type Checksum struct {
	Size   int    `json:"size" yaml:"size"`
	SHA256 string `json:"sha256" yaml:"sha256"`
	CRC16  string `json:"crc16" yaml:"crc16"` // CRC-16/CCITT-FALSE
}

// Sum calculates the checksum of buf.
func Sum(buf []byte) Checksum {
	s := sha256.Sum256(buf)
	return Checksum{
		Size:   len(buf),
		SHA256: hex.EncodeToString(s[:]),
		CRC16:  fmt.Sprintf("%04x", crc16.Checksum(buf, crcTable)),
	}
}

// Match returns true if buf has the checksum c.
func (c Checksum) Match(buf []byte) bool {
	return Sum(buf) == c
}

func (c Checksum) String() string {
	return fmt.Sprintf("%d bytes, sha256 %s, crc16 %s", c.Size, c.SHA256, c.CRC16)
}
