package packet

import (
	"encoding/binary"

	"golang.org/x/text/encoding/traditionalchinese"
)

// Writer builds a server payload. Multi-byte values are little-endian.
type Writer struct {
	buf []byte
}

func NewWriter(opcode byte) *Writer {
	w := &Writer{buf: make([]byte, 0, 64)}
	w.WriteC(opcode)
	return w
}

func (w *Writer) WriteC(v byte) {
	w.buf = append(w.buf, v)
}

func (w *Writer) WriteH(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

func (w *Writer) WriteD(v int32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(v))
}

// WriteS writes a null-terminated string, converting UTF-8 to Big5.
// Characters Big5 cannot represent fall back to the raw UTF-8 bytes.
func (w *Writer) WriteS(s string) {
	if s != "" {
		if isASCII([]byte(s)) {
			w.buf = append(w.buf, s...)
		} else if encoded, err := traditionalchinese.Big5.NewEncoder().Bytes([]byte(s)); err == nil {
			w.buf = append(w.buf, encoded...)
		} else {
			w.buf = append(w.buf, s...)
		}
	}
	w.buf = append(w.buf, 0)
}

// Bytes returns the payload padded to a 4-byte boundary.
func (w *Writer) Bytes() []byte {
	for len(w.buf)%4 != 0 {
		w.buf = append(w.buf, 0)
	}
	return w.buf
}

// Len returns the current unpadded length.
func (w *Writer) Len() int {
	return len(w.buf)
}
