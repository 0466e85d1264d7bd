package archive

import (
	"archive/zip"
	"bytes"

	"novault/internal/envelope"
)

// maliciousZipBuffer builds a raw zip byte stream for tests that need to
// construct entries Build() itself would never produce (e.g. zip-slip).
type maliciousZipBuffer struct {
	buf bytes.Buffer
}

func (m *maliciousZipBuffer) writeEntry(name string, content []byte) {
	w := zip.NewWriter(&m.buf)
	f, _ := w.Create(name)
	_, _ = f.Write(content)
	_ = w.Close()
}

func (m *maliciousZipBuffer) Bytes() []byte { return m.buf.Bytes() }

func sealRaw(key, plaintext []byte) ([]byte, error) {
	return envelope.Seal(key, plaintext)
}
