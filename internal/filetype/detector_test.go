package filetype

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"testing"
)

func encoded(t *testing.T, enc func(*bytes.Buffer, image.Image) error) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := enc(&buf, image.NewNRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDetect(t *testing.T) {
	pngData := encoded(t, func(b *bytes.Buffer, m image.Image) error { return png.Encode(b, m) })
	jpgData := encoded(t, func(b *bytes.Buffer, m image.Image) error { return jpeg.Encode(b, m, nil) })
	pdfData := []byte("%PDF-1.7\n1 0 obj\n<<>>\nendobj\n")
	gifData := []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;")

	tests := []struct {
		name     string
		data     []byte
		mime     string
		kind     Kind
		image    bool
		document bool
	}{
		{"png", pngData, "image/png", KindImage, true, false},
		{"jpeg", jpgData, "image/jpeg", KindImage, true, false},
		{"pdf", pdfData, "application/pdf", KindDocument, false, true},
		{"gif is not whitelisted", gifData, "image/gif", KindUnknown, false, false},
		{"text", []byte("just some words"), "text/plain; charset=utf-8", KindUnknown, false, false},
	}
	d := New(0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := d.Detect(tt.data)
			if info.MIMEType != tt.mime || info.Kind != tt.kind {
				t.Errorf("got %s/%s, want %s/%s", info.MIMEType, info.Kind, tt.mime, tt.kind)
			}
			if info.IsImage() != tt.image || info.IsDocument() != tt.document {
				t.Errorf("IsImage=%v IsDocument=%v", info.IsImage(), info.IsDocument())
			}
		})
	}
}

func TestOversizeWarning(t *testing.T) {
	d := New(0)
	if d.SizeWarning() != 20<<20 {
		t.Fatalf("default threshold = %d", d.SizeWarning())
	}
	if _, warn := d.OversizeWarning(20 << 20); warn {
		t.Error("exactly 20 MiB should not warn")
	}
	msg, warn := d.OversizeWarning(20<<20 + 1)
	if !warn || msg == "" {
		t.Error("above 20 MiB should warn")
	}
	if _, warn := New(10).OversizeWarning(11); !warn {
		t.Error("custom threshold not applied")
	}
}
