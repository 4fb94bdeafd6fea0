package records

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/lehigh-university-libraries/segprep/internal/raster"
)

func testRecord(h, w int, seed byte) Record {
	rec := Record{
		Height:        h,
		Width:         w,
		ImageChannels: 3,
		MaskChannels:  1,
		Image:         make([]byte, h*w*3),
		Mask:          make([]byte, h*w),
	}
	for i := range rec.Image {
		rec.Image[i] = byte(i) + seed
	}
	for i := range rec.Mask {
		rec.Mask[i] = byte(i%7) * seed
	}
	return rec
}

func encodeBuffer(t *testing.T, recs ...Record) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	for i, rec := range recs {
		if _, _, err := w.Write(rec); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes()
}

func readAll(t *testing.T, data []byte) ([]Record, error) {
	t.Helper()
	r, err := NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	var out []Record
	for {
		rec, err := r.Next()
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

func TestWriterReaderRoundTrip(t *testing.T) {
	in := []Record{
		testRecord(2, 3, 1),
		testRecord(5, 1, 2),
		testRecord(4, 4, 3),
		{Height: 1, Width: 2, ImageChannels: 4, MaskChannels: 2, Image: []byte{1, 2, 3, 4, 5, 6, 7, 8}, Mask: []byte{9, 10, 11, 12}},
	}
	data := encodeBuffer(t, in...)

	if string(data[:4]) != Magic {
		t.Fatalf("header magic = %q", data[:4])
	}

	out, err := readAll(t, data)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF after last record, got %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("got %d records, want %d", len(out), len(in))
	}
	for i := range in {
		if !reflect.DeepEqual(out[i], in[i]) {
			t.Errorf("record %d differs after round trip", i)
		}
	}
}

func TestWriterOffsets(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	off1, len1, err := w.Write(testRecord(2, 2, 1))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	off2, len2, err := w.Write(testRecord(3, 3, 1))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if off1 != headerSize {
		t.Errorf("first offset = %d, want %d", off1, headerSize)
	}
	// length + crc + shape + 2*2*3 + 2*2 + crc
	if len1 != 12+16+12+4+4 {
		t.Errorf("first length = %d", len1)
	}
	if off2 != off1+len1 {
		t.Errorf("second offset = %d, want %d", off2, off1+len1)
	}
	if int64(buf.Len()) != off2+len2 {
		t.Errorf("buffer has %d bytes, want %d", buf.Len(), off2+len2)
	}
	if w.Count() != 2 {
		t.Errorf("Count() = %d", w.Count())
	}
	if _, _, err := w.Write(testRecord(1, 1, 1)); err == nil {
		t.Error("expected error writing after Close")
	}
}

func TestReaderTruncated(t *testing.T) {
	data := encodeBuffer(t, testRecord(3, 3, 1), testRecord(2, 2, 5))
	first := headerSize + 12 + 16 + 27 + 9 + 4

	tests := []struct {
		name    string
		cut     int
		records int
		want    error
	}{
		{"clean boundary", first, 1, io.EOF},
		{"inside length", first + 5, 1, io.ErrUnexpectedEOF},
		{"inside payload", first + 20, 1, io.ErrUnexpectedEOF},
		{"missing trailing checksum", len(data) - 2, 1, io.ErrUnexpectedEOF},
		{"header only", headerSize, 0, io.EOF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := readAll(t, data[:tt.cut])
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if len(out) != tt.records {
				t.Errorf("read %d records, want %d", len(out), tt.records)
			}
		})
	}
}

func TestReaderCorrupt(t *testing.T) {
	tests := []struct {
		name string
		pos  int
	}{
		{"length", headerSize + 1},
		{"length checksum", headerSize + 9},
		{"payload shape", headerSize + 12 + 2},
		{"pixel data", headerSize + 12 + 16 + 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := encodeBuffer(t, testRecord(3, 3, 1))
			data[tt.pos] ^= 0xff
			_, err := readAll(t, data)
			if !errors.Is(err, ErrCorrupt) {
				t.Errorf("error = %v, want ErrCorrupt", err)
			}
		})
	}
}

func TestReaderHeader(t *testing.T) {
	if _, err := NewReader(bytes.NewReader([]byte("NOPE\x01\x00\x00\x00"))); !errors.Is(err, ErrCorrupt) {
		t.Errorf("bad magic: got %v", err)
	}
	if _, err := NewReader(bytes.NewReader([]byte("SGRC\x09\x00\x00\x00"))); err == nil {
		t.Error("expected error for unknown version")
	}
	if _, err := NewReader(bytes.NewReader([]byte("SG"))); err == nil {
		t.Error("expected error for short header")
	}

	r, err := NewReader(bytes.NewReader(encodeBuffer(t)))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if r.Version() != Version1 {
		t.Errorf("Version() = %d", r.Version())
	}
}

func TestRecordValidate(t *testing.T) {
	good := testRecord(2, 2, 1)
	tests := []struct {
		name    string
		mutate  func(*Record)
		wantErr bool
	}{
		{"valid", func(*Record) {}, false},
		{"zero height", func(r *Record) { r.Height = 0 }, true},
		{"zero channels", func(r *Record) { r.MaskChannels = 0 }, true},
		{"short image", func(r *Record) { r.Image = r.Image[1:] }, true},
		{"long mask", func(r *Record) { r.Mask = append(r.Mask, 0) }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := good
			rec.Image = append([]byte(nil), good.Image...)
			rec.Mask = append([]byte(nil), good.Mask...)
			tt.mutate(&rec)
			if err := rec.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewRecordShapeMismatch(t *testing.T) {
	img := &raster.Raster{Height: 2, Width: 2, Channels: 3, Pix: make([]byte, 12)}
	msk := &raster.Raster{Height: 2, Width: 3, Channels: 1, Pix: make([]byte, 6)}
	if _, err := NewRecord(img, msk); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("got %v, want ErrShapeMismatch", err)
	}
}

// writePair writes an RGB image and a label mask under dir and returns the pair
func writePair(t *testing.T, dir, stem string, imgW, imgH, maskW, maskH int) Pair {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, imgW, imgH))
	for y := 0; y < imgH; y++ {
		for x := 0; x < imgW; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 7), G: uint8(y * 11), B: uint8(len(stem) * 13), A: 255})
		}
	}
	msk := image.NewGray(image.Rect(0, 0, maskW, maskH))
	for i := range msk.Pix {
		msk.Pix[i] = uint8(i % 5)
	}

	p := Pair{
		Stem:      stem,
		ImagePath: filepath.Join(dir, "images", stem+".png"),
		MaskPath:  filepath.Join(dir, "masks", stem+".png"),
	}
	if err := raster.Save(img, p.ImagePath); err != nil {
		t.Fatalf("save image: %v", err)
	}
	if err := raster.Save(msk, p.MaskPath); err != nil {
		t.Fatalf("save mask: %v", err)
	}
	return p
}

func TestEncodeRoundTrip(t *testing.T) {
	dir := t.TempDir()
	pairs := []Pair{
		writePair(t, dir, "c", 6, 4, 6, 4),
		writePair(t, dir, "a", 3, 5, 3, 5),
		writePair(t, dir, "b", 8, 2, 8, 2),
	}
	dest := filepath.Join(dir, "out", "train.segrec")

	summary, err := Encode(context.Background(), pairs, dest, EncodeOptions{Manifest: true})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if summary.Records != 3 {
		t.Errorf("Records = %d, want 3", summary.Records)
	}
	info, err := os.Stat(dest)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != summary.Bytes {
		t.Errorf("file has %d bytes, summary says %d", info.Size(), summary.Bytes)
	}

	r, err := Open(dest)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	// records come back in input order, not stem order
	for i, p := range pairs {
		rec, err := r.Next()
		if err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
		wantImg, _ := raster.LoadRGB(p.ImagePath)
		wantMask, _ := raster.LoadMask(p.MaskPath)
		if rec.Height != wantImg.Height || rec.Width != wantImg.Width {
			t.Errorf("record %d shape %dx%d, want %dx%d", i, rec.Height, rec.Width, wantImg.Height, wantImg.Width)
		}
		if rec.ImageChannels != 3 || rec.MaskChannels != 1 {
			t.Errorf("record %d channels %d/%d", i, rec.ImageChannels, rec.MaskChannels)
		}
		if !bytes.Equal(rec.Image, wantImg.Pix) {
			t.Errorf("record %d image bytes differ", i)
		}
		if !bytes.Equal(rec.Mask, wantMask.Pix) {
			t.Errorf("record %d mask bytes differ", i)
		}
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}

	entries, err := ReadManifest(summary.ManifestPath)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("manifest has %d rows", len(entries))
	}
	if entries[0].Stem != "c" || entries[1].Stem != "a" || entries[2].Stem != "b" {
		t.Errorf("manifest order = %s %s %s", entries[0].Stem, entries[1].Stem, entries[2].Stem)
	}
	if entries[0].Offset != headerSize {
		t.Errorf("first offset = %d", entries[0].Offset)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Offset != entries[i-1].Offset+entries[i-1].Length {
			t.Errorf("entry %d offset %d not contiguous", i, entries[i].Offset)
		}
	}
	if entries[1].Height != 5 || entries[1].Width != 3 {
		t.Errorf("entry 1 shape = %dx%d", entries[1].Height, entries[1].Width)
	}
}

func TestEncodeShapeMismatch(t *testing.T) {
	dir := t.TempDir()
	bad := writePair(t, dir, "bad", 50, 100, 60, 100)
	good := writePair(t, dir, "good", 4, 4, 4, 4)
	dest := filepath.Join(dir, "out.segrec")

	summary, err := Encode(context.Background(), []Pair{bad, good}, dest, EncodeOptions{Manifest: true})
	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("error = %v, want ErrShapeMismatch", err)
	}
	var sme *ShapeMismatchError
	if !errors.As(err, &sme) {
		t.Fatalf("error %T is not a *ShapeMismatchError", err)
	}
	if sme.ImagePath != bad.ImagePath || sme.MaskPath != bad.MaskPath {
		t.Errorf("error names %s / %s", sme.ImagePath, sme.MaskPath)
	}
	if sme.ImageWidth != 50 || sme.MaskWidth != 60 || sme.ImageHeight != 100 {
		t.Errorf("error shapes = %+v", sme)
	}
	if summary.Records != 0 {
		t.Errorf("Records = %d, want 0", summary.Records)
	}

	r, err := Open(dest)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("expected empty container, got %v", err)
	}
	if _, err := os.Stat(ManifestPath(dest)); !os.IsNotExist(err) {
		t.Errorf("manifest should not be written on abort: %v", err)
	}
}

func TestEncodeAbortsAfterMismatch(t *testing.T) {
	dir := t.TempDir()
	pairs := []Pair{
		writePair(t, dir, "one", 4, 4, 4, 4),
		writePair(t, dir, "two", 4, 4, 4, 5),
		writePair(t, dir, "three", 4, 4, 4, 4),
	}
	dest := filepath.Join(dir, "out.segrec")

	summary, err := Encode(context.Background(), pairs, dest, EncodeOptions{})
	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("error = %v", err)
	}
	if summary.Records != 1 {
		t.Errorf("Records = %d, want 1", summary.Records)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	out, err := readAll(t, data)
	if !errors.Is(err, io.EOF) || len(out) != 1 {
		t.Errorf("read %d records, err %v", len(out), err)
	}
}

func TestEncodeUnreadableFile(t *testing.T) {
	dir := t.TempDir()
	p := writePair(t, dir, "x", 2, 2, 2, 2)

	missing := p
	missing.MaskPath = filepath.Join(dir, "masks", "nope.png")
	_, err := Encode(context.Background(), []Pair{missing}, filepath.Join(dir, "a.segrec"), EncodeOptions{})
	var fe *FileError
	if !errors.As(err, &fe) {
		t.Fatalf("error = %v, want *FileError", err)
	}
	if fe.Path != missing.MaskPath {
		t.Errorf("FileError.Path = %s", fe.Path)
	}

	garbage := p
	garbage.ImagePath = filepath.Join(dir, "garbage.png")
	if err := os.WriteFile(garbage.ImagePath, []byte("not a png"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err = Encode(context.Background(), []Pair{garbage}, filepath.Join(dir, "b.segrec"), EncodeOptions{})
	if !errors.As(err, &fe) || fe.Path != garbage.ImagePath {
		t.Errorf("error = %v, want *FileError for %s", err, garbage.ImagePath)
	}
}

func TestEncodeCanceled(t *testing.T) {
	dir := t.TempDir()
	p := writePair(t, dir, "x", 2, 2, 2, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := Encode(ctx, []Pair{p}, filepath.Join(dir, "c.segrec"), EncodeOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if summary.Records != 0 {
		t.Errorf("Records = %d", summary.Records)
	}
}

func TestPairs(t *testing.T) {
	dir := t.TempDir()
	imageDir := filepath.Join(dir, "images")
	maskDir := filepath.Join(dir, "masks")
	for _, d := range []string{imageDir, maskDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatal(err)
		}
	}
	touch := func(path string) {
		if err := os.WriteFile(path, nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	touch(filepath.Join(imageDir, "b.jpg"))
	touch(filepath.Join(imageDir, "a.JPG"))
	touch(filepath.Join(imageDir, "orphan.jpg"))
	touch(filepath.Join(imageDir, "notes.txt"))
	touch(filepath.Join(imageDir, ".hidden.jpg"))
	touch(filepath.Join(maskDir, "a.png"))
	touch(filepath.Join(maskDir, "b.png"))
	touch(filepath.Join(maskDir, "lonely.png"))
	if err := os.Mkdir(filepath.Join(imageDir, "sub.jpg"), 0755); err != nil {
		t.Fatal(err)
	}

	pairs, err := Pairs(imageDir, maskDir, ".jpg", ".png")
	if err != nil {
		t.Fatalf("Pairs: %v", err)
	}
	want := []Pair{
		{Stem: "a", ImagePath: filepath.Join(imageDir, "a.JPG"), MaskPath: filepath.Join(maskDir, "a.png")},
		{Stem: "b", ImagePath: filepath.Join(imageDir, "b.jpg"), MaskPath: filepath.Join(maskDir, "b.png")},
	}
	if !reflect.DeepEqual(pairs, want) {
		t.Errorf("Pairs() = %+v, want %+v", pairs, want)
	}

	if _, err := Pairs(filepath.Join(dir, "missing"), maskDir, ".jpg", ".png"); err == nil {
		t.Error("expected error for missing image dir")
	}
}

func TestRecordRasters(t *testing.T) {
	rec := testRecord(2, 3, 1)
	img, err := rec.ImageRaster()
	if err != nil {
		t.Fatalf("ImageRaster: %v", err)
	}
	if got := raster.RGB(img); !bytes.Equal(got.Pix, rec.Image) {
		t.Error("image raster does not round trip")
	}
	m, err := rec.MaskRaster()
	if err != nil {
		t.Fatalf("MaskRaster: %v", err)
	}
	if got := raster.Mask(m); !bytes.Equal(got.Pix, rec.Mask) {
		t.Error("mask raster does not round trip")
	}

	rec.ImageChannels = 4
	if _, err := rec.ImageRaster(); err == nil {
		t.Error("expected error for 4-channel image")
	}
}
