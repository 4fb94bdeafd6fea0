// Package records writes and reads image/mask record containers.
//
// A container holds a sequence of self-describing records, one per
// image/mask pair, in the order they were encoded. Readers need nothing but
// the container itself to rebuild every pair bit for bit.
//
// # Format (version 1)
//
// All integers are little-endian.
//
//	header   magic "SGRC" | version uint16 | reserved uint16
//	record   length uint64 | crc(length) uint32 | payload | crc(payload) uint32
//	payload  height uint32 | width uint32 | image channels uint32 |
//	         mask channels uint32 | image bytes | mask bytes
//
// Pixel data is row-major and uncompressed: height*width*channels bytes for
// the image followed by the same for the mask. Checksums are CRC-32C,
// masked the same way TFRecord masks them, so a torn trailing record shows
// up as [io.ErrUnexpectedEOF] or [ErrCorrupt] instead of garbage.
//
// # Writing
//
// Use [Create] to open a container and [Writer.Write] to append records.
// Each record is flushed before Write returns. [Encode] drives a whole
// split: it loads every [Pair], checks shapes and writes in order.
//
// # Reading
//
// Use [Open] and call [Reader.Next] until it returns [io.EOF].
//
// # Manifest
//
// When enabled, [Encode] also writes {dest}.manifest.parquet with one
// [ManifestEntry] per record (paths, shape, byte offset). It is for
// auditing only; the container never depends on it.
package records
