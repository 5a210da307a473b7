package mjpeg

import (
	"bytes"
	"image"
	"image/jpeg"
)

// FixJPEG - reencode JPEG if it has wrong header
//
// for example, this app produce "bad" images:
// https://github.com/jacksonliam/mjpg-streamer
//
// and they can't be uploaded to the Telegram servers:
// {"ok":false,"error_code":400,"description":"Bad Request: IMAGE_PROCESS_FAILED"}
func FixJPEG(b []byte) []byte {
	// skip non-JPEG
	if len(b) < 10 || b[0] != 0xFF || b[1] != 0xD8 {
		return b
	}
	// skip if header OK for imghdr library
	// https://docs.python.org/3/library/imghdr.html
	if string(b[2:4]) == "\xFF\xDB" || string(b[6:10]) == "JFIF" || string(b[6:10]) == "Exif" {
		return b
	}

	img, err := Decode(b)
	if err != nil {
		return b
	}
	buf := bytes.NewBuffer(nil)
	if err = jpeg.Encode(buf, img, nil); err != nil {
		return b
	}
	return buf.Bytes()
}

// Decode JPEG or MJPEG frame, missing Huffman tables are fixed first
func Decode(b []byte) (image.Image, error) {
	return jpeg.Decode(bytes.NewReader(FixHuffman(b)))
}

// DecodeConfig - geometry without full decode
func DecodeConfig(b []byte) (image.Config, error) {
	return jpeg.DecodeConfig(bytes.NewReader(FixHuffman(b)))
}

// Encode appends JPEG to dst, zero quality means default
func Encode(dst []byte, img image.Image, quality int) ([]byte, error) {
	var o *jpeg.Options
	if quality > 0 {
		o = &jpeg.Options{Quality: quality}
	}

	buf := bytes.NewBuffer(dst)
	if err := jpeg.Encode(buf, img, o); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
