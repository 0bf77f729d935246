package ocr

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"
)

func sampleImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	for x := 0; x < 16; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: 200, B: uint8(y * 32), A: 255})
		}
	}
	return img
}

func TestNormalizeImageProducesGrayPNG(t *testing.T) {
	var jpg, pngBuf, gifBuf bytes.Buffer
	if err := jpeg.Encode(&jpg, sampleImage(), nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	if err := png.Encode(&pngBuf, sampleImage()); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	if err := gif.Encode(&gifBuf, sampleImage(), nil); err != nil {
		t.Fatalf("encode gif: %v", err)
	}

	for name, data := range map[string][]byte{"jpeg": jpg.Bytes(), "png": pngBuf.Bytes(), "gif": gifBuf.Bytes()} {
		out, err := NormalizeImage(data)
		if err != nil {
			t.Fatalf("%s: expected no error, got %v", name, err)
		}
		img, format, err := image.Decode(bytes.NewReader(out))
		if err != nil {
			t.Fatalf("%s: expected decodable output, got %v", name, err)
		}
		if format != "png" {
			t.Fatalf("%s: expected png output, got %s", name, format)
		}
		if img.Bounds().Dx() != 16 || img.Bounds().Dy() != 8 {
			t.Fatalf("%s: expected 16x8, got %v", name, img.Bounds())
		}
		r, g, b, _ := img.At(3, 3).RGBA()
		if r != g || g != b {
			t.Fatalf("%s: expected gray pixel, got r=%d g=%d b=%d", name, r, g, b)
		}
	}
}

func TestNormalizeImageRejectsGarbage(t *testing.T) {
	if _, err := NormalizeImage([]byte("RIFF not really an image")); err == nil {
		t.Fatalf("expected decode error")
	}
}
