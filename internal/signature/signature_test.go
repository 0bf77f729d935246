package signature

import "testing"

func TestMatchesKnownSignatures(t *testing.T) {
	cases := []struct {
		mime string
		data []byte
	}{
		{MIMEJPEG, []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}},
		{MIMEPNG, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}},
		{MIMEGIF, []byte("GIF89a")},
		{MIMEWEBP, []byte("RIFF\x24\x00\x00\x00WEBPVP8 ")},
		{MIMEPDF, []byte("%PDF-1.7\n")},
	}
	for _, tc := range cases {
		if !Matches(tc.data, tc.mime) {
			t.Fatalf("expected %s signature to match %x", tc.mime, tc.data)
		}
	}
}

func TestMatchesPDFScenario(t *testing.T) {
	if !Matches([]byte{0x25, 0x50, 0x44, 0x46}, MIMEPDF) {
		t.Fatalf("expected bare %%PDF prefix to match")
	}
	if Matches([]byte{0xFF, 0xD8, 0xFF, 0xE0}, MIMEPDF) {
		t.Fatalf("expected JPEG bytes declared as PDF to be rejected")
	}
}

func TestMatchesRejectsMismatchAndShortBuffers(t *testing.T) {
	if Matches([]byte{0x25, 0x50, 0x44}, MIMEPDF) {
		t.Fatalf("expected truncated signature to be rejected")
	}
	if Matches(nil, MIMEJPEG) {
		t.Fatalf("expected empty buffer to be rejected")
	}
	if Matches([]byte("MZ\x90\x00"), MIMEPDF) {
		t.Fatalf("expected executable header declared as PDF to be rejected")
	}
	if Matches([]byte("%PDF-1.4"), "application/x-msdownload") {
		t.Fatalf("expected unknown declared type to be rejected")
	}
}

func TestMatchesIgnoresTrailingLength(t *testing.T) {
	data := []byte{0x47, 0x49, 0x46}
	for i := 0; i < 64; i++ {
		if !Matches(data, MIMEGIF) {
			t.Fatalf("expected match at length %d", len(data))
		}
		data = append(data, byte(i))
	}
}

func TestRIFFContainerPassesAsWEBP(t *testing.T) {
	wav := []byte("RIFF\x24\x00\x00\x00WAVEfmt ")
	if !Matches(wav, MIMEWEBP) {
		t.Fatalf("expected RIFF prefix alone to satisfy the webp check")
	}
}

func TestClassification(t *testing.T) {
	if !IsPDF(MIMEPDF) || IsImage(MIMEPDF) {
		t.Fatalf("expected application/pdf to classify as pdf only")
	}
	for _, m := range []string{MIMEJPEG, MIMEPNG, MIMEGIF, MIMEWEBP} {
		if !IsImage(m) {
			t.Fatalf("expected %s to classify as image", m)
		}
	}
	if Supported("image/svg+xml") || IsImage("image/svg+xml") {
		t.Fatalf("expected svg to be outside the allow-list")
	}
	if got := len(SupportedTypes()); got != 5 {
		t.Fatalf("expected 5 supported types, got %d", got)
	}
}
