package imaging_test

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pantrychef/internal/imaging"
	"pantrychef/internal/recipe"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: uint8(x), A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)), nil))
	return buf.Bytes()
}

func TestResizer_DownscalesWideImages(t *testing.T) {
	tests := []struct {
		name     string
		mimeType string
		data     []byte
		format   string
	}{
		{name: "png", mimeType: "image/png", data: encodePNG(t, 400, 200), format: "png"},
		{name: "jpeg", mimeType: "image/jpeg", data: encodeJPEG(t, 400, 200), format: "jpeg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := imaging.NewResizer(100, 0).Process(recipe.Image{MIMEType: tt.mimeType, Data: tt.data})

			assert.Equal(t, "image/"+tt.format, out.MIMEType)
			cfg, format, err := image.DecodeConfig(bytes.NewReader(out.Data))
			require.NoError(t, err)
			assert.Equal(t, tt.format, format)
			assert.Equal(t, 100, cfg.Width)
			assert.Equal(t, 50, cfg.Height)
		})
	}
}

func TestResizer_PassThrough(t *testing.T) {
	small := recipe.Image{MIMEType: "image/png", Data: encodePNG(t, 50, 50)}
	webp := recipe.Image{MIMEType: "image/webp", Data: []byte("RIFF....WEBP")}
	broken := recipe.Image{MIMEType: "image/jpeg", Data: []byte("not a jpeg")}
	wide := recipe.Image{MIMEType: "image/png", Data: encodePNG(t, 400, 10)}

	assert.Equal(t, small, imaging.NewResizer(100, 0).Process(small))
	assert.Equal(t, webp, imaging.NewResizer(100, 0).Process(webp))
	assert.Equal(t, broken, imaging.NewResizer(100, 0).Process(broken))
	assert.Equal(t, wide, imaging.NewResizer(0, 0).Process(wide))
}

// grayPNG streams an all-black 8-bit grayscale PNG without holding the
// pixels in memory, so very large dimensions stay cheap to build.
func grayPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var out bytes.Buffer
	out.WriteString("\x89PNG\r\n\x1a\n")

	chunk := func(kind string, data []byte) {
		var length [4]byte
		binary.BigEndian.PutUint32(length[:], uint32(len(data)))
		out.Write(length[:])
		crc := crc32.NewIEEE()
		crc.Write([]byte(kind))
		crc.Write(data)
		out.WriteString(kind)
		out.Write(data)
		var sum [4]byte
		binary.BigEndian.PutUint32(sum[:], crc.Sum32())
		out.Write(sum[:])
	}

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], uint32(w))
	binary.BigEndian.PutUint32(ihdr[4:8], uint32(h))
	ihdr[8] = 8 // bit depth
	chunk("IHDR", ihdr)

	var idat bytes.Buffer
	zw, err := zlib.NewWriterLevel(&idat, zlib.BestSpeed)
	require.NoError(t, err)
	row := make([]byte, w+1) // filter byte plus one byte per pixel
	for y := 0; y < h; y++ {
		_, err := zw.Write(row)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	chunk("IDAT", idat.Bytes())
	chunk("IEND", nil)
	return out.Bytes()
}

func TestResizer_HugeImageNotDecoded(t *testing.T) {
	huge := recipe.Image{MIMEType: "image/png", Data: grayPNG(t, 12000, 12000)}
	cfg, err := png.DecodeConfig(bytes.NewReader(huge.Data))
	require.NoError(t, err)
	require.Equal(t, 12000, cfg.Width)

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	out := imaging.NewResizer(1024, 0).Process(huge)
	runtime.ReadMemStats(&after)

	assert.Equal(t, huge, out)
	// A decode would allocate the 144MB pixel buffer.
	assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(16<<20))
}

func TestResizer_PixelCap(t *testing.T) {
	img := recipe.Image{MIMEType: "image/png", Data: encodePNG(t, 400, 200)}

	assert.Equal(t, img, imaging.NewResizer(100, 10_000).Process(img))

	out := imaging.NewResizer(100, 80_000).Process(img)
	cfg, _, err := image.DecodeConfig(bytes.NewReader(out.Data))
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Width)
}

func TestNewResizer_Defaults(t *testing.T) {
	r := imaging.NewResizer(-5, 0)

	assert.Equal(t, uint(0), r.MaxWidth)
	assert.Equal(t, imaging.DefaultMaxPixels, r.MaxPixels)
}

func TestHash(t *testing.T) {
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", imaging.Hash([]byte("hello")))
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".jpg", imaging.Extension("IMAGE/JPEG"))
	assert.Equal(t, ".png", imaging.Extension("image/png"))
	assert.Equal(t, ".heic", imaging.Extension("image/heic"))
	assert.Equal(t, ".bin", imaging.Extension("application/pdf"))
}
