package scanning

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func testImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

var _ = Describe("PrepareImage", func() {
	var (
		data        []byte
		contentType string
		prepared    *Image
		err         error
	)

	JustBeforeEach(func() {
		prepared, err = PrepareImage(data, contentType)
	})

	When("the upload is a PNG", func() {
		BeforeEach(func() {
			var buf bytes.Buffer
			Expect(png.Encode(&buf, testImage(30, 20))).To(Succeed())
			data = buf.Bytes()
			contentType = "image/png"
		})

		It("should keep the bytes unchanged", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(prepared.PNG).To(Equal(data))
		})

		It("should report the intrinsic size", func() {
			Expect(prepared.Width).To(Equal(30))
			Expect(prepared.Height).To(Equal(20))
		})
	})

	When("the upload is a JPEG", func() {
		BeforeEach(func() {
			var buf bytes.Buffer
			Expect(jpeg.Encode(&buf, testImage(16, 40), nil)).To(Succeed())
			data = buf.Bytes()
			contentType = " IMAGE/JPEG "
		})

		It("should re-encode it as PNG", func() {
			Expect(err).NotTo(HaveOccurred())
			cfg, format, cfgErr := image.DecodeConfig(bytes.NewReader(prepared.PNG))
			Expect(cfgErr).NotTo(HaveOccurred())
			Expect(format).To(Equal("png"))
			Expect(cfg.Width).To(Equal(16))
			Expect(cfg.Height).To(Equal(40))
		})

		It("should report the intrinsic size", func() {
			Expect(prepared.Width).To(Equal(16))
			Expect(prepared.Height).To(Equal(40))
		})
	})

	When("the content type is missing", func() {
		BeforeEach(func() {
			var buf bytes.Buffer
			Expect(png.Encode(&buf, testImage(8, 8))).To(Succeed())
			data = buf.Bytes()
			contentType = ""
		})

		It("should sniff the format", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(prepared.Width).To(Equal(8))
		})
	})

	When("the upload is not an image", func() {
		BeforeEach(func() {
			data = []byte("definitely not an image")
			contentType = "image/jpeg"
		})

		It("returns an error", func() {
			Expect(err).To(HaveOccurred())
			Expect(prepared).To(BeNil())
		})
	})
})

var _ = Describe("ReencodePNG", func() {
	It("should produce a PNG", func() {
		var buf bytes.Buffer
		Expect(jpeg.Encode(&buf, testImage(10, 12), nil)).To(Succeed())

		out, err := ReencodePNG(buf.Bytes())
		Expect(err).NotTo(HaveOccurred())
		_, format, err := image.DecodeConfig(bytes.NewReader(out))
		Expect(err).NotTo(HaveOccurred())
		Expect(format).To(Equal("png"))
	})

	It("returns an error for unreadable data", func() {
		_, err := ReencodePNG([]byte("nope"))
		Expect(err).To(MatchError(ContainSubstring("decoding image")))
	})
})

var _ = Describe("isHEICFormat", func() {
	It("should detect the ftyp brand", func() {
		Expect(isHEICFormat([]byte("\x00\x00\x00\x18ftypheic0000"))).To(BeTrue())
	})

	It("should reject short or unrelated data", func() {
		Expect(isHEICFormat([]byte("short"))).To(BeFalse())
		Expect(isHEICFormat([]byte("\x00\x00\x00\x18ftypisom0000"))).To(BeFalse())
	})
})
