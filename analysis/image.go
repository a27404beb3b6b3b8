package analysis

import (
	"bytes"
	"image"

	"github.com/disintegration/imaging"

	"github.com/giygas/pharmaprice-api/logging"
	"github.com/giygas/pharmaprice-api/oracle"
)

const jpegQuality = 85

// prepareImage shrinks oversized photos to fit maxDim and re-encodes them as
// JPEG. Payloads that do not decode, or already fit, are sent as received.
func prepareImage(img *Image, maxDim int) *oracle.InlineImage {
	original := &oracle.InlineImage{MIMEType: img.MIMEType, Data: img.Data}
	if maxDim <= 0 {
		return original
	}

	decoded, err := imaging.Decode(bytes.NewReader(img.Data), imaging.AutoOrientation(true))
	if err != nil {
		logging.Debug("Image not decodable, forwarding untouched", "mime_type", img.MIMEType, "error", err)
		return original
	}

	bounds := decoded.Bounds()
	if bounds.Dx() <= maxDim && bounds.Dy() <= maxDim {
		return original
	}

	resized := imaging.Fit(decoded, maxDim, maxDim, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		logging.Warn("Failed to re-encode image, forwarding untouched", "error", err)
		return original
	}

	logging.Debug("Image downscaled",
		"from", sizeOf(bounds),
		"to", sizeOf(resized.Bounds()),
		"bytes_before", len(img.Data),
		"bytes_after", buf.Len(),
	)
	return &oracle.InlineImage{MIMEType: "image/jpeg", Data: buf.Bytes()}
}

func sizeOf(r image.Rectangle) []int {
	return []int{r.Dx(), r.Dy()}
}
