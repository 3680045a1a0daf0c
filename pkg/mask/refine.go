package mask

import (
	"image"
)

// Refine extends an occlusion mask into a garment mask: the first row that
// contains a covered pixel and every row below it become On. Rows above are
// copied unchanged. An empty mask comes back as an unchanged copy.
func Refine(m *image.Gray) *image.Gray {
	out := Clone(m)
	top := FirstRow(out)
	if top < 0 {
		return out
	}
	for i := top * out.Stride; i < len(out.Pix); i++ {
		out.Pix[i] = On
	}
	return out
}
