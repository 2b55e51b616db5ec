package focus

// GreyStrip is the luma-like value of each sample along the centre line
type GreyStrip []uint32

func sample(row []byte, k int) uint32 {
	return uint32(row[2*k]) | uint32(row[2*k+1])<<8
}

// ComputeGrey collapses each Bayer neighbourhood along the centre row to
// one value. Photosite colour alternates per sample starting at startGreen.
//
//	green:     (n+s)/2 + (w+e)/2 + c
//	red, blue: (nw+ne+sw+se)/4 + (n+w+e+s)/4 + c
func ComputeGrey(w Window, startGreen bool) GreyStrip {
	n := len(w.Center)/2 - 2
	if n <= 0 {
		return nil
	}

	grey := make(GreyStrip, n)
	green := startGreen
	for i := range grey {
		k := i + 1
		c := sample(w.Center, k)
		north := sample(w.Previous, k)
		south := sample(w.Next, k)
		west := sample(w.Center, k-1)
		east := sample(w.Center, k+1)

		if green {
			grey[i] = (north+south)/2 + (west+east)/2 + c
		} else {
			nw := sample(w.Previous, k-1)
			ne := sample(w.Previous, k+1)
			sw := sample(w.Next, k-1)
			se := sample(w.Next, k+1)
			grey[i] = (nw+ne+sw+se)/4 + (north+west+east+south)/4 + c
		}
		green = !green
	}
	return grey
}

// Contrast is the total variation of the strip
func Contrast(grey GreyStrip) uint32 {
	var contrast uint32
	for i := 1; i < len(grey); i++ {
		if grey[i-1] < grey[i] {
			contrast += grey[i] - grey[i-1]
		} else {
			contrast += grey[i-1] - grey[i]
		}
	}
	return contrast
}

// ComputeContrast scores the sharpness of a window
func ComputeContrast(w Window, startGreen bool) uint32 {
	return Contrast(ComputeGrey(w, startGreen))
}
