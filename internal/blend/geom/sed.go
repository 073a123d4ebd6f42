package geom

// SED is a sampled spectral energy distribution covering wavelengths
// [Lambda0, Lambda1] nanometres with uniformly spaced samples.
type SED struct {
	Samples []float64
	Lambda0 float64
	Lambda1 float64
}

// FlatSED returns a constant-valued SED over the given wavelength range.
func FlatSED(value, lambda0, lambda1 float64, n int) *SED {
	s := &SED{Samples: make([]float64, n), Lambda0: lambda0, Lambda1: lambda1}
	for i := range s.Samples {
		s.Samples[i] = value
	}
	return s
}

// At returns the linearly interpolated value at wavelength lambda,
// clamped to the endpoints outside the sampled range.
func (s *SED) At(lambda float64) float64 {
	n := len(s.Samples)
	if n == 0 {
		return 0
	}
	if n == 1 || lambda <= s.Lambda0 {
		return s.Samples[0]
	}
	if lambda >= s.Lambda1 {
		return s.Samples[n-1]
	}
	pos := (lambda - s.Lambda0) / (s.Lambda1 - s.Lambda0) * float64(n-1)
	i := int(pos)
	frac := pos - float64(i)
	return s.Samples[i]*(1-frac) + s.Samples[i+1]*frac
}
