package resample

// Option applies a configuration option to the Resampler.
type Option func(*Resampler)

// WithSeed fixes the seed so the split sequence is reproducible.
func WithSeed(seed int64) Option {
	return func(r *Resampler) {
		r.seed = seed
		r.seeded = true
	}
}

// WithMinStratumSize sets the smallest stratum the resampler accepts.
// Values below 2 are ignored since a stratum must reach both partitions.
func WithMinStratumSize(n int) Option {
	return func(r *Resampler) {
		if n >= 2 {
			r.minStratum = n
		}
	}
}
