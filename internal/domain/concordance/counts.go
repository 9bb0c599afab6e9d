package concordance

import "math"

// Counts tallies usable pairs by outcome.
type Counts struct {
	Concordant int64
	Discordant int64
	Tied       int64
}

// Usable is the number of comparable pairs.
func (c Counts) Usable() int64 { return c.Concordant + c.Discordant + c.Tied }

// Add returns the element-wise sum.
func (c Counts) Add(o Counts) Counts {
	return Counts{
		Concordant: c.Concordant + o.Concordant,
		Discordant: c.Discordant + o.Discordant,
		Tied:       c.Tied + o.Tied,
	}
}

// Raw is (concordant + 0.5 tied) / usable, or NaN without usable pairs.
func (c Counts) Raw() float64 {
	u := c.Usable()
	if u == 0 {
		return math.NaN()
	}
	return (float64(c.Concordant) + 0.5*float64(c.Tied)) / float64(u)
}

// Oriented is max(raw, 1-raw). Callers may pass risk or survival-like scores;
// this cannot tell an inverted model from an informative one.
func (c Counts) Oriented() float64 {
	raw := c.Raw()
	if math.IsNaN(raw) {
		return raw
	}
	return math.Max(raw, 1-raw)
}

// compare classifies the pair where hi is the score of the subject that had the
// event first.
func (c *Counts) compare(hi, lo float64) {
	switch {
	case hi > lo:
		c.Concordant++
	case hi < lo:
		c.Discordant++
	default:
		c.Tied++
	}
}
