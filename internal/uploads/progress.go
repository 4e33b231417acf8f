package uploads

import "io"

// progressReader reports bytes flowing through it as a percentage mapped
// onto the [lo, hi] segment of the task's 0..100 scale.
type progressReader struct {
	inner  io.Reader
	total  int64
	read   int64
	lo     int
	hi     int
	report func(percent int)
}

func newProgressReader(inner io.Reader, total int64, lo, hi int, report func(percent int)) *progressReader {
	return &progressReader{inner: inner, total: total, lo: lo, hi: hi, report: report}
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.inner.Read(buf)
	if n > 0 {
		p.read += int64(n)
		p.report(p.percent())
	}
	return n, err
}

func (p *progressReader) percent() int {
	if p.total <= 0 {
		return p.lo
	}
	fraction := float64(p.read) / float64(p.total)
	if fraction > 1 {
		fraction = 1
	}
	return p.lo + int(fraction*float64(p.hi-p.lo))
}
