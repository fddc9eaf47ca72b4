package stream

import "sync"

// Reasons reported when a stream is refused.
const (
	limitPerIP = "per_ip"
	limitTotal = "total"
)

// streamLimiter caps open streams per client IP and across the server.
type streamLimiter struct {
	mu       sync.Mutex
	open     map[string]int
	total    int
	maxPerIP int
	maxTotal int
}

func newStreamLimiter(maxPerIP, maxTotal int) *streamLimiter {
	return &streamLimiter{open: map[string]int{}, maxPerIP: maxPerIP, maxTotal: maxTotal}
}

// acquire reserves a stream slot for ip. It returns a release func that is
// safe to call more than once, or the refusal reason when no slot is free.
func (l *streamLimiter) acquire(ip string) (release func(), refused string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case l.total >= l.maxTotal:
		return nil, limitTotal
	case l.open[ip] >= l.maxPerIP:
		return nil, limitPerIP
	}
	l.open[ip]++
	l.total++

	var once sync.Once
	return func() { once.Do(func() { l.release(ip) }) }, ""
}

func (l *streamLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch n := l.open[ip]; n {
	case 0:
		return
	case 1:
		delete(l.open, ip)
	default:
		l.open[ip] = n - 1
	}
	l.total--
}

// counts returns the open streams for ip and in total.
func (l *streamLimiter) counts(ip string) (perIP, total int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open[ip], l.total
}
