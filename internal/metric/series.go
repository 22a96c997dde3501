package metric

import (
	"math"
	"time"
)

// DefaultCapacity is the number of points retained per instance when no
// window is configured (10 minutes at a 1s interval).
const DefaultCapacity = 600

// Point is one stored sample. Timestamp is in seconds since the epoch,
// fractional for sub-second precision.
type Point struct {
	Timestamp float64 `json:"t"`
	Value     float64 `json:"v"`
}

// Time returns the point's timestamp as a time.Time.
func (p Point) Time() time.Time {
	sec, frac := math.Modf(p.Timestamp)
	return time.Unix(int64(sec), int64(frac*1e9))
}

// CapacityFor returns how many points cover window at the given poll interval.
func CapacityFor(window, interval time.Duration) int {
	if window <= 0 || interval <= 0 {
		return DefaultCapacity
	}
	n := int(window/interval) + 1
	if n < 2 {
		n = 2
	}
	return n
}

// ringBuffer is a fixed-size circular buffer of points.
type ringBuffer struct {
	data  []Point
	head  int
	count int
	size  int
}

func newRingBuffer(size int) *ringBuffer {
	if size <= 0 {
		size = DefaultCapacity
	}
	return &ringBuffer{
		data: make([]Point, size),
		size: size,
	}
}

func (r *ringBuffer) push(p Point) {
	r.data[r.head] = p
	r.head = (r.head + 1) % r.size
	if r.count < r.size {
		r.count++
	}
}

// getLast returns the last count points in chronological order (oldest first).
func (r *ringBuffer) getLast(count int) []Point {
	if count <= 0 || r.count == 0 {
		return nil
	}
	if count > r.count {
		count = r.count
	}

	result := make([]Point, count)
	// head is the next write position, so the newest point sits at head-1.
	start := (r.head - count + r.size) % r.size
	for i := 0; i < count; i++ {
		result[i] = r.data[(start+i)%r.size]
	}
	return result
}

func (r *ringBuffer) getAll() []Point {
	return r.getLast(r.count)
}

func (r *ringBuffer) latest() (Point, bool) {
	if r.count == 0 {
		return Point{}, false
	}
	return r.data[(r.head-1+r.size)%r.size], true
}

func (r *ringBuffer) reset() {
	r.head = 0
	r.count = 0
}

// instanceSeries is the stored series for one instance of a metric.
type instanceSeries struct {
	id   int
	name string
	buf  *ringBuffer
}

// seriesSet keeps per-instance series in first-seen order.
// Callers hold the owning metric's lock.
type seriesSet struct {
	capacity int
	byID     map[int]*instanceSeries
	order    []*instanceSeries
}

func newSeriesSet(capacity int) seriesSet {
	return seriesSet{
		capacity: capacity,
		byID:     make(map[int]*instanceSeries),
	}
}

func (s *seriesSet) getOrCreate(id int, name string) *instanceSeries {
	is, ok := s.byID[id]
	if !ok {
		is = &instanceSeries{id: id, name: name, buf: newRingBuffer(s.capacity)}
		s.byID[id] = is
		s.order = append(s.order, is)
	} else if name != "" && is.name != name {
		// Instance ids can be renamed when the remote indom changes.
		is.name = name
	}
	return is
}

func (s *seriesSet) byName(name string) *instanceSeries {
	for _, is := range s.order {
		if is.name == name {
			return is
		}
	}
	return nil
}

func (s *seriesSet) clear() {
	s.byID = make(map[int]*instanceSeries)
	s.order = nil
}

func (s *seriesSet) names() []string {
	out := make([]string, 0, len(s.order))
	for _, is := range s.order {
		out = append(out, is.name)
	}
	return out
}

func (s *seriesSet) latest() map[string]float64 {
	out := make(map[string]float64, len(s.order))
	for _, is := range s.order {
		if p, ok := is.buf.latest(); ok {
			out[is.name] = p.Value
		}
	}
	return out
}

func (s *seriesSet) snapshot() []SeriesSnapshot {
	out := make([]SeriesSnapshot, 0, len(s.order))
	for _, is := range s.order {
		out = append(out, SeriesSnapshot{
			InstanceID: is.id,
			Instance:   is.name,
			Points:     is.buf.getAll(),
		})
	}
	return out
}

// SeriesSnapshot is a copy of one instance's series.
type SeriesSnapshot struct {
	InstanceID int     `json:"instance"`
	Instance   string  `json:"name"`
	Points     []Point `json:"points"`
}
