package store

// WatermarkDimension is the measured value of a watermark.
type WatermarkDimension uint8

// Watermark dimensions.
const (
	CountWatermark WatermarkDimension = iota + 1
	BytesWatermark
)

func (d WatermarkDimension) String() string {
	switch d {
	case CountWatermark:
		return "count"
	case BytesWatermark:
		return "bytes"
	default:
		return "unknown"
	}
}

// WatermarkEvent describes a watermark crossing. The condition may no
// longer hold when the event is delivered.
type WatermarkEvent struct {
	Dimension WatermarkDimension
	// Rising is true if the value reached the high watermark and false if
	// it fell back to the low watermark.
	Rising    bool
	Value     int64
	Threshold int64
}

type watermark struct {
	low, high int64
	above     bool
}

func (w *watermark) check(dimension WatermarkDimension, value int64) (WatermarkEvent, bool) {
	if w.high <= 0 {
		return WatermarkEvent{}, false
	}

	if !w.above {
		if value >= w.high {
			w.above = true
			return WatermarkEvent{Dimension: dimension, Rising: true, Value: value, Threshold: w.high}, true
		}
		return WatermarkEvent{}, false
	}

	falling := value <= w.low
	threshold := w.low
	if w.low == 0 {
		falling = value < w.high
		threshold = w.high
	}
	if falling {
		w.above = false
		return WatermarkEvent{Dimension: dimension, Value: value, Threshold: threshold}, true
	}
	return WatermarkEvent{}, false
}

func (c *collection) setWatermarks(countLow, countHigh, bytesLow, bytesHigh int64) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.countMark = watermark{low: countLow, high: countHigh}
	c.bytesMark = watermark{low: bytesLow, high: bytesHigh}
	// Establish the current side without firing.
	c.countMark.above = countHigh > 0 && c.stats.Committed() >= countHigh
	c.bytesMark.above = bytesHigh > 0 && c.committedBytes() >= bytesHigh
}

func (c *collection) setLimits(maxCount, maxBytes int64) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.maxCount = maxCount
	c.maxBytes = maxBytes
}

func (c *collection) committedBytes() int64 {
	return c.stats.TotalBytes - c.addingBytes
}

// checkWatermarks queues events for all crossed watermarks. The listener
// is called by the notifier, outside the collection lock.
func (c *collection) checkWatermarks() {
	listener, ok := c.owner.(WatermarkListener)
	if !ok {
		return
	}

	if event, crossed := c.countMark.check(CountWatermark, c.stats.Committed()); crossed {
		c.store.notifier.queue(func() { listener.EventWatermarkBreached(event) })
	}
	if event, crossed := c.bytesMark.check(BytesWatermark, c.committedBytes()); crossed {
		c.store.notifier.queue(func() { listener.EventWatermarkBreached(event) })
	}
}
