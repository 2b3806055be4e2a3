// Package rtc defines the date/time values stamped onto data block headers
// and the clock contract the command engine runs against. The real-time clock
// chip itself is a peripheral behind this interface.
package rtc

import (
	"sync"
	"time"
)

// Date is a calendar date as stored by the RTC chip (two-digit year).
type Date struct {
	YY uint8
	MM uint8
	DD uint8
}

// Time is a wall-clock time as stored by the RTC chip.
type Time struct {
	HH uint8
	MM uint8
	SS uint8
}

// Clock reads and sets the onboard real-time clock.
type Clock interface {
	ReadDate() Date
	ReadTime() Time
	SetDate(Date)
	SetTime(Time)
}

// SystemClock adapts the host clock to the RTC contract. Setting the date or
// time records an offset from the host clock rather than touching it.
type SystemClock struct {
	mu     sync.Mutex
	offset time.Duration
}

func NewSystemClock() *SystemClock {
	return &SystemClock{}
}

func (c *SystemClock) now() time.Time {
	c.mu.Lock()
	off := c.offset
	c.mu.Unlock()
	return time.Now().Add(off)
}

func (c *SystemClock) ReadDate() Date {
	t := c.now()
	return Date{YY: uint8(t.Year() % 100), MM: uint8(t.Month()), DD: uint8(t.Day())}
}

func (c *SystemClock) ReadTime() Time {
	t := c.now()
	return Time{HH: uint8(t.Hour()), MM: uint8(t.Minute()), SS: uint8(t.Second())}
}

func (c *SystemClock) SetDate(d Date) {
	now := time.Now().Add(c.offsetLocked())
	target := time.Date(2000+int(d.YY), time.Month(d.MM), int(d.DD),
		now.Hour(), now.Minute(), now.Second(), 0, now.Location())
	c.shift(target.Sub(now))
}

func (c *SystemClock) SetTime(tm Time) {
	now := time.Now().Add(c.offsetLocked())
	target := time.Date(now.Year(), now.Month(), now.Day(),
		int(tm.HH), int(tm.MM), int(tm.SS), 0, now.Location())
	c.shift(target.Sub(now))
}

func (c *SystemClock) offsetLocked() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offset
}

func (c *SystemClock) shift(d time.Duration) {
	c.mu.Lock()
	c.offset += d
	c.mu.Unlock()
}
