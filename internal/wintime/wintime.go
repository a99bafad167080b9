// Package wintime converts Windows FILETIME values to Go times.
package wintime

import "time"

// FILETIME counts 100-nanosecond intervals since 1601-01-01 UTC.
const (
	epochDelta   = 116444736000000000 // intervals between 1601 and the Unix epoch
	intervalsSec = 10000000
)

// ToTime converts a FILETIME value to a UTC time. Zero converts to the zero
// time, which callers treat as "not set".
func ToTime(ft uint64) time.Time {
	if ft == 0 {
		return time.Time{}
	}
	secs := int64((ft - epochDelta) / intervalsSec)
	nanos := int64((ft-epochDelta)%intervalsSec) * 100
	return time.Unix(secs, nanos).UTC()
}

// FromTime converts a Go time to a FILETIME value. The zero time converts
// to 0.
func FromTime(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.UnixNano()/100) + epochDelta
}
