package utils

import (
	"strings"
	"time"
)

func ConvertTimeStampToTime(timestamp int64) time.Time {
	return time.Unix(timestamp/1000, (timestamp%1000)*int64(time.Millisecond))
}

func NowMillis() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}

// FindInSlice takes a slice and looks for an element in it. If found it will
// return it's key, otherwise it will return -1 and a bool of false.
// Surrounding spaces and a UTF-8 BOM are ignored.
func FindInSlice(slice []string, val string) (int, bool) {
	for i, item := range slice {
		if strings.TrimSpace(strings.TrimPrefix(item, "\ufeff")) == val {
			return i, true
		}
	}
	return -1, false
}
