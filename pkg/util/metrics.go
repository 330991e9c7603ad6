package util

import "time"

// TimeOperation runs op and returns how long it took in microseconds along
// with the error op returned.
func TimeOperation(op func() error) (int64, error) {
	start := time.Now()
	err := op()
	return time.Since(start).Microseconds(), err
}
