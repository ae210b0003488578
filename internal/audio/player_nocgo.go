//go:build nocgo
// +build nocgo

package audio

import "fmt"

// DeviceOpener is unavailable in builds without cgo; use MockOpener instead.
type DeviceOpener struct{}

// Open implements Opener.
func (DeviceOpener) Open(cfg SinkConfig) (Sink, error) {
	return nil, fmt.Errorf("%w: built without cgo audio support", ErrDeviceUnavailable)
}
