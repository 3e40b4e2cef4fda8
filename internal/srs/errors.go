package srs

import "errors"

// Sentinel errors for the srs package. Both indicate a programmer error:
// callers must never clamp or default their way around them.
var (
	ErrInvalidQuality = errors.New("srs: quality out of range [0, 5]")
	ErrUnknownRating  = errors.New("srs: unknown rating")
)
