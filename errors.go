package lwbus

import "errors"

var (
	// ErrBadMagic is returned when a header's magic byte doesn't match 0x09.
	ErrBadMagic = errors.New("lwbus: bad magic byte")
	// ErrBadVersion is returned when a header's version byte is unsupported.
	ErrBadVersion = errors.New("lwbus: unsupported protocol version")
	// ErrFrameTooLarge is returned when header+url+payload would exceed MaxFrameLen.
	ErrFrameTooLarge = errors.New("lwbus: frame exceeds maximum length")
	// ErrShortHeader is returned by DecodeHeader when fewer than HeaderLen bytes are given.
	ErrShortHeader = errors.New("lwbus: short header")
	// ErrURLTooLong is returned when a URL is longer than 65535 bytes.
	ErrURLTooLong = errors.New("lwbus: url exceeds 65535 bytes")
	// ErrPayloadTooLarge is returned when a payload does not fit under MaxFrameLen
	// alongside the given URL.
	ErrPayloadTooLarge = errors.New("lwbus: payload too large for url length")
)
