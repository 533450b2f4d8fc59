package lwbus

import (
	"encoding/binary"
)

// Header is the fixed 12-byte frame header described by the wire protocol:
//
//	magic:u8=0x09, version:u8=0x01, type:u8, status:u8,
//	url_len:u16, seqno:u16, data_len:u32   (all big-endian)
type Header struct {
	Type    MsgType
	Status  Status
	URLLen  uint16
	Seqno   uint16
	DataLen uint32
}

// EncodeHeader writes h into the first HeaderLen bytes of dst, which must
// have length >= HeaderLen.
func EncodeHeader(dst []byte, h Header) {
	dst[0] = magicByte
	dst[1] = versionByte
	dst[2] = uint8(h.Type)
	dst[3] = uint8(h.Status)
	binary.BigEndian.PutUint16(dst[4:6], h.URLLen)
	binary.BigEndian.PutUint16(dst[6:8], h.Seqno)
	binary.BigEndian.PutUint32(dst[8:12], h.DataLen)
}

// DecodeHeader parses the first HeaderLen bytes of src into a Header,
// validating magic, version and total frame length. It does not require
// the URL/payload bytes to be present yet.
func DecodeHeader(src []byte) (Header, error) {
	if len(src) < HeaderLen {
		return Header{}, ErrShortHeader
	}
	if src[0] != magicByte {
		return Header{}, ErrBadMagic
	}
	if src[1] != versionByte {
		return Header{}, ErrBadVersion
	}
	h := Header{
		Type:    MsgType(src[2]),
		Status:  Status(src[3]),
		URLLen:  binary.BigEndian.Uint16(src[4:6]),
		Seqno:   binary.BigEndian.Uint16(src[6:8]),
		DataLen: binary.BigEndian.Uint32(src[8:12]),
	}
	if uint64(HeaderLen)+uint64(h.URLLen)+uint64(h.DataLen) > MaxFrameLen {
		return Header{}, ErrFrameTooLarge
	}
	return h, nil
}

// Frame is a fully decoded message: its header plus the URL and payload
// that followed it. Frame.URL and Frame.Payload borrow from the buffer
// they were parsed out of (see Receiver) unless explicitly copied.
type Frame struct {
	Header  Header
	URL     string
	Payload []byte
}

// Encode serialises f into a newly allocated byte slice.
func Encode(f Frame) ([]byte, error) {
	if len(f.URL) > 0xFFFF {
		return nil, ErrURLTooLong
	}
	total := HeaderLen + len(f.URL) + len(f.Payload)
	if total > MaxFrameLen {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, total)
	EncodeHeader(buf, Header{
		Type:    f.Header.Type,
		Status:  f.Header.Status,
		URLLen:  uint16(len(f.URL)),
		Seqno:   f.Header.Seqno,
		DataLen: uint32(len(f.Payload)),
	})
	copy(buf[HeaderLen:], f.URL)
	copy(buf[HeaderLen+len(f.URL):], f.Payload)
	return buf, nil
}

// NewFrame is a small convenience constructor for the common case of
// building a frame destined for Encode.
func NewFrame(typ MsgType, status Status, seqno uint16, url string, payload []byte) Frame {
	return Frame{
		Header:  Header{Type: typ, Status: status, Seqno: seqno},
		URL:     url,
		Payload: payload,
	}
}
