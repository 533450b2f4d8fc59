package lwbus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// T1: framing round-trip across arbitrary chunk sizes.
func TestReceiverRoundTripArbitraryChunking(t *testing.T) {
	want := NewFrame(MsgRPC, StatusSuccess, 42, "/drv1/control", []byte(`{"name":"t1","value":"42"}`))
	encoded, err := Encode(want)
	require.NoError(t, err)

	for _, chunkSize := range []int{1, 2, 3, 7, 16, len(encoded)} {
		r := NewReceiver()
		var got []Frame
		for i := 0; i < len(encoded); i += chunkSize {
			end := i + chunkSize
			if end > len(encoded) {
				end = len(encoded)
			}
			cont, err := r.Feed(encoded[i:end], func(f Frame) bool {
				cp := Frame{Header: f.Header, URL: f.URL, Payload: append([]byte(nil), f.Payload...)}
				got = append(got, cp)
				return true
			})
			require.NoError(t, err, "chunkSize=%d", chunkSize)
			require.True(t, cont)
		}
		require.Len(t, got, 1, "chunkSize=%d", chunkSize)
		require.Equal(t, want.Header.Type, got[0].Header.Type)
		require.Equal(t, want.Header.Status, got[0].Header.Status)
		require.Equal(t, want.Header.Seqno, got[0].Header.Seqno)
		require.Equal(t, want.URL, got[0].URL)
		require.Equal(t, want.Payload, got[0].Payload)
	}
}

func TestReceiverMultipleFramesOneFeed(t *testing.T) {
	f1, _ := Encode(NewFrame(MsgPublish, StatusSuccess, 1, "/a", []byte("one")))
	f2, _ := Encode(NewFrame(MsgPublish, StatusSuccess, 2, "/b", []byte("two")))

	r := NewReceiver()
	var urls []string
	_, err := r.Feed(append(f1, f2...), func(f Frame) bool {
		urls = append(urls, f.URL)
		return true
	})
	require.NoError(t, err)
	require.Equal(t, []string{"/a", "/b"}, urls)
}

// T2: oversize rejection without invoking the callback.
func TestFeedOversizeFrameRejected(t *testing.T) {
	hdr := make([]byte, HeaderLen)
	EncodeHeader(hdr, Header{Type: MsgPublish, DataLen: MaxFrameLen}) // 12 + 0 + MaxFrameLen > MaxFrameLen

	r := NewReceiver()
	called := false
	_, err := r.Feed(hdr, func(Frame) bool {
		called = true
		return true
	})
	require.ErrorIs(t, err, ErrFrameTooLarge)
	require.False(t, called)
}

func TestFeedBadMagicRejected(t *testing.T) {
	hdr := make([]byte, HeaderLen)
	EncodeHeader(hdr, Header{Type: MsgPublish})
	hdr[0] = 0xAA

	r := NewReceiver()
	_, err := r.Feed(hdr, func(Frame) bool { return true })
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestFeedDeliverFalseStopsParsing(t *testing.T) {
	f1, _ := Encode(NewFrame(MsgPublish, StatusSuccess, 1, "/a", nil))
	f2, _ := Encode(NewFrame(MsgPublish, StatusSuccess, 2, "/b", nil))

	r := NewReceiver()
	n := 0
	cont, err := r.Feed(append(f1, f2...), func(Frame) bool {
		n++
		return false
	})
	require.NoError(t, err)
	require.False(t, cont)
	require.Equal(t, 1, n)
}

func TestEncodeDecodeHeaderRoundTrip(t *testing.T) {
	h := Header{Type: MsgAuth, Status: StatusAuthFailed, URLLen: 5, Seqno: 9001, DataLen: 17}
	buf := make([]byte, HeaderLen)
	EncodeHeader(buf, h)
	got, err := DecodeHeader(buf)
	require.NoError(t, err)
	require.Equal(t, h, got)
}
