// Package lwbus implements the wire protocol and framing core of a
// distributed pub/sub + RPC messaging bus for industrial field-bus
// integration: a fixed 12-byte header, URL-addressed publish/subscribe,
// and request/reply RPC, all running over plain TCP, UNIX or UDP sockets.
package lwbus

// MaxFrameLen is the largest total frame size (header + URL + payload)
// this protocol accepts. Frames that would exceed it are rejected at
// validation time, never partially buffered.
const MaxFrameLen = 131072

// HeaderLen is the fixed size of a Header once encoded.
const HeaderLen = 12

const (
	magicByte   uint8 = 0x09
	versionByte uint8 = 0x01
)

// MsgType identifies the kind of a frame.
type MsgType uint8

const (
	MsgServinfo    MsgType = 0
	MsgRPC         MsgType = 1
	MsgSubscribe   MsgType = 2
	MsgUnsubscribe MsgType = 3
	MsgPublish     MsgType = 4
	MsgDatagram    MsgType = 5
	MsgAuth        MsgType = 6
	MsgReplyFlag   MsgType = 0xFC
	MsgNoop        MsgType = 0xFE
	MsgPingEcho    MsgType = 0xFF
)

// Status is a one-byte reply status code.
type Status uint8

const (
	StatusSuccess       Status = 0
	StatusBadPassword   Status = 1
	StatusBadArguments  Status = 2
	StatusInvalidURL    Status = 3
	StatusNoResponding  Status = 4
	StatusNoPermissions Status = 5
	StatusNoMemory      Status = 6
	StatusAuthFailed    Status = 7
)
