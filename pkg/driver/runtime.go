package driver

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lwedge/lwbus"
)

// controlRequest is the JSON body of a "/<name>/control" RPC, matching
// §6's wire shape "{name, value}" exactly; cmd_id is optional and
// reserved for future command kinds (always 0 today, per §4.6).
type controlRequest struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	CmdID int64  `json:"cmd_id,omitempty"`
}

type controlReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// handleControlRPC is registered on the driver's local server at
// "/<name>/control": it resolves the named tag across every device this
// driver owns, calls OnControl, applies the new value, and publishes a
// /tags/update datagram carrying just that tag so every other subscriber
// sees the new value (§4.6's write-command flow).
func (d *Driver) handleControlRPC(url string, payload []byte) ([]byte, lwbus.Status) {
	var req controlRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return encodeControlReply(false, "bad request: "+err.Error()), lwbus.StatusBadArguments
	}

	dev, tag, ok := d.tagByName(req.Name)
	if !ok {
		return encodeControlReply(false, "unknown tag: "+req.Name), lwbus.StatusInvalidURL
	}

	if err := d.handlers.OnControl(dev, tag, req.Value, req.CmdID); err != nil {
		return encodeControlReply(false, err.Error()), lwbus.StatusBadArguments
	}
	if err := tag.SetFromString(req.Value); err != nil {
		return encodeControlReply(false, err.Error()), lwbus.StatusBadArguments
	}
	tag.TimestampMs = time.Now().UnixMilli()

	d.publishTagUpdate(dev, []*Tag{tag})
	return encodeControlReply(true, ""), lwbus.StatusSuccess
}

func encodeControlReply(ok bool, errMsg string) []byte {
	buf, _ := json.Marshal(controlReply{OK: ok, Error: errMsg})
	return buf
}

func (d *Driver) tagByName(name string) (*Device, *Tag, bool) {
	for _, dev := range d.Devices() {
		if tag, ok := dev.TagByName(name); ok {
			return dev, tag, true
		}
	}
	return nil, nil, false
}

// tagUpdate is one entry of the /tags/update payload array, matching
// §6's wire shape "[{name, value, time_ms, quality}]" exactly.
type tagUpdate struct {
	Name        string `json:"name"`
	Value       string `json:"value"`
	TimestampMs int64  `json:"time_ms"`
	Quality     uint32 `json:"quality"`
}

// UpdateTags serialises the current value of tags belonging to dev into
// a /tags/update datagram and forwards it to the hub, mirroring the
// original drv_update_tagsdata entry point a device-polling loop calls
// after refreshing values from the physical bus.
func (d *Driver) UpdateTags(dev *Device, tags []*Tag) {
	d.publishTagUpdate(dev, tags)
}

func (d *Driver) publishTagUpdate(dev *Device, tags []*Tag) {
	updates := make([]tagUpdate, 0, len(tags))
	for _, t := range tags {
		updates = append(updates, tagUpdate{
			Name:        t.Name,
			Value:       t.String(),
			TimestampMs: t.TimestampMs,
			Quality:     t.Quality,
		})
	}
	buf, err := json.Marshal(updates)
	if err != nil {
		d.logger.Error("marshal /tags/update failed", "error", err)
		return
	}
	// §4.6: the driver's own embedded server publishes under
	// "/<name>/data" for a direct subscriber; the hub-facing datagram
	// still uses the shared "/tags/update" topic so lwhub's OnDatagram
	// forwarding can fan it out to every hub subscriber regardless of
	// which driver sent it.
	d.localServer.Publish(fmt.Sprintf("/%s/data", d.Name), buf)
	if d.hubClient.Connected() {
		if err := d.hubClient.Datagram(topicUpdate, buf); err != nil {
			d.logger.Warn("send /tags/update to hub failed", "error", err)
		}
	}
}
