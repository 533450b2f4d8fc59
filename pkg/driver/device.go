package driver

import "sync"

// ConnDescriptor names a device's connection kind and its parameter
// string (e.g. "socketcan", "can0"; "modbus-tcp", "10.0.0.5:502") (§3).
type ConnDescriptor struct {
	Type  string
	Param string
}

// Device owns a list of Tags, indexed both by name and by address (§3).
// Tag data is guarded by a single mutex per device — lwbus's resolution
// of §5's "currently mutated without an explicit per-tag lock... a
// reimplementation SHOULD introduce one and document the widened
// guarantee": the guarantee here is device-wide, not per-tag.
type Device struct {
	Name        string
	Description string
	Conn        ConnDescriptor
	driver      *Driver

	mu            sync.RWMutex
	tags          []*Tag
	tagsByName    map[string]*Tag
	tagsByAddress map[string][]*Tag

	timers []*deviceTimer
}

// NewDevice constructs an empty Device owned by driver.
func NewDevice(driver *Driver, name, description string, conn ConnDescriptor) *Device {
	return &Device{
		Name:          name,
		Description:   description,
		Conn:          conn,
		driver:        driver,
		tagsByName:    make(map[string]*Tag),
		tagsByAddress: make(map[string][]*Tag),
	}
}

// AddTag registers tag with the device, rebuilding the address index
// since it stores non-owning references (§3: "must be rebuilt if the tag
// list is mutated").
func (d *Device) AddTag(tag *Tag) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tags = append(d.tags, tag)
	d.tagsByName[tag.Name] = tag
	d.rebuildAddressIndexLocked()
}

func (d *Device) rebuildAddressIndexLocked() {
	d.tagsByAddress = make(map[string][]*Tag, len(d.tags))
	for _, t := range d.tags {
		d.tagsByAddress[t.Address] = append(d.tagsByAddress[t.Address], t)
	}
}

// TagByName looks up a tag by its exact name.
func (d *Device) TagByName(name string) (*Tag, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tagsByName[name]
	return t, ok
}

// TagsByAddress returns every tag registered at address.
func (d *Device) TagsByAddress(address string) []*Tag {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]*Tag(nil), d.tagsByAddress[address]...)
}

// Tags returns a snapshot of every tag on this device.
func (d *Device) Tags() []*Tag {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]*Tag(nil), d.tags...)
}

// Driver returns the owning Driver.
func (d *Device) Driver() *Driver { return d.driver }
