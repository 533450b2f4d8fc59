package driver

import (
	"fmt"
	"strconv"

	"gopkg.in/ini.v1"
)

// LoadPointsIni parses a legacy ".points.ini" file into device and tag
// definitions, in the style of a field-bus commissioning export: one
// section per device named "[device:<name>]", and one section per tag
// named "[tag:<device>.<tag>]", grounded on od_parser.go's
// section.Key(...)-driven EDS parsing.
//
// A device section supports:
//
//	description = <string>
//	conn_type   = <string>   (e.g. "socketcan", "modbus-tcp")
//	conn_param  = <string>   (e.g. "can0", "10.0.0.5:502")
//
// A tag section supports:
//
//	name        = <string>
//	address     = <string>
//	type        = bool|int8|int16|int32|int64|uint8|uint16|uint32|uint64|float32|float64|text|blob
//	bit_length  = <int>
//	data_length = <int>
func LoadPointsIni(path string) ([]*Device, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("driver: load %s: %w", path, err)
	}

	devices := make(map[string]*Device)
	var order []string

	for _, section := range cfg.Sections() {
		name, ok := parseSectionName(section.Name(), "device:")
		if !ok {
			continue
		}
		dev := NewDevice(nil, name, section.Key("description").String(), ConnDescriptor{
			Type:  section.Key("conn_type").String(),
			Param: section.Key("conn_param").String(),
		})
		devices[name] = dev
		order = append(order, name)
	}

	for _, section := range cfg.Sections() {
		key, ok := parseSectionName(section.Name(), "tag:")
		if !ok {
			continue
		}
		deviceName, err := splitTagSection(key)
		if err != nil {
			return nil, fmt.Errorf("driver: %s: %w", path, err)
		}
		dev, ok := devices[deviceName]
		if !ok {
			return nil, fmt.Errorf("driver: %s: tag section %q references unknown device %q", path, section.Name(), deviceName)
		}

		tag, err := newTagFromSection(section)
		if err != nil {
			return nil, fmt.Errorf("driver: %s: %s: %w", path, section.Name(), err)
		}
		dev.AddTag(tag)
	}

	result := make([]*Device, 0, len(order))
	for _, name := range order {
		result = append(result, devices[name])
	}
	return result, nil
}

func parseSectionName(section, prefix string) (string, bool) {
	if len(section) <= len(prefix) || section[:len(prefix)] != prefix {
		return "", false
	}
	return section[len(prefix):], true
}

func splitTagSection(key string) (device string, err error) {
	for i := 0; i < len(key); i++ {
		if key[i] == '.' {
			return key[:i], nil
		}
	}
	return "", fmt.Errorf("tag section key %q missing \"<device>.<tag>\" separator", key)
}

func newTagFromSection(section *ini.Section) (*Tag, error) {
	typ, err := parseDataType(section.Key("type").String())
	if err != nil {
		return nil, err
	}
	bitLength, err := strconv.Atoi(section.Key("bit_length").String())
	if err != nil {
		return nil, fmt.Errorf("bad bit_length: %w", err)
	}
	dataLength, err := strconv.Atoi(section.Key("data_length").String())
	if err != nil {
		return nil, fmt.Errorf("bad data_length: %w", err)
	}
	name := section.Key("name").String()
	address := section.Key("address").String()
	return NewTag(name, address, typ, bitLength, dataLength), nil
}

func parseDataType(s string) (DataType, error) {
	switch s {
	case "bool":
		return TypeBool, nil
	case "int8":
		return TypeInt8, nil
	case "int16":
		return TypeInt16, nil
	case "int32":
		return TypeInt32, nil
	case "int64":
		return TypeInt64, nil
	case "uint8":
		return TypeUint8, nil
	case "uint16":
		return TypeUint16, nil
	case "uint32":
		return TypeUint32, nil
	case "uint64":
		return TypeUint64, nil
	case "float32":
		return TypeFloat32, nil
	case "float64":
		return TypeFloat64, nil
	case "text":
		return TypeText, nil
	case "blob":
		return TypeBlob, nil
	default:
		return 0, fmt.Errorf("unknown tag type %q", s)
	}
}
