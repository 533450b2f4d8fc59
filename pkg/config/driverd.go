package config

// DriverdConfig configures cmd/driverd: which driver to load, the hub it
// connects to, and the legacy .points.ini file it reads tags from.
type DriverdConfig struct {
	DriverName  string `json:"driver_name"`
	Description string `json:"description"`

	LocalAddr string `json:"local_addr"`

	// HubAddr is the fixed hub address to connect to. Leave it empty and
	// set HubDiscoveryPort instead to use §4.4's legacy broadcast
	// "auto-discover a hub" shortcut.
	HubAddr          string `json:"hub_addr,omitempty"`
	HubDiscoveryPort int    `json:"hub_discovery_port,omitempty"`

	PointsIniPath string `json:"points_ini_path"`
}
