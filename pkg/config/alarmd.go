package config

// AlarmdConfig configures cmd/alarmd: the SQLite rule/log store, the hub
// this process subscribes to "/tags/update" on, and the optional Azure
// Table cloud mirror.
type AlarmdConfig struct {
	StorePath string `json:"store_path"`

	LocalAddr string `json:"local_addr"`
	HubAddr   string `json:"hub_addr"`

	CloudMirrorEnabled bool   `json:"cloud_mirror_enabled"`
	CloudServiceURL    string `json:"cloud_service_url,omitempty"`
	CloudAccount       string `json:"cloud_account,omitempty"`
	CloudKey           string `json:"cloud_key,omitempty"`
	CloudTableName     string `json:"cloud_table_name,omitempty"`
}
