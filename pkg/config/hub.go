package config

// HubConfig configures cmd/lwhub: the messaging server's listen address,
// optional Noise auth keypair, and SPDP discovery participation.
type HubConfig struct {
	ListenAddr string `json:"listen_addr"`

	SPDPEnabled     bool   `json:"spdp_enabled"`
	SPDPPort        int    `json:"spdp_port"`
	ParticipantName string `json:"participant_name"`

	BroadcastEnabled bool   `json:"broadcast_enabled"`
	BroadcastPort    int    `json:"broadcast_port"`
	ServerName       string `json:"server_name"`

	NoisePrivateKeyB64 string `json:"noise_private_key_b64,omitempty"`
	NoisePublicKeyB64  string `json:"noise_public_key_b64,omitempty"`
}
