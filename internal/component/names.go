package component

// Component names as they appear in resource ids and store keys.
const (
	NamePosition      = "position"
	NameVelocity      = "velocity"
	NameRadarReceiver = "radar_receiver"
	NameTransponder   = "radar_transponder"
	NameRadarContacts = "radar_contacts"
	NameMiningRes     = "mining_resource"
)
