package model

// Reward is something a user can spend credits on.
//
// Rewards live in two independent collections: the global catalog
// (rewards:catalog) that admins curate, and a per-user copy inside each
// UserData. Claiming only ever touches the per-user copy.
//
// ExternalURL is serialized as "amazonUrl" because that is the field name
// already present in stored data.
type Reward struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Credits     int    `json:"credits"`
	Claimed     bool   `json:"claimed"`
	ImgURL      string `json:"imgUrl,omitempty"`
	ExternalURL string `json:"amazonUrl,omitempty"`
}
