package models

import (
	"encoding/json"
)

// Profile is the role-specific half of a user. Exactly one variant exists
// per user, chosen by User.Role.
type Profile interface {
	Kind() Role
}

func (*ClientProfile) Kind() Role    { return RoleClient }
func (*SolicitorProfile) Kind() Role { return RoleSolicitor }
func (*AdminProfile) Kind() Role     { return RoleAdmin }

// ProfileOf returns the loaded profile variant matching the user's role, or
// nil if it was not preloaded.
func (u *User) ProfileOf() Profile {
	switch u.Role {
	case RoleClient:
		if u.ClientProfile != nil {
			return u.ClientProfile
		}
	case RoleSolicitor:
		if u.SolicitorProfile != nil {
			return u.SolicitorProfile
		}
	case RoleAdmin:
		if u.AdminProfile != nil {
			return u.AdminProfile
		}
	}
	return nil
}

// ProfileEnvelope is the wire shape of a Profile: a kind discriminator plus
// the variant's own fields.
type ProfileEnvelope struct {
	Kind Role    `json:"kind"`
	Data Profile `json:"data"`
}

func (e ProfileEnvelope) MarshalJSON() ([]byte, error) {
	type wire struct {
		Kind Role            `json:"kind"`
		Data json.RawMessage `json:"data"`
	}
	if e.Data == nil {
		return json.Marshal(wire{Kind: e.Kind, Data: json.RawMessage("null")})
	}
	raw, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wire{Kind: e.Data.Kind(), Data: raw})
}
