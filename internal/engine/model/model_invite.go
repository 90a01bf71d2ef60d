package model

import "strings"

// Invite 邀请, consumed exactly once by the relation it authorises
type Invite struct {
	BaseModel
	Origin     string `gorm:"column:origin;size:255;index" json:"origin" validate:"required"` // user id or bare email
	Target     string `gorm:"column:target;size:64;index" json:"target" validate:"required"`
	TargetKind Kind   `gorm:"column:target_kind;size:16" json:"targetKind" validate:"required,oneof=organisation team"`
	Role       Role   `gorm:"column:role;size:32" json:"role,omitempty" validate:"omitempty,oneof=owner administrator event_manager event_viewer"`
	InvitedBy  string `gorm:"column:invited_by;size:64" json:"invitedBy" validate:"required"`
}

func (Invite) TableName() string {
	return "t_invite"
}

func (*Invite) Kind() Kind { return KindInvite }

func (i *Invite) Fields() map[string]any {
	f := i.BaseModel.fields()
	f["origin"] = i.Origin
	f["target"] = i.Target
	f["target_kind"] = string(i.TargetKind)
	f["role"] = string(i.Role)
	f["invited_by"] = i.InvitedBy
	return f
}

func (i *Invite) Clone() Record {
	c := *i
	return &c
}

// OriginIsEmail reports whether the invite is addressed to an unregistered email.
func (i *Invite) OriginIsEmail() bool {
	return strings.Contains(i.Origin, "@")
}
