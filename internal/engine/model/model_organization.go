package model

// Tier is an organisation's billing tier.
type Tier string

const (
	TierFree       Tier = "free"
	TierBasic      Tier = "basic"
	TierBusiness   Tier = "business"
	TierEnterprise Tier = "enterprise"
)

// Paid reports whether the tier unlocks custom slugs.
func (t Tier) Paid() bool {
	return t == TierBasic || t == TierBusiness || t == TierEnterprise
}

// Organisation 组织
type Organisation struct {
	BaseModel
	Name        string `gorm:"column:name;size:255" json:"name" validate:"required"`
	Description string `gorm:"column:description" json:"description,omitempty"`
	Website     string `gorm:"column:website" json:"website,omitempty" validate:"omitempty,url"`
	Email       string `gorm:"column:email;size:255" json:"email" validate:"required,email"`
	Logo        string `gorm:"column:logo" json:"logo,omitempty"`
	Banner      string `gorm:"column:banner" json:"banner,omitempty"`
	Slug        string `gorm:"column:slug;size:64" json:"slug,omitempty"` // only honoured on paid tiers
	Tier        Tier   `gorm:"column:tier;size:16" json:"tier" validate:"required,oneof=free basic business enterprise"`
	PartOf      string `gorm:"column:part_of;size:64;index" json:"partOf,omitempty"` // parent organisation
}

func (Organisation) TableName() string {
	return "t_organisation"
}

func (*Organisation) Kind() Kind { return KindOrganisation }

func (o *Organisation) Fields() map[string]any {
	f := o.BaseModel.fields()
	f["name"] = o.Name
	f["description"] = o.Description
	f["website"] = o.Website
	f["email"] = o.Email
	f["logo"] = o.Logo
	f["banner"] = o.Banner
	f["slug"] = o.Slug
	f["tier"] = string(o.Tier)
	f["part_of"] = o.PartOf
	return f
}

func (o *Organisation) Clone() Record {
	c := *o
	return &c
}

// Manager is one entry of an organisation's computed managers list.
// Org is the organisation the assignment is held at.
type Manager struct {
	User   string `json:"user"`
	Role   Role   `json:"role"`
	Public bool   `json:"public"`
	Org    string `json:"org"`
}
