package model

// Team 团队, its players are derived from PlaysIn edges
type Team struct {
	BaseModel
	Name        string `gorm:"column:name;size:255" json:"name" validate:"required"`
	Description string `gorm:"column:description" json:"description,omitempty"`
	Logo        string `gorm:"column:logo" json:"logo,omitempty"`
	Banner      string `gorm:"column:banner" json:"banner,omitempty"`
}

func (Team) TableName() string {
	return "t_team"
}

func (*Team) Kind() Kind { return KindTeam }

func (t *Team) Fields() map[string]any {
	f := t.BaseModel.fields()
	f["name"] = t.Name
	f["description"] = t.Description
	f["logo"] = t.Logo
	f["banner"] = t.Banner
	return f
}

func (t *Team) Clone() Record {
	c := *t
	return &c
}
