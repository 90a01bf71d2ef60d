package model

import "time"

// User 用户
type User struct {
	BaseModel
	Name      string     `gorm:"column:name;size:255" json:"name" validate:"required,words=2"`
	Email     string     `gorm:"column:email;size:255;uniqueIndex" json:"email" validate:"required,email"`
	Picture   string     `gorm:"column:picture" json:"picture,omitempty" validate:"omitempty,url"`
	Birthdate *time.Time `gorm:"column:birthdate" json:"birthdate,omitempty"` // optional, ages derive from it
}

func (User) TableName() string {
	return "t_user"
}

func (*User) Kind() Kind { return KindUser }

func (u *User) Fields() map[string]any {
	f := u.BaseModel.fields()
	f["name"] = u.Name
	f["email"] = u.Email
	f["picture"] = u.Picture
	f["birthdate"] = optionalTime(u.Birthdate)
	return f
}

func (u *User) Clone() Record {
	c := *u
	c.Birthdate = cloneTime(u.Birthdate)
	return &c
}

// Admin is a principal with elevated scope, structurally identical to User.
type Admin struct {
	BaseModel
	Name    string `gorm:"column:name;size:255" json:"name" validate:"required,words=2"`
	Email   string `gorm:"column:email;size:255;uniqueIndex" json:"email" validate:"required,email"`
	Picture string `gorm:"column:picture" json:"picture,omitempty" validate:"omitempty,url"`
}

func (Admin) TableName() string {
	return "t_admin"
}

func (*Admin) Kind() Kind { return KindAdmin }

func (a *Admin) Fields() map[string]any {
	f := a.BaseModel.fields()
	f["name"] = a.Name
	f["email"] = a.Email
	f["picture"] = a.Picture
	return f
}

func (a *Admin) Clone() Record {
	c := *a
	return &c
}
