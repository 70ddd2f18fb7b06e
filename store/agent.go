package store

// Agent is a reusable conversation preset.
type Agent struct {
	UID    string `yaml:"uid"`
	Name   string `yaml:"name"`
	Resume string `yaml:"resume"`
	Prompt string `yaml:"prompt"`
	Model  string `yaml:"model"`

	CreatedTs int64 `yaml:"-"`
	UpdatedTs int64 `yaml:"-"`
}

type FindAgent struct {
	UID *string
}

// UpdateAgent is a partial update; nil fields keep their value.
type UpdateAgent struct {
	UID       string
	Name      *string
	Resume    *string
	Prompt    *string
	Model     *string
	UpdatedTs *int64
}

// IsEmpty reports whether the update sets no field.
func (u *UpdateAgent) IsEmpty() bool {
	return u.Name == nil && u.Resume == nil && u.Prompt == nil && u.Model == nil
}

type DeleteAgent struct {
	UID string
}
