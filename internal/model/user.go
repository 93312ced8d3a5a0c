package model

import "time"

// ModeSettings toggles the scheduled modes for a user.
type ModeSettings struct {
	HuntEnabled    bool   `json:"huntEnabled" yaml:"hunt_enabled"`
	WatchEnabled   bool   `json:"watchEnabled" yaml:"watch_enabled"`
	HuntDailyLimit int    `json:"huntDailyLimit" yaml:"hunt_daily_limit"`
	WatchListID    string `json:"watchListId,omitempty" yaml:"watch_list_id"`
}

// UserConfig is the per-user input to a run.
type UserConfig struct {
	UserID        string             `json:"userId" yaml:"user_id"`
	ICP           ICP                `json:"icp" yaml:"icp"`
	Signals       []SignalDefinition `json:"signals" yaml:"signals"`
	Modes         ModeSettings       `json:"modes" yaml:"modes"`
	MinConfidence *float64           `json:"minConfidence,omitempty" yaml:"min_confidence"`
	SenderName    string             `json:"senderName,omitempty" yaml:"sender_name"`
	UpdatedAt     time.Time          `json:"updatedAt" yaml:"-"`
}

// ListType distinguishes account lists.
type ListType string

const (
	ListTypeWatch        ListType = "watch"
	ListTypeDoNotContact ListType = "dnc"
)

// AccountList is a named list of accounts owned by a user.
type AccountList struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Type      ListType  `json:"type"`
	CreatedAt time.Time `json:"createdAt"`
}

// ListAccount is one entry in an AccountList.
type ListAccount struct {
	ListID      string `json:"listId"`
	Domain      string `json:"domain"`
	CompanyName string `json:"companyName,omitempty"`
}
