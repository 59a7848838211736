package models

import "gorm.io/gorm"

// Instrument caches the symbol behind a brokerage instrument URL.
// Instrument URLs are stable, so a resolved symbol never needs refreshing.
type Instrument struct {
	gorm.Model
	URL    string `gorm:"uniqueIndex;not null"`
	Symbol string `gorm:"not null"`
}
