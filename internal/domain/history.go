package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// SearchMode values recorded with a search.
const (
	SearchModeLocal = "local"
)

// HistoryMatch is the compact form of a match kept in search history.
type HistoryMatch struct {
	ProductID    int64   `json:"product_id"`
	ProductName  string  `json:"product_name"`
	ProductImage string  `json:"product_image"`
	Score        float64 `json:"score"`
	Price        float64 `json:"price"`
}

// HistoryMatches stores a list of matches as JSON in the database.
type HistoryMatches []HistoryMatch

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the slice.
//   - error: non-nil if marshaling fails.
func (m HistoryMatches) Value() (driver.Value, error) {
	if m == nil {
		return "[]", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (m *HistoryMatches) Scan(value interface{}) error {
	if value == nil {
		*m = HistoryMatches{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan HistoryMatches")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, m)
}

// SearchHistory is one recorded match request of an identified caller.
type SearchHistory struct {
	ID           string         `gorm:"type:text;primaryKey" json:"id"`
	UserID       string         `gorm:"type:text;not null;index:idx_search_history_user" json:"user_id"`
	QueryImage   string         `gorm:"type:text;not null" json:"query_image"`
	SearchMode   string         `gorm:"type:text;default:local" json:"search_mode"`
	ResultsCount int            `gorm:"default:0" json:"results_count"`
	TopMatches   HistoryMatches `gorm:"type:text" json:"top_matches"`
	SearchedAt   time.Time      `gorm:"index:idx_search_history_user" json:"searched_at"`
}

// TableName returns the database table name for SearchHistory.
func (SearchHistory) TableName() string {
	return "search_history"
}
