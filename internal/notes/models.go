package notes

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Note is a completed explanation persisted for later review. One row per
// (pdf, topic, section, subsection); replaying an explanation updates the
// existing row instead of duplicating it.
type Note struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	PDFID           string    `gorm:"column:pdf_id;index:idx_notes_identity,unique"`
	Topic           string    `gorm:"index:idx_notes_identity,unique"`
	SectionTitle    string    `gorm:"index:idx_notes_identity,unique"`
	SubsectionTitle string    `gorm:"index:idx_notes_identity,unique"`
	StartPage       int
	EndPage         int
	ReadingContent  string `gorm:"type:text"`
	TextContent     string `gorm:"type:text"`
	AudioURL        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CachedExplanation maps a content range to a previously generated narration
// asset so repeat requests skip text generation and synthesis entirely.
type CachedExplanation struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	CacheKey    string    `gorm:"uniqueIndex"`
	PDFID       string    `gorm:"column:pdf_id"`
	Topic       string
	StartPage   int
	EndPage     int
	TextContent string `gorm:"type:text"`
	AudioURL    string
	CreatedAt   time.Time
}

// CacheKey derives the lookup key for an explanation request. Key parts are
// joined with underscores and any character outside [a-zA-Z0-9] is folded to
// an underscore so the key is safe to reuse as a storage object name.
func CacheKey(pdfID, topic string, startPage, endPage int) string {
	raw := pdfID + "_" + topic + "_" + strconv.Itoa(startPage) + "_" + strconv.Itoa(endPage)
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
