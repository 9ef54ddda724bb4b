package notes

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/harsh8423/BookX-AI-based-digital-content-explainer/internal/session"
)

// Store persists notes and the explanation cache in Postgres.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the backing tables.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&Note{}, &CachedExplanation{})
}

// SaveNote upserts the note for its (pdf, topic, section, subsection)
// identity. Replaying the same explanation refreshes content in place.
func (s *Store) SaveNote(ctx context.Context, n session.SavedNote) error {
	row := Note{
		ID:              uuid.New(),
		PDFID:           n.PDFID,
		Topic:           n.Topic,
		SectionTitle:    n.SectionTitle,
		SubsectionTitle: n.SubsectionTitle,
		StartPage:       n.StartPage,
		EndPage:         n.EndPage,
		ReadingContent:  n.ReadingContent,
		TextContent:     n.TextContent,
		AudioURL:        n.AudioRef,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "pdf_id"}, {Name: "topic"}, {Name: "section_title"}, {Name: "subsection_title"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"start_page", "end_page", "reading_content", "text_content", "audio_url", "updated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save note: %w", err)
	}
	return nil
}

// NotesForPDF lists saved notes for one document, newest first.
func (s *Store) NotesForPDF(ctx context.Context, pdfID string) ([]Note, error) {
	var rows []Note
	err := s.db.WithContext(ctx).
		Where("pdf_id = ?", pdfID).
		Order("updated_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return rows, nil
}

// FindNote returns the saved note for a section identity, or nil when the
// section has never been completed.
func (s *Store) FindNote(ctx context.Context, pdfID, topic, sectionTitle, subsectionTitle string) (*Note, error) {
	var n Note
	err := s.db.WithContext(ctx).
		Where("pdf_id = ? AND topic = ? AND section_title = ? AND subsection_title = ?",
			pdfID, topic, sectionTitle, subsectionTitle).
		First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find note: %w", err)
	}
	return &n, nil
}

// LookupExplanation returns the cached asset for key, or nil when absent.
func (s *Store) LookupExplanation(ctx context.Context, key string) (*CachedExplanation, error) {
	var row CachedExplanation
	err := s.db.WithContext(ctx).Where("cache_key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup explanation: %w", err)
	}
	return &row, nil
}

// InsertExplanation records a freshly generated asset under key. A concurrent
// insert of the same key wins silently; the first asset stays authoritative.
func (s *Store) InsertExplanation(ctx context.Context, row CachedExplanation) error {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cache_key"}},
		DoNothing: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("insert explanation: %w", err)
	}
	return nil
}
