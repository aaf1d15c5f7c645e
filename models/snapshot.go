package models

import (
	"time"
)

// Quelle eines Snapshots
const (
	SourceFile   = "file"
	SourceUpload = "upload"
)

// BibliographySnapshot speichert eine akzeptierte Bibliographie samt Rohtext.
type BibliographySnapshot struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	Source     string `json:"source" gorm:"index;not null"`
	FileName   string `json:"file_name"`
	Checksum   string `json:"checksum" gorm:"index;size:64;not null"`
	SizeBytes  int64  `json:"size_bytes"`
	EntryCount int    `json:"entry_count"`

	// Rohtext; wird beim Wiederherstellen erneut geparst
	Content string `json:"-" gorm:"type:text"`

	ArchiveURL string `json:"archive_url,omitempty"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (BibliographySnapshot) TableName() string {
	return "bibliography_snapshots"
}
