package models

import "time"

// CalendarEvent is a snapshot of one upcoming calendar event.
// It is independent of the calendar provider it was read from.
type CalendarEvent struct {
	Title       string    // Summary or title of the event
	Start       time.Time // Start of the event
	End         time.Time // End of the event
	AllDay      bool      // Start and End carry a date only
	Location    string    // Optional location
	Description string    // Optional description
	Source      string    // Where the event came from (e.g., "google", "caldav")
}

// EmailSummary holds the metadata of one recent message. The body is never fetched.
type EmailSummary struct {
	ID      string
	Subject string
	Sender  string
	Date    string // Raw Date header
	Snippet string
}

// DriveFile describes a recently modified file.
type DriveFile struct {
	ID           string
	Name         string
	ModifiedTime time.Time
	MimeType     string
}

// ContextBundle is everything collected during one polling tick.
type ContextBundle struct {
	Events []CalendarEvent
	Emails []EmailSummary
	Files  []DriveFile
}
