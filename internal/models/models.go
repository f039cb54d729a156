// Package models defines the core data structures used throughout the application.
package models

import "time"

// User owns repositories.
type User struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash []byte    `json:"-"`
	Created      time.Time `json:"created"`
}

// Address is the postal address of a user. A user has at most one.
type Address struct {
	ID          int       `json:"id"`
	UserID      int       `json:"user_id"`
	PostalCode  string    `json:"postal_code"`
	City        string    `json:"city"`
	Street      string    `json:"street"`
	HouseNo     string    `json:"house_no"`
	ApartmentNo string    `json:"apartment_no,omitempty"`
	Created     time.Time `json:"created"`
	Modified    time.Time `json:"modified"`
}

// Repository groups texts of a user.
type Repository struct {
	ID       int       `json:"id"`
	UserID   int       `json:"user_id"`
	Name     string    `json:"name"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
}

// Text groups content files of a repository.
type Text struct {
	ID           int       `json:"id"`
	RepositoryID int       `json:"repository_id"`
	Name         string    `json:"name"`
	Created      time.Time `json:"created"`
	Modified     time.Time `json:"modified"`
	// HistoryBase is the repository history head when the text was created.
	// Older commits belong to a previous text with the same id.
	HistoryBase string `json:"-"`
}

// Content is a file attached to a text.
type Content struct {
	ID       int       `json:"id"`
	TextID   int       `json:"text_id"`
	Filename string    `json:"filename"`
	Size     int64     `json:"size"`
	Checksum uint64    `json:"checksum"` // xxh3 of the file content
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
}

// Commit is one entry of a content file history.
type Commit struct {
	Hash    string    `json:"hash"`
	Message string    `json:"message"`
	Author  string    `json:"author"`
	Email   string    `json:"email"`
	Date    time.Time `json:"date"`
}
