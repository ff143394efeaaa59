package tasks

import "time"

// UserRef is the slice of a user that task responses expose: enough for a
// client to label owners and collaborators, never credential material.
type UserRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Task has exactly one owner, fixed at creation. SharedWith lists the
// collaborators granted read/edit visibility; it never contains the owner.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	UserID      string    `json:"userId"`
	CreatedAt   time.Time `json:"createdAt"`
	Owner       *UserRef  `json:"user,omitempty"`
	SharedWith  []UserRef `json:"sharedWith"`
}
