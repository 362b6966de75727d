package app

import "errors"

var (
	// ErrInvalidCredentials covers unknown emails, wrong passwords, and
	// deactivated accounts alike, so login failures never enable account
	// enumeration.
	ErrInvalidCredentials = errors.New("Invalid email or password")

	ErrEmailAlreadyExists = errors.New("Email already registered")

	ErrStoryNotFound = errors.New("Story not found")
	// ErrStoryGone means the story existed but is expired or deactivated;
	// clients should stop polling it.
	ErrStoryGone = errors.New("Story is no longer available")

	ErrUserNotFound = errors.New("User not found")
	ErrSelfFollow   = errors.New("Cannot follow yourself")
	ErrNotFollowing = errors.New("Not following this user")
)
