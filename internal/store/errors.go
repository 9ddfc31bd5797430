package store

import "errors"

var (
	// ErrNotAuthenticated indicates the action requires a signed-in user.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrRoleNotAuthorized indicates the action requires a business account.
	ErrRoleNotAuthorized = errors.New("business account required")
	// ErrSelfFollow indicates a user attempted to follow themselves.
	ErrSelfFollow = errors.New("cannot follow yourself")
	// ErrProfileInconsistency indicates an authenticated identity has no
	// matching profile row. Fatal to the session: the caller is logged out.
	ErrProfileInconsistency = errors.New("authenticated identity has no profile")
	// ErrUpload indicates a binary transfer to the media gateway failed.
	ErrUpload = errors.New("media upload failed")
	// ErrRemoteRead indicates a backend read failed.
	ErrRemoteRead = errors.New("remote read failed")
	// ErrRemoteWrite indicates a backend write failed.
	ErrRemoteWrite = errors.New("remote write failed")
)
