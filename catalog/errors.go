package catalog

import "errors"

var (
	// ErrFileNotFound indicates no file record exists under the name.
	ErrFileNotFound = errors.New("catalog: file not found")

	// ErrDuplicateFile indicates a file record with the name already exists.
	ErrDuplicateFile = errors.New("catalog: file already exists")

	// ErrInvalidName indicates an empty file name.
	ErrInvalidName = errors.New("catalog: invalid file name")

	// ErrNilParam indicates a required parameter is nil.
	ErrNilParam = errors.New("catalog: nil parameter")

	// ErrInvalidRecord indicates a file record with an unusable block list.
	ErrInvalidRecord = errors.New("catalog: invalid file record")

	// ErrCorruptRecord indicates a stored record failed to decrypt under the
	// session's master key or does not belong under its index key.
	ErrCorruptRecord = errors.New("catalog: corrupt file record")

	// ErrNoWrappedKey indicates the catalog holds no wrapped master key.
	ErrNoWrappedKey = errors.New("catalog: no wrapped master key")
)
