package utils

const (
	// MimeTypeJPEG is regular jpgs.
	MimeTypeJPEG = "image/jpeg"

	// MimeTypeJSON is for json documents.
	MimeTypeJSON = "application/json"
)
