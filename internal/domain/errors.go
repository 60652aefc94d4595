package domain

import "errors"

var (
	ErrFetchProbe        = errors.New("title probe failed")
	ErrFetchDownload     = errors.New("download failed")
	ErrFetchFileNotFound = errors.New("downloaded file not found")
	ErrEncodeHardware    = errors.New("hardware encode failed")
	ErrEncodeSoftware    = errors.New("software encode failed")
	ErrCleanup           = errors.New("cleanup failed")
	ErrJobPanic          = errors.New("job panicked")

	ErrJobNotFound    = errors.New("job not found")
	ErrInvalidMessage = errors.New("invalid message")
)
