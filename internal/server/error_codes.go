package server

const (
	// Validation (1xxx)
	ErrCodeInvalidArgument = 1000
	ErrCodeInvalidQuery    = 1001
	ErrCodeInvalidID       = 1002
	ErrCodeInvalidDigest   = 1003
	ErrCodeInvalidIdentity = 1004

	// Domain state (2xxx)
	ErrCodeSnapshotNotFound = 2001
	ErrCodeEntryNotFound    = 2002
	ErrCodeBlobNotFound     = 2003
	ErrCodeTenantNotFound   = 2004

	// Auth & limits (3xxx)
	ErrCodeUnauthorized = 3001
	ErrCodeForbidden    = 3002

	// Internal/system (4xxx)
	ErrCodeInternal     = 4001
	ErrCodeStoreFailure = 4002
)

func defaultErrorCodeByStatus(status int) int {
	switch status {
	case 400:
		return ErrCodeInvalidArgument
	case 401:
		return ErrCodeUnauthorized
	case 403:
		return ErrCodeForbidden
	case 404:
		return ErrCodeSnapshotNotFound
	case 500:
		return ErrCodeInternal
	default:
		return 0
	}
}
