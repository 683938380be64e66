package domain

import "errors"

// Sentinel errors for the gateway. Services wrap these with %w and
// context; transports map them to wire codes with CodeOf.
var (
	ErrAuth             = errors.New("credential rejected")
	ErrPermission       = errors.New("permission denied")
	ErrValidation       = errors.New("invalid request")
	ErrNotFound         = errors.New("not found")
	ErrRoomFull         = errors.New("room full")
	ErrTransientCluster = errors.New("cluster unavailable")
	ErrStore            = errors.New("store failed")
)

const (
	CodeAuth       = "auth_failed"
	CodePermission = "permission_denied"
	CodeValidation = "invalid_request"
	CodeNotFound   = "not_found"
	CodeRoomFull   = "room_full"
	CodeCluster    = "cluster_busy"
	CodeStore      = "store_failed"
	CodeInternal   = "internal"
)

// ErrFromCode is the inverse of CodeOf, for errors that crossed a
// process boundary as their code.
func ErrFromCode(code string) error {
	switch code {
	case CodeAuth:
		return ErrAuth
	case CodePermission:
		return ErrPermission
	case CodeValidation:
		return ErrValidation
	case CodeNotFound:
		return ErrNotFound
	case CodeRoomFull:
		return ErrRoomFull
	case CodeCluster:
		return ErrTransientCluster
	case CodeStore:
		return ErrStore
	}
	return errors.New("internal")
}

// CodeOf maps an error chain onto a stable wire code. Anything not in
// the taxonomy collapses to "internal" so internals never leak out.
func CodeOf(err error) string {
	switch {
	case errors.Is(err, ErrAuth):
		return CodeAuth
	case errors.Is(err, ErrPermission):
		return CodePermission
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrRoomFull):
		return CodeRoomFull
	case errors.Is(err, ErrTransientCluster):
		return CodeCluster
	case errors.Is(err, ErrStore):
		return CodeStore
	}
	return CodeInternal
}
