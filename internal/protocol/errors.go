package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Generation.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrUnknownRecipe = "E_UNKNOWN_RECIPE"
	ErrNoEntryModule = "E_NO_ENTRY_MODULE"
	ErrNoFallback    = "E_NO_FALLBACK"
	ErrBusy          = "E_BUSY"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrBadRequest:      {},
	ErrUnknownRecipe:   {},
	ErrNoEntryModule:   {},
	ErrNoFallback:      {},
	ErrBusy:            {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
