package domain

// FallbackKind tells why a Completion carries fixed text instead of model output.
type FallbackKind int

const (
	FallbackNone FallbackKind = iota
	FallbackNoChoices
	FallbackProviderError
	FallbackUnexpected
)

func (k FallbackKind) String() string {
	switch k {
	case FallbackNone:
		return "none"
	case FallbackNoChoices:
		return "no_choices"
	case FallbackProviderError:
		return "provider_error"
	case FallbackUnexpected:
		return "unexpected"
	default:
		return "unknown"
	}
}

// Completion is the outcome of one generation: either real model text
// (Fallback == FallbackNone) or a fixed fallback string.
type Completion struct {
	Text     string
	Fallback FallbackKind
}

func (c Completion) IsFallback() bool {
	return c.Fallback != FallbackNone
}
