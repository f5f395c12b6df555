package domain

const (
	// DefaultKeyPrefix prefixes every session record key in the shared store.
	DefaultKeyPrefix = "citylink:session:"

	// CodeMin and CodeMax bound generated numeric session codes.
	CodeMin = 100000
	CodeMax = 999999
)
