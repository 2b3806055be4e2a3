package mem

type memError string

const (
	ErrorAddrRange   = memError("address out of range")
	ErrorSectionFull = memError("memory section full")
	ErrorBadCount    = memError("bad byte count")
	ErrorFieldCount  = memError("wrong number of fields")
)

func (e memError) Error() string { return string(e) }
