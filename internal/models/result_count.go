package models

// ResultCount is the number of persisted task results with a given status
// and error kind.
type ResultCount struct {
	Status    string
	ErrorKind ErrorKind
	Count     int64
}
