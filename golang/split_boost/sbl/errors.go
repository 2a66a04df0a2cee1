package sbl

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

//DimensionError reports an input whose size does not match the data set.
type DimensionError struct {
	Op       string
	Name     string
	Expected int
	Got      int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("sbl: %s: %s has size %d, expected %d", e.Op, e.Name, e.Got, e.Expected)
}

//MarshalZerologObject adds the structured fields of the error to a log event.
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("name", e.Name).
		Int("expected", e.Expected).
		Int("got", e.Got)
}

func newDimensionError(op, name string, expected, got int) error {
	return errors.WithStack(&DimensionError{Op: op, Name: name, Expected: expected, Got: got})
}

//HandleError stops the program on a non-nil error.
func HandleError(err error) {
	if err != nil {
		log.Panic().Err(err).Msg("unrecoverable error")
	}
}
