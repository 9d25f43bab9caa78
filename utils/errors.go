package utils

import (
	"reflect"

	"github.com/pkg/errors"
)

// NewUnexpectedTypeError is used when there is a type mismatch.
func NewUnexpectedTypeError[ExpectedT any](actual interface{}) error {
	expected := reflect.TypeOf((*ExpectedT)(nil)).Elem()
	return errors.Errorf("expected %s but got %T", expected, actual)
}
