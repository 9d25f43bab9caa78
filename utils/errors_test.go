package utils

import (
	"image"
	"testing"

	"go.viam.com/test"
)

func TestNewUnexpectedTypeError(t *testing.T) {
	test.That(t, NewUnexpectedTypeError[string](1).Error(), test.ShouldEqual, "expected string but got int")
	test.That(t, NewUnexpectedTypeError[*image.RGBA](image.NewGray(image.Rect(0, 0, 1, 1))).Error(),
		test.ShouldEqual, "expected *image.RGBA but got *image.Gray")
	test.That(t, NewUnexpectedTypeError[image.Image](nil).Error(),
		test.ShouldEqual, "expected image.Image but got <nil>")
}
