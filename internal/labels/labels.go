// Package labels holds the FashionMNIST class names.
package labels

import (
	"errors"
	"fmt"
)

// NumClasses is the number of FashionMNIST classes.
const NumClasses = 10

// ErrUnknownClass is returned for a class index outside [0, NumClasses).
var ErrUnknownClass = errors.New("unknown class index")

// Class names in index order, matching torchvision's FashionMNIST.classes.
var names = [NumClasses]string{
	"T-shirt/top",
	"Trouser",
	"Pullover",
	"Dress",
	"Coat",
	"Sandal",
	"Shirt",
	"Sneaker",
	"Bag",
	"Ankle boot",
}

// Name returns the label for a class index.
func Name(index int) (string, error) {
	if index < 0 || index >= NumClasses {
		return "", fmt.Errorf("%w: %d", ErrUnknownClass, index)
	}
	return names[index], nil
}

// Names returns the ordered label set.
func Names() []string {
	out := make([]string, NumClasses)
	copy(out, names[:])
	return out
}

// Contains reports whether label is one of the class names.
func Contains(label string) bool {
	for _, n := range names {
		if n == label {
			return true
		}
	}
	return false
}
