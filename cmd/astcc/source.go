package main

import (
	"os"

	"github.com/pkg/errors"
)

func readSource(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "astcc: read %q", path)
	}
	return string(data), nil
}
