//go:build !unix

package service

import "errors"

func execProcess(argv0 string, argv []string, envv []string) error {
	return errors.New("ruby run is only supported on unix systems")
}
