package destinations

import "fmt"

type DstType int32

const (
	S3 DstType = iota
	Local
)

func (s DstType) String() string {
	switch s {
	case S3:
		return "s3"
	case Local:
		return "local"
	}

	return "unknown"
}

// Parse returns the destination type with the given name.
func Parse(name string) (DstType, error) {
	switch name {
	case S3.String():
		return S3, nil
	case Local.String():
		return Local, nil
	}

	return 0, fmt.Errorf("unknown destination type %q", name)
}
