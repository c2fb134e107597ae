package gateway

import "bytes"

func httpBody(b []byte) *bytes.Reader {
	return bytes.NewReader(b)
}
