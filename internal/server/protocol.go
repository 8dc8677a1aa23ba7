package server

import (
	"bufio"
	"bytes"
	"net"
)

type protocolType int

const (
	protocolTCP protocolType = iota
	protocolHTTP
)

func (p protocolType) String() string {
	if p == protocolHTTP {
		return "http"
	}
	return "tcp"
}

var httpMethods = [][]byte{
	[]byte("GET "),
	[]byte("POST"),
	[]byte("PUT "),
	[]byte("HEAD"),
}

// detectProtocol peeks at the first bytes to tell a WebSocket handshake
// from a raw chat stream. Raw chat frames start with a JSON object, so they
// never look like an HTTP request line.
func detectProtocol(conn net.Conn) (protocolType, *bufio.Reader, error) {
	reader := bufio.NewReader(conn)

	peek, err := reader.Peek(4)
	if err != nil {
		return protocolTCP, reader, err
	}
	for _, method := range httpMethods {
		if bytes.HasPrefix(peek, method) {
			return protocolHTTP, reader, nil
		}
	}
	return protocolTCP, reader, nil
}
