// Package ctlsocksrv implements the control socket that can be activated
// by passing "--ctlsock" to secobjctl. It answers read-only
// introspection queries about a running engine: object status and the set
// of currently open handles. It never performs key material operations
// itself.
package ctlsocksrv

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/teefs/secobjfs/internal/tlog"
)

// Interface is implemented by the engine and exposes the read-only
// queries the control socket can answer.
type Interface interface {
	// StatObject returns a human-readable status line for the object
	// identified by name, or an error if it does not exist.
	StatObject(name string) (string, error)
	// OpenHandles returns the names of objects currently open.
	OpenHandles() []string
}

// RequestStruct is one control socket request. Exactly one of StatPath
// or ListOpen should be set.
type RequestStruct struct {
	StatPath string `json:",omitempty"`
	ListOpen bool   `json:",omitempty"`
}

// ResponseStruct is one control socket response.
type ResponseStruct struct {
	Result   string `json:",omitempty"`
	ErrText  string `json:",omitempty"`
	ErrNo    int32  `json:",omitempty"`
	WarnText string `json:",omitempty"`
}

type ctlSockHandler struct {
	fs     Interface
	socket *net.UnixListener
	// Rate limiting
	rateLimiter map[string]*rateLimitEntry
	rateMutex   sync.RWMutex
}

type rateLimitEntry struct {
	lastRequest  time.Time
	requestCount int
}

// Rate limiting constants
const (
	maxRequestsPerMinute = 60
	rateLimitWindow      = time.Minute
	connectionTimeout    = 30 * time.Second
	readTimeout          = 5 * time.Second
)

// Serve serves incoming connections on "sock". This call blocks so you
// probably want to run it in a new goroutine.
func Serve(sock net.Listener, fs Interface) {
	handler := ctlSockHandler{
		fs:          fs,
		socket:      sock.(*net.UnixListener),
		rateLimiter: make(map[string]*rateLimitEntry),
	}
	handler.acceptLoop()
}

func (ch *ctlSockHandler) acceptLoop() {
	for {
		conn, err := ch.socket.Accept()
		if err != nil {
			// This can trigger on program exit with "use of closed network connection".
			tlog.Info.Printf("ctlsock: Accept error: %v", err)
			break
		}
		go ch.handleConnection(conn.(*net.UnixConn))
	}
}

// checkPeerCredentials verifies that the connecting peer has the same UID as the server
func (ch *ctlSockHandler) checkPeerCredentials(conn *net.UnixConn) error {
	cred, err := getPeerCredentials(conn)
	if err != nil {
		return fmt.Errorf("failed to get peer credentials: %v", err)
	}
	ourUID := os.Getuid()
	if cred.UID != ourUID {
		return fmt.Errorf("peer UID %d does not match server UID %d", cred.UID, ourUID)
	}
	return nil
}

// checkRateLimit verifies that the client is not exceeding rate limits
func (ch *ctlSockHandler) checkRateLimit(clientID string) error {
	ch.rateMutex.Lock()
	defer ch.rateMutex.Unlock()

	now := time.Now()
	entry, exists := ch.rateLimiter[clientID]
	if !exists {
		ch.rateLimiter[clientID] = &rateLimitEntry{lastRequest: now, requestCount: 1}
		return nil
	}
	if now.Sub(entry.lastRequest) > rateLimitWindow {
		entry.lastRequest = now
		entry.requestCount = 1
		return nil
	}
	if entry.requestCount >= maxRequestsPerMinute {
		return fmt.Errorf("rate limit exceeded: %d requests per minute", maxRequestsPerMinute)
	}
	entry.requestCount++
	entry.lastRequest = now
	return nil
}

// ReadBufSize is the size of the request read buffer. We abort the
// connection if the request is bigger than this.
const ReadBufSize = 5000

// handleConnection reads and parses JSON requests from "conn"
func (ch *ctlSockHandler) handleConnection(conn *net.UnixConn) {
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(connectionTimeout))

	if err := ch.checkPeerCredentials(conn); err != nil {
		tlog.Warn.Printf("ctlsock: peer credential check failed: %v", err)
		return
	}

	clientID := getClientIdentifier(conn)

	buf := make([]byte, ReadBufSize)
	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		n, err := conn.Read(buf)
		if err == io.EOF {
			return
		} else if err != nil {
			tlog.Warn.Printf("ctlsock: Read error: %#v", err)
			return
		}
		if n == ReadBufSize {
			tlog.Warn.Printf("ctlsock: request too big (max = %d bytes)", ReadBufSize-1)
			return
		}

		if err := ch.checkRateLimit(clientID); err != nil {
			tlog.Warn.Printf("ctlsock: rate limit exceeded for client %s: %v", clientID, err)
			sendResponse(conn, err, "", "")
			return
		}

		data := buf[:n]
		var in RequestStruct
		if err := json.Unmarshal(data, &in); err != nil {
			tlog.Warn.Printf("ctlsock: JSON Unmarshal error: %#v", err)
			sendResponse(conn, errors.New("JSON Unmarshal error: "+err.Error()), "", "")
			continue
		}
		ch.handleRequest(&in, conn)
	}
}

// handleRequest handles an already-unmarshaled JSON request
func (ch *ctlSockHandler) handleRequest(in *RequestStruct, conn *net.UnixConn) {
	if in.ListOpen {
		sendResponse(conn, nil, strings.Join(ch.fs.OpenHandles(), "\n"), "")
		return
	}
	if in.StatPath == "" {
		sendResponse(conn, errors.New("empty request"), "", "")
		return
	}
	clean := SanitizePath(in.StatPath)
	var warnText string
	if clean != in.StatPath {
		warnText = fmt.Sprintf("non-canonical path %q has been interpreted as %q", in.StatPath, clean)
	}
	if clean == "" {
		sendResponse(conn, errors.New("empty path after canonicalization"), "", warnText)
		return
	}
	status, err := ch.fs.StatObject(clean)
	sendResponse(conn, err, status, warnText)
}

// SanitizePath cleans a user-supplied object name: it resolves "." and
// ".." elements and strips the leading slash, so the result is always a
// relative path. The object facade itself does no such cleaning.
func SanitizePath(p string) string {
	p = filepath.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}

// sendResponse sends a JSON response message
func sendResponse(conn *net.UnixConn, err error, result string, warnText string) {
	msg := ResponseStruct{
		Result:   result,
		WarnText: warnText,
	}
	if err != nil {
		msg.ErrText = err.Error()
		msg.ErrNo = -1
		if pe, ok := err.(*os.PathError); ok {
			if se, ok := pe.Err.(syscall.Errno); ok {
				msg.ErrNo = int32(se)
			}
		} else if errors.Is(err, syscall.ENOENT) {
			msg.ErrNo = int32(syscall.ENOENT)
		}
	}
	jsonMsg, err := json.Marshal(msg)
	if err != nil {
		tlog.Warn.Printf("ctlsock: Marshal failed: %v", err)
		return
	}
	jsonMsg = append(jsonMsg, '\n')
	if _, err := conn.Write(jsonMsg); err != nil {
		tlog.Warn.Printf("ctlsock: Write failed: %v", err)
	}
}

// PeerCredentials represents the credentials of a Unix socket peer
type PeerCredentials struct {
	UID int
	GID int
	PID int
}

// getPeerCredentials is implemented in platform-specific files:
// - peer_credentials_linux.go for Linux
// - peer_credentials_darwin.go for macOS
// - peer_credentials_other.go for other platforms

// getClientIdentifier returns a unique identifier for the client connection
func getClientIdentifier(conn *net.UnixConn) string {
	remoteAddr := conn.RemoteAddr()
	if remoteAddr != nil {
		return remoteAddr.String()
	}
	return "unknown"
}
