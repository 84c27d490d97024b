package wsnode

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/gbdevw/gowsnode/pipeline"
	"github.com/gbdevw/gowsnode/wsframe"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// End of the HTTP response headers
var headerTerminator = []byte("\r\n\r\n")

// # Description
//
// Generate a new Sec-WebSocket-Key: 16 random bytes, base64 encoded.
func newSecWebsocketKey() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(id[:]), nil
}

// Build the raw upgrade request
func (node *WSNode) buildUpgradeRequest(dst pipeline.Destination, key string) []byte {
	var req bytes.Buffer
	fmt.Fprintf(&req, "GET %s HTTP/1.1\r\n", dst.Path)
	fmt.Fprintf(&req, "Host: %s\r\n", dst.HostHeader())
	req.WriteString("Upgrade: websocket\r\n")
	req.WriteString("Connection: Upgrade\r\n")
	fmt.Fprintf(&req, "Sec-WebSocket-Key: %s\r\n", key)
	req.WriteString("Sec-WebSocket-Version: 13\r\n")
	if node.opts.Header != nil {
		// Extra headers, sorted by key. Write only fails if the writer fails.
		node.opts.Header.Write(&req)
	}
	req.WriteString("\r\n")
	return req.Bytes()
}

// # Description
//
// Perform the client opening handshake over the next node: send the upgrade request, read the
// response headers and validate them. Bytes received after the response headers are kept in
// node.pending and delivered first by Read.
//
// # Returns
//
// nil on success, the next node error unchanged if the next node fails or a HANDSHAKE_FAILED
// error if the response is not a valid upgrade response.
func (node *WSNode) handshake(ctx context.Context, dst pipeline.Destination) error {
	// Send upgrade request
	key, err := newSecWebsocketKey()
	if err != nil {
		return node.handshakeError("failed to generate websocket key", err)
	}
	raw := node.buildUpgradeRequest(dst, key)
	req := pipeline.NewBuffer(raw)
	req.Obtain(len(raw))
	if err := pipeline.WriteAll(node.next, req, nil); err != nil {
		return err
	}
	// Read response headers
	resp := pipeline.NewBuffer(make([]byte, node.opts.HandshakeBufferSize))
	end := -1
	for end < 0 {
		if err := ctx.Err(); err != nil {
			return node.handshakeError("handshake interrupted", err)
		}
		if resp.Full() {
			return node.handshakeError("upgrade response headers exceed the handshake buffer", nil)
		}
		before := resp.Size()
		if err := node.next.Read(resp, pipeline.ArgsFromContext(ctx)); err != nil {
			return err
		}
		if resp.Size() == before {
			return pipeline.NewNoProgressError(node.next, "read")
		}
		end = bytes.Index(resp.Bytes(), headerTerminator)
	}
	end += len(headerTerminator)
	// Parse and check response
	httpResp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(resp.Bytes()[:end])), nil)
	if err != nil {
		return node.handshakeError("malformed upgrade response", err)
	}
	httpResp.Body.Close()
	if err := checkUpgradeResponse(httpResp, key); err != nil {
		return node.handshakeError("invalid upgrade response", err)
	}
	// Keep leftover bytes
	resp.Consume(end)
	if !resp.Empty() {
		node.pending = resp
	}
	node.logger.Info("websocket connection upgraded",
		zap.String("destination", dst.String()),
		zap.Int("leftover", resp.Size()))
	return nil
}

// Check the response status and the upgrade headers
func checkUpgradeResponse(resp *http.Response, key string) error {
	if resp.StatusCode != http.StatusSwitchingProtocols {
		return fmt.Errorf("unexpected status %q", resp.Status)
	}
	if !strings.EqualFold(resp.Header.Get("Upgrade"), "websocket") {
		return fmt.Errorf("unexpected Upgrade header %q", resp.Header.Get("Upgrade"))
	}
	if !headerContainsToken(resp.Header, "Connection", "upgrade") {
		return fmt.Errorf("unexpected Connection header %q", resp.Header.Get("Connection"))
	}
	if accept := resp.Header.Get("Sec-WebSocket-Accept"); accept != wsframe.ComputeAcceptKey(key) {
		return fmt.Errorf("unexpected Sec-WebSocket-Accept header %q", accept)
	}
	return nil
}

// Check a comma separated header contains the provided token (case insensitive)
func headerContainsToken(header http.Header, name string, token string) bool {
	for _, value := range header.Values(name) {
		for _, item := range strings.Split(value, ",") {
			if strings.EqualFold(strings.TrimSpace(item), token) {
				return true
			}
		}
	}
	return false
}
