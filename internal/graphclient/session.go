// Package graphclient talks to a cloud storage provider's resumable
// upload-session protocol: opening a session, querying its next expected
// byte range, uploading one part at a time, and reading back the
// drive-item descriptor the final part returns.
package graphclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/basket/goclaw-bridge/internal/bridgeerr"
)

// APIBase is the Microsoft Graph endpoint root for the signed-in user's
// own drive.
const APIBase = "https://graph.microsoft.com/v1.0/me/drive"

// CreateSessionURL builds the createUploadSession endpoint for a
// destination rootPath/filename pair.
func CreateSessionURL(rootPath, filename string) string {
	clean := strings.Trim(rootPath, "/")
	segments := clean + "/" + filename
	return APIBase + "/root:/" + escapeDrivePath(segments) + ":/createUploadSession"
}

func escapeDrivePath(p string) string {
	parts := strings.Split(p, "/")
	for i, seg := range parts {
		parts[i] = url.PathEscape(seg)
	}
	return strings.Join(parts, "/")
}

// PartSize is the chunk size used for every part upload except the last.
// It must be a positive multiple of 320 KiB per the provider's resumable
// upload contract.
const PartSize = 10 * 320 * 1024 // 3.2 MiB

const partSizeUnit = 320 * 1024

func init() {
	if PartSize%partSizeUnit != 0 {
		panic("graphclient: PartSize must be a multiple of 320 KiB")
	}
}

// DriveItem is the descriptor returned by the provider on the final part of
// a resumable upload.
type DriveItem struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Session wraps one in-flight resumable upload session.
type Session struct {
	client    *http.Client
	uploadURL string
}

// NewSession wraps an existing upload session URL, e.g. one created when a
// task was first queued and persisted in the task row.
func NewSession(client *http.Client, uploadURL string) *Session {
	return &Session{client: client, uploadURL: uploadURL}
}

// CreateSession opens a new resumable upload session for a destination
// path, requesting rename-on-conflict so the effective filename may differ
// from the one submitted. createURL is the provider endpoint that accepts
// the createUploadSession POST (e.g. .../root:/{path}/{name}:/createUploadSession).
func CreateSession(ctx context.Context, client *http.Client, createURL, accessToken string) (*Session, error) {
	body := strings.NewReader(`{"item":{"@microsoft.graph.conflictBehavior":"rename"}}`)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, createURL, body)
	if err != nil {
		return nil, bridgeerr.Internal(err, "build create-session request")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, bridgeerr.Transport(err, "create upload session")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, bridgeerr.Transport(nil, "create upload session: status %s", resp.Status)
	}

	var parsed struct {
		UploadURL string `json:"uploadUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, bridgeerr.Protocol(err, "decode upload session response")
	}
	if parsed.UploadURL == "" {
		return nil, bridgeerr.Protocol(nil, "uploadUrl not found in create-session response")
	}

	return &Session{client: client, uploadURL: parsed.UploadURL}, nil
}

// UploadURL returns the session's resumable upload URL, for persisting on
// the task row.
func (s *Session) UploadURL() string {
	return s.uploadURL
}

// NextExpectedOffset queries the session's status and returns the start of
// its first expected byte range — 0 for a fresh session, or the resume
// point after a restart.
func (s *Session) NextExpectedOffset(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.uploadURL, nil)
	if err != nil {
		return 0, bridgeerr.Internal(err, "build session status request")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, bridgeerr.Transport(err, "query upload session status")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return 0, bridgeerr.Transport(nil, "query upload session status: status %s", resp.Status)
	}

	var parsed struct {
		NextExpectedRanges []string `json:"nextExpectedRanges"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, bridgeerr.Protocol(err, "decode upload session status")
	}
	if len(parsed.NextExpectedRanges) == 0 {
		return 0, nil
	}
	start, _, err := parseRange(parsed.NextExpectedRanges[0])
	if err != nil {
		return 0, bridgeerr.Protocol(err, "parse nextExpectedRanges")
	}
	return start, nil
}

// UploadPart uploads data as the half-open byte range [offset, offset+len(data))
// of totalLength. When this is the final part (offset+len(data) == totalLength),
// the provider responds with the finished DriveItem; otherwise item is nil.
func (s *Session) UploadPart(ctx context.Context, data []byte, offset, totalLength int64) (item *DriveItem, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.uploadURL, bytes.NewReader(data))
	if err != nil {
		return nil, bridgeerr.Internal(err, "build part upload request")
	}
	req.ContentLength = int64(len(data))
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, offset+int64(len(data))-1, totalLength))
	req.Header.Set("Content-Length", strconv.Itoa(len(data)))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, bridgeerr.Transport(err, "upload part at offset %d", offset)
	}
	defer resp.Body.Close()

	isFinal := offset+int64(len(data)) >= totalLength

	if resp.StatusCode >= 400 {
		if !isFinal {
			return nil, bridgeerr.Transport(nil, "upload part at offset %d: status %s (session-fatal)", offset, resp.Status)
		}
		return nil, bridgeerr.Transport(nil, "upload final part: status %s", resp.Status)
	}

	if !isFinal {
		io.Copy(io.Discard, resp.Body)
		return nil, nil
	}

	var parsedItem DriveItem
	if err := json.NewDecoder(resp.Body).Decode(&parsedItem); err != nil {
		return nil, bridgeerr.Protocol(err, "decode final part drive-item response")
	}
	if parsedItem.Name == "" {
		return nil, bridgeerr.Protocol(nil, "drive item name not found in final part response")
	}
	return &parsedItem, nil
}

// Cancel aborts the upload session (best effort).
func (s *Session) Cancel(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.uploadURL, nil)
	if err != nil {
		return bridgeerr.Internal(err, "build cancel request")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return bridgeerr.Transport(err, "cancel upload session")
	}
	defer resp.Body.Close()
	return nil
}

func parseRange(s string) (start, end int64, err error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) == 0 || parts[0] == "" {
		return 0, 0, fmt.Errorf("malformed range %q", s)
	}
	start, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed range start %q: %w", s, err)
	}
	if len(parts) == 2 && parts[1] != "" {
		end, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("malformed range end %q: %w", s, err)
		}
	}
	return start, end, nil
}
