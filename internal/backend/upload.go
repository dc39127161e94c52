package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/h2non/filetype"

	"github.com/vovakirdan/wirechat-client/internal/core"
	"github.com/vovakirdan/wirechat-client/internal/proto"
)

// MaxUploadSize caps attachment uploads.
const MaxUploadSize = 20 << 20

type uploadResponse struct {
	FileURL      string `json:"fileUrl"`
	FileType     string `json:"fileType"`
	OriginalName string `json:"originalName"`
}

// DetectKind sniffs the content to classify an attachment.
func DetectKind(head []byte) (core.AttachmentKind, string) {
	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown {
		return core.AttachmentFile, "application/octet-stream"
	}
	if filetype.IsImage(head) {
		return core.AttachmentImage, kind.MIME.Value
	}
	return core.AttachmentFile, kind.MIME.Value
}

// Upload stores a file on the backend and returns the hosted attachment.
func (c *Client) Upload(ctx context.Context, name string, r io.Reader) (core.Attachment, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadSize+1))
	if err != nil {
		return core.Attachment{}, fmt.Errorf("read %s: %w", name, err)
	}
	if len(data) > MaxUploadSize {
		return core.Attachment{}, fmt.Errorf("%s exceeds %d bytes", name, MaxUploadSize)
	}

	kind, mime := DetectKind(data)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return core.Attachment{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return core.Attachment{}, fmt.Errorf("write form file: %w", err)
	}
	if err := mw.WriteField("mimeType", mime); err != nil {
		return core.Attachment{}, fmt.Errorf("write form field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return core.Attachment{}, fmt.Errorf("close form: %w", err)
	}

	var resp uploadResponse
	if err := c.do(ctx, "upload", http.MethodPost, "/chatroom/upload", mw.FormDataContentType(), &body, &resp); err != nil {
		return core.Attachment{}, err
	}
	if resp.FileURL == "" {
		return core.Attachment{}, core.NewError(core.KindMalformedResponse, "upload", "file url missing", nil)
	}

	att := core.Attachment{URL: resp.FileURL, Kind: kind, Name: resp.OriginalName}
	if resp.FileType != "" {
		att.Kind = proto.AttachmentKind(resp.FileType)
	}
	if att.Name == "" {
		att.Name = name
	}
	return att, nil
}
