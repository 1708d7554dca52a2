package botapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"whatsbot/internal/constants"
	"whatsbot/internal/errors"
	"whatsbot/internal/validation"
)

func (c *Client) ListTrainingData(ctx context.Context, params PageParams) ([]TrainingData, error) {
	var items []TrainingData
	err := c.getJSON(ctx, "/api/training-data", "/api/training-data", pageQuery(params.Skip, params.Limit), &items)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// CreateTrainingData stores a snippet; an empty category becomes "general".
func (c *Client) CreateTrainingData(ctx context.Context, in TrainingDataInput) (*TrainingData, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if in.Category == "" {
		in.Category = DefaultCategory
	}
	if in.Tags == nil {
		in.Tags = []string{}
	}

	var item TrainingData
	err := c.sendJSON(ctx, http.MethodPost, "/api/training-data", "/api/training-data", in, &item,
		logrus.Fields{"title": in.Title, "category": in.Category})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *Client) DeleteTrainingData(ctx context.Context, id string) error {
	if err := validation.ValidateID(id, "training_id"); err != nil {
		return err
	}
	return c.sendJSON(ctx, http.MethodDelete, "/api/training-data/{id}", "/api/training-data/"+pathID(id), nil, nil,
		logrus.Fields{"training_id": id})
}

// UploadTrainingFile posts r as multipart/form-data under the field "file".
// The whole file is buffered so its size can be checked before sending.
func (c *Client) UploadTrainingFile(ctx context.Context, filename string, r io.Reader) error {
	content, err := io.ReadAll(io.LimitReader(r, validation.MaxUploadBytes+1))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "failed to read upload")
	}
	if err := validation.ValidateUpload(filename, int64(len(content))); err != nil {
		return err
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(filename)))
	header.Set("Content-Type", constants.MimeTypeFor(filename))
	part, err := writer.CreatePart(header)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to create form file")
	}
	if _, err := part.Write(content); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to write form file")
	}
	if err := writer.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to close multipart writer")
	}

	return c.do(ctx, call{
		method:      http.MethodPost,
		route:       "/api/training-data/upload",
		path:        "/api/training-data/upload",
		body:        body,
		contentType: writer.FormDataContentType(),
		fields:      logrus.Fields{"file": filepath.Base(filename), "size": len(content)},
	}, nil)
}
