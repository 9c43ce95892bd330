package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/timmy/vismatch/internal/domain"
	"github.com/timmy/vismatch/internal/service"
)

// imageForm is the non-file part of an image-carrying request.
// JSON bodies and form fields use the same names.
type imageForm struct {
	ImageURL string   `json:"imageUrl" form:"imageUrl"`
	Name     string   `json:"name" form:"name"`
	Category string   `json:"category" form:"category"`
	Price    *float64 `json:"price" form:"price"`
}

// readImageRequest parses a multipart upload (field "image") or a JSON / form
// body carrying imageUrl. The body is capped at maxBytes.
func readImageRequest(c *gin.Context, maxBytes int64) (service.ImageInput, *imageForm, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)

	var form imageForm
	if strings.HasPrefix(c.ContentType(), "application/json") {
		if err := c.ShouldBindJSON(&form); err != nil {
			return service.ImageInput{}, nil, bodyError(err)
		}
		return service.ImageInput{URL: form.ImageURL}, &form, nil
	}

	if err := c.ShouldBind(&form); err != nil {
		return service.ImageInput{}, nil, bodyError(err)
	}
	file, err := c.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		return service.ImageInput{URL: form.ImageURL}, &form, nil
	case err != nil:
		return service.ImageInput{}, nil, bodyError(err)
	}

	data, err := readUpload(file)
	if err != nil {
		return service.ImageInput{}, nil, err
	}
	return service.ImageInput{Data: data}, &form, nil
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	if ct := fh.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("%w: only image files are allowed", domain.ErrInvalidInput)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable upload: %v", domain.ErrInvalidInput, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable upload: %v", domain.ErrInvalidInput, err)
	}
	return data, nil
}

func bodyError(err error) error {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return err
	}
	return fmt.Errorf("%w: malformed request body: %v", domain.ErrInvalidInput, err)
}
