// Package media uploads post images to Cloudinary.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrNotConfigured is returned when no CLOUDINARY_URL was provided.
var ErrNotConfigured = errors.New("media: image uploads are not configured")

const postFolder = "socialfeed/posts"

// Uploader stores an image and returns its public URL.
type Uploader interface {
	UploadPostImage(ctx context.Context, userID primitive.ObjectID, file io.Reader) (string, error)
}

type Cloudinary struct {
	cld *cloudinary.Cloudinary
	now func() time.Time
}

func NewCloudinary(url string) (*Cloudinary, error) {
	if url == "" {
		return nil, ErrNotConfigured
	}
	cld, err := cloudinary.NewFromURL(url)
	if err != nil {
		return nil, fmt.Errorf("cloudinary config: %w", err)
	}
	return &Cloudinary{cld: cld, now: time.Now}, nil
}

func (c *Cloudinary) UploadPostImage(ctx context.Context, userID primitive.ObjectID, file io.Reader) (string, error) {
	res, err := c.cld.Upload.Upload(ctx, file, postImageParams(userID, c.now()))
	if err != nil {
		return "", fmt.Errorf("cloudinary upload: %w", err)
	}
	if res.SecureURL == "" {
		return "", errors.New("cloudinary upload: empty url in response")
	}
	return res.SecureURL, nil
}

func postImageParams(userID primitive.ObjectID, now time.Time) uploader.UploadParams {
	return uploader.UploadParams{
		Folder:         postFolder,
		PublicID:       userID.Hex() + "_" + now.Format("20060102150405") + "_" + strconv.Itoa(now.Nanosecond()/1000),
		Transformation: "c_limit,w_1200,h_1200,q_auto",
	}
}

// Disabled is used when uploads are not configured.
type Disabled struct{}

func (Disabled) UploadPostImage(context.Context, primitive.ObjectID, io.Reader) (string, error) {
	return "", ErrNotConfigured
}
