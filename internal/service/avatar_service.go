package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"rainbow-buyers/internal/model"
	"rainbow-buyers/internal/storage"
	"rainbow-buyers/internal/util"
	"rainbow-buyers/pkg/apierror"
)

const avatarURLPrefix = "/api/authentication/avatar/"

type avatarUpdater interface {
	UpdateAvatar(ctx context.Context, userID string, avatar string, actor model.Actor) (*model.Session, error)
}

// AvatarService turns uploaded images into square JPEG avatars.
type AvatarService struct {
	store    *storage.Storage
	users    avatarUpdater
	size     int
	maxBytes int64
}

func NewAvatarService(store *storage.Storage, users avatarUpdater, size int, maxBytes int64) *AvatarService {
	if size <= 0 {
		size = 256
	}
	if maxBytes <= 0 {
		maxBytes = 2 << 20
	}
	return &AvatarService{store: store, users: users, size: size, maxBytes: maxBytes}
}

func (s *AvatarService) MaxBytes() int64 {
	return s.maxBytes
}

// Upload decodes src, center-crops it to a square, scales it down to the
// configured size and stores it under the user's ID. The returned session
// carries a re-minted access token whose avatar claim points at the new file.
func (s *AvatarService) Upload(ctx context.Context, userID string, src io.Reader, actor model.Actor) (*model.Session, error) {
	data, err := io.ReadAll(io.LimitReader(src, s.maxBytes+1))
	if err != nil {
		return nil, errors.Wrap(err, "read avatar upload")
	}
	if int64(len(data)) > s.maxBytes {
		return nil, apierror.New("FILE_TOO_LARGE", "Avatar is too large", fmt.Sprintf("max %d bytes", s.maxBytes), http.StatusRequestEntityTooLarge)
	}
	if len(data) == 0 {
		return nil, apierror.New("BAD_REQUEST", "Avatar file is empty", "avatar", http.StatusBadRequest)
	}

	mimeType := util.DetectMIME(data)
	if !util.IsAvatarMIME(mimeType) {
		return nil, apierror.New("UNSUPPORTED_TYPE", "Avatar must be a JPEG, PNG, GIF, WebP or BMP image", mimeType, http.StatusUnsupportedMediaType)
	}

	encoded, err := s.render(data)
	if err != nil {
		return nil, err
	}

	if err := s.store.WriteFile(avatarFile(userID), encoded); err != nil {
		return nil, errors.Wrap(err, "store avatar")
	}

	version := util.ShortHash(encoded)
	return s.users.UpdateAvatar(ctx, userID, avatarURLPrefix+userID+"?v="+version, actor)
}

// Open returns the stored avatar for userID.
func (s *AvatarService) Open(userID string) (*os.File, os.FileInfo, error) {
	if strings.TrimSpace(userID) == "" || strings.ContainsAny(userID, `/\.`) {
		return nil, nil, model.ErrInvalidInput
	}

	file, err := s.store.OpenForRead(avatarFile(userID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, apierror.New("NOT_FOUND", "Avatar not found", "", http.StatusNotFound)
		}
		return nil, nil, err
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, nil, err
	}

	return file, info, nil
}

func (s *AvatarService) render(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apierror.New("UNSUPPORTED_TYPE", "Cannot decode image", err.Error(), http.StatusUnsupportedMediaType)
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, apierror.New("UNSUPPORTED_TYPE", "Invalid image dimensions", "", http.StatusUnsupportedMediaType)
	}

	side := min(width, height)
	crop := image.Rect(0, 0, side, side).Add(image.Pt(
		bounds.Min.X+(width-side)/2,
		bounds.Min.Y+(height-side)/2,
	))

	target := min(side, s.size)
	dst := image.NewRGBA(image.Rect(0, 0, target, target))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 90}); err != nil {
		return nil, errors.Wrap(err, "encode avatar")
	}
	return buf.Bytes(), nil
}

func avatarFile(userID string) string {
	return "/" + userID + ".jpg"
}
