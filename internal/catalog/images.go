package catalog

import (
	"context"
	"net/http"
	"path"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/merchpit/internal/domain"
)

const MaxImageBytes = 5 << 20

var imageExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

func (s *Service) UploadProductImage(ctx context.Context, actor Actor, productID uuid.UUID, data []byte) (string, error) {
	p, err := s.ownedProduct(ctx, actor, productID)
	if err != nil {
		return "", err
	}
	return s.replaceImage(ctx, "products", productID, p.ImageURL, data, func(url string) error {
		return s.products.SetProductImage(ctx, productID, url)
	})
}

func (s *Service) UploadEventImage(ctx context.Context, actor Actor, eventID uuid.UUID, data []byte) (string, error) {
	e, err := s.ownedEvent(ctx, actor, eventID)
	if err != nil {
		return "", err
	}
	return s.replaceImage(ctx, "events", eventID, e.ImageURL, data, func(url string) error {
		return s.events.SetEventImage(ctx, eventID, url)
	})
}

// replaceImage uploads data and points the owner at it. A blob that could not
// be linked is removed again; the previous image is removed once the new one
// is linked.
func (s *Service) replaceImage(ctx context.Context, prefix string, owner uuid.UUID, previous string, data []byte, link func(url string) error) (string, error) {
	if s.blobs == nil {
		return "", errors.Wrap(domain.ErrInvalidInput, "image storage is not configured")
	}
	if len(data) == 0 || len(data) > MaxImageBytes {
		return "", errors.Wrapf(domain.ErrInvalidInput, "image must be 1 to %d bytes", MaxImageBytes)
	}
	contentType := http.DetectContentType(data)
	ext, ok := imageExt[contentType]
	if !ok {
		return "", errors.Wrapf(domain.ErrInvalidInput, "unsupported image type %s", contentType)
	}

	key := path.Join(prefix, owner.String(), uuid.NewString()+ext)
	url, err := s.blobs.Upload(ctx, key, contentType, data)
	if err != nil {
		return "", errors.Wrap(err, "upload image")
	}
	log := s.logger.WithField("owner", owner).WithField("image", url)

	if err := link(url); err != nil {
		if derr := s.blobs.Delete(context.WithoutCancel(ctx), url); derr != nil {
			log.WithError(derr).Error("orphaned image after link failure")
		}
		return "", errors.Wrap(err, "link image")
	}
	if previous != "" && previous != url {
		if err := s.blobs.Delete(ctx, previous); err != nil {
			log.WithField("previous", previous).WithError(err).Warn("failed to delete replaced image")
		}
	}
	return url, nil
}
