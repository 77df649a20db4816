package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"officeflow/internal/blob"
	"officeflow/internal/ident"
	"officeflow/pkg/domain"
)

// attachmentPathPrefix is prepended to blob keys in the stored attachment path.
const attachmentPathPrefix = "storage/"

var (
	allowedExtensions = map[string]struct{}{"pdf": {}, "jpg": {}, "jpeg": {}, "png": {}, "docx": {}, "xlsx": {}}
	blockedExtensions = map[string]struct{}{"php": {}, "exe": {}, "sh": {}}
	unsafeNameChars   = regexp.MustCompile(`[^A-Za-z0-9._-]`)
)

// AttachFileInput uploads one binary to a document.
type AttachFileInput struct {
	Department  string `validate:"required,segment"`
	DocumentID  string `validate:"required"`
	Actor       string `validate:"required"`
	Filename    string `validate:"notblank"`
	ContentType string
	Body        io.Reader `validate:"required"`
}

// AttachFile stores the binary under
// departments/<dept>/uploads/<doc>/<unix-millis>_<name> and records its
// metadata on the document. Only the current owner may attach.
func (s *Service) AttachFile(ctx context.Context, in AttachFileInput) (domain.Attachment, error) {
	var att domain.Attachment
	err := s.observe(ctx, call{op: opAttachFile, dept: in.Department, actor: in.Actor, entity: in.DocumentID}, func(ctx context.Context) (string, error) {
		if err := s.check(domain.EntityAttachment, in.DocumentID, in); err != nil {
			return "", err
		}
		doc, err := s.loadDocument(in.Department, in.DocumentID)
		if err != nil {
			return "", err
		}
		if doc.CurrentOwner != in.Actor {
			return "", domain.Forbidden(domain.EntityAttachment, doc.ID, "only the current owner can manage attachments")
		}
		name, err := sanitizeFilename(in.Filename)
		if err != nil {
			return "", err
		}
		key, err := s.putAttachment(ctx, in, name)
		if err != nil {
			return "", err
		}
		att = domain.Attachment{Filename: path.Base(key), Path: attachmentPathPrefix + key, UploadedBy: in.Actor}
		_, err = s.mutateDocument(ctx, in.Department, in.DocumentID, func(doc *domain.Document) error {
			if doc.CurrentOwner != in.Actor {
				return domain.Forbidden(domain.EntityAttachment, doc.ID, "only the current owner can manage attachments")
			}
			doc.Attachments = append(doc.Attachments, att)
			doc.History = append(doc.History, domain.Event{Action: domain.ActionAttached, By: in.Actor, Time: s.eventTime(*doc), Note: att.Filename})
			return nil
		})
		if err != nil {
			if _, delErr := s.blobs.Delete(ctx, key); delErr != nil {
				s.logger.Warn("orphaned attachment", zap.String("key", key), zap.Error(delErr))
			}
			return "", err
		}
		return att.Path, nil
	})
	if err != nil {
		return domain.Attachment{}, err
	}
	return att, nil
}

// putAttachment writes the upload under the first free key, moving to the
// next millisecond when an upload of the same name already holds one. The
// body is consumed once, so a key taken between probe and write is reported
// as an allocation race.
func (s *Service) putAttachment(ctx context.Context, in AttachFileInput, name string) (string, error) {
	millis := s.clock.Now().UnixMilli()
	prefix := uploadPrefix(in.Department, in.DocumentID)
	for attempt := 0; attempt < s.allocationRetries(); attempt++ {
		key := path.Join(prefix, fmt.Sprintf("%d_%s", millis+int64(attempt), name))
		_, err := s.blobs.Head(ctx, key)
		if err == nil {
			continue
		}
		if !errors.Is(err, blob.ErrNotFound) {
			return "", domain.PersistFailure(domain.EntityAttachment, in.DocumentID, err)
		}
		opts := blob.PutOptions{ContentType: in.ContentType, Metadata: map[string]string{"uploaded_by": in.Actor, "document": in.DocumentID}}
		if _, err := s.blobs.Put(ctx, key, in.Body, opts); err != nil {
			if errors.Is(err, blob.ErrExists) {
				return "", domain.AllocationRace(domain.EntityAttachment, prefix, err)
			}
			return "", domain.PersistFailure(domain.EntityAttachment, in.DocumentID, err)
		}
		return key, nil
	}
	return "", domain.AllocationRace(domain.EntityAttachment, prefix, blob.ErrExists)
}

// DetachFile removes an attachment. The binary is deleted first; the metadata
// entry is dropped only when that succeeded or the binary was already gone.
func (s *Service) DetachFile(ctx context.Context, dept, docID, actor, attachmentPath string) error {
	return s.observe(ctx, call{op: opDetachFile, dept: dept, actor: actor, entity: attachmentPath}, func(ctx context.Context) (string, error) {
		if err := requireDepartment(dept); err != nil {
			return "", err
		}
		doc, err := s.loadDocument(dept, docID)
		if err != nil {
			return "", err
		}
		if doc.CurrentOwner != actor {
			return "", domain.Forbidden(domain.EntityAttachment, doc.ID, "only the current owner can manage attachments")
		}
		key := strings.TrimPrefix(attachmentPath, attachmentPathPrefix)
		prefix := uploadPrefix(dept, doc.ID) + "/"
		if !strings.HasPrefix(key, prefix) || strings.Contains(key, "..") || len(key) == len(prefix) {
			return "", domain.Invalid(domain.EntityAttachment, attachmentPath, "path is outside the document uploads")
		}
		if doc.AttachmentIndex(attachmentPath) < 0 {
			return "", domain.NotFound(domain.EntityAttachment, attachmentPath)
		}
		if _, err := s.blobs.Delete(ctx, key); err != nil && !errors.Is(err, blob.ErrNotFound) {
			return "", domain.PersistFailure(domain.EntityAttachment, attachmentPath, err)
		}
		_, err = s.mutateDocument(ctx, dept, docID, func(doc *domain.Document) error {
			i := doc.AttachmentIndex(attachmentPath)
			if i < 0 {
				return nil
			}
			filename := doc.Attachments[i].Filename
			doc.Attachments = append(doc.Attachments[:i], doc.Attachments[i+1:]...)
			doc.History = append(doc.History, domain.Event{Action: domain.ActionDetached, By: actor, Time: s.eventTime(*doc), Note: filename})
			return nil
		})
		if err != nil {
			return "", err
		}
		return attachmentPath, nil
	})
}

// OpenAttachment streams an attachment of a document.
func (s *Service) OpenAttachment(ctx context.Context, dept, docID, attachmentPath string) (blob.Info, io.ReadCloser, error) {
	doc, err := s.GetDocument(ctx, dept, docID)
	if err != nil {
		return blob.Info{}, nil, err
	}
	if doc.AttachmentIndex(attachmentPath) < 0 {
		return blob.Info{}, nil, domain.NotFound(domain.EntityAttachment, attachmentPath)
	}
	info, rc, err := s.blobs.Get(ctx, strings.TrimPrefix(attachmentPath, attachmentPathPrefix))
	if errors.Is(err, blob.ErrNotFound) {
		return blob.Info{}, nil, domain.NotFound(domain.EntityAttachment, attachmentPath)
	}
	if err != nil {
		return blob.Info{}, nil, domain.PersistFailure(domain.EntityAttachment, attachmentPath, err)
	}
	return info, rc, nil
}

func uploadPrefix(dept, docID string) string {
	return path.Join("departments", dept, "uploads", docID)
}

// sanitizeFilename keeps the base name, checks the extension lists and
// replaces characters outside [A-Za-z0-9._-] with underscores.
func sanitizeFilename(name string) (string, error) {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(base), "."))
	if _, blocked := blockedExtensions[ext]; blocked {
		return "", domain.Invalid(domain.EntityAttachment, name, "file type not allowed")
	}
	if _, ok := allowedExtensions[ext]; !ok {
		return "", domain.Invalid(domain.EntityAttachment, name, "file extension not permitted")
	}
	return unsafeNameChars.ReplaceAllString(base, "_"), nil
}

func (s *Service) allocationRetries() int {
	if s.retries < 1 {
		return ident.DefaultRetries
	}
	return s.retries
}
